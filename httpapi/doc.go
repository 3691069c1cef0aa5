// Package httpapi exposes the authentication engine over HTTP with a chi router.
//
// The refresh token only ever travels in an httpOnly cookie. The CSRF token is
// returned in JSON bodies and must be echoed in the X-CSRF-Token header on refresh
// and logout (double submit). Errors use the envelope written by
// middleware.WriteError.
package httpapi
