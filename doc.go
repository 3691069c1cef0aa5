// Package jobAuth is the authentication session lifecycle of the job tracker: access
// tokens, rotating refresh sessions with a bound CSRF token, email verification,
// password reset and progressive account lockout.
//
// [Engine] is the only surface HTTP handlers call. Build one with [New] and
// [Builder.Build]; its methods are safe for concurrent use.
//
// # Architecture boundaries
//
// The credential store is injected ([store.Store]); the package never opens a database
// itself. Session rotation lives in session/, single-use tokens in internal/flows,
// lockout and multi-IP detection in internal/limiters, throttles in internal/rate.
// The engine composes them and owns every side effect: email, audit and metrics.
//
// # Secrets
//
// Raw refresh, CSRF, verification and reset tokens are returned exactly once and never
// persisted; the store only sees SHA-256 digests. [ToSafeAuthResponse] is the
// projection handlers serialize.
package jobAuth
