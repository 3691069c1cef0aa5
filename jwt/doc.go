// Package jwt signs and verifies the short-lived bearer access tokens handed out next to
// a refresh session. Tokens carry the user id as subject and the account email as a
// claim; nothing else about the session is encoded.
package jwt
