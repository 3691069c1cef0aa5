// Package session manages refresh sessions: one row per logged-in client holding the
// hashes of a refresh token and its bound CSRF token.
//
// Raw tokens are returned exactly once, from Create and Refresh, and never persisted.
// Every refresh rotates both halves under a compare-and-swap on the previous refresh
// hash, so two concurrent refreshes of the same token cannot both succeed.
//
// # States
//
//	ACTIVE -> ACTIVE   (Refresh, BootstrapCSRF)
//	ACTIVE -> REVOKED  (Logout, RevokeAllForUser)
//	ACTIVE -> EXPIRED  (passive, excluded from lookups)
package session
