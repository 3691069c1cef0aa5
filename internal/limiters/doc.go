// Package limiters holds the account-level defenses of the login path.
//
//   - [LockoutGuard] keeps the progressive lockout state in the credential store.
//   - [SuspicionTracker] counts distinct client IPs per account in Redis.
//
// Neither sends email or writes audit entries; the engine does that from the
// returned results.
package limiters
