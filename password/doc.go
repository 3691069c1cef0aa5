// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The package also owns the length policy applied at registration and reset, and a
// dummy verification used to keep the unknown-user login path as slow as the
// wrong-password path.
package password
