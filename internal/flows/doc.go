// Package flows implements the single-use capability token flow shared by email
// verification and password reset.
//
// A TokenFlow holds no mutable state. Every method takes the store.Repositories it
// should write through, which is normally the caller's transaction, so issuing a token
// and invalidating its predecessors, or consuming a token and applying its side effect,
// commit together or not at all.
package flows
