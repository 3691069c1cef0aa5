// Package middleware adapts [jobAuth.Engine] to net/http: bearer-token guards, the
// admin gate, client metadata injection and the JSON error envelope.
//
// # Guards
//
//   - [RequireAuth] validates the access token and stores the identity in the context.
//   - [RequireAdmin] rejects identities the supplied predicate does not accept.
//   - [ClientInfo] copies the client IP and User-Agent into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every authentication
// decision is delegated to Engine.ValidateAccess; status codes come from
// jobAuth.HTTPStatus.
package middleware
