// Package internal groups the building blocks the engine composes and nothing outside
// this module may import.
//
//   - audit: event type, sinks and the async dispatcher
//   - autherr: error kinds and their HTTP statuses
//   - flows: single-use token issue and consume
//   - limiters: progressive lockout and multi-IP suspicion
//   - rate: Redis fixed-window throttles
//   - serverconfig: environment settings for cmd/jobauth-server
package internal
