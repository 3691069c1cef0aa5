// Package rate provides Redis fixed-window counters for request throttling.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. Key prefixes:
//   - ja:rl:le: login per email
//   - ja:rl:li: login per client IP
//   - ja:rl:fp: forgot-password per email
//   - ja:rl:rv: resend-verification per email
//
// Counters are advisory. A Redis outage surfaces as ErrRedisUnavailable and the
// caller decides whether to fail open.
package rate
