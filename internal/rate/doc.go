// Package rate provides the Redis-backed failed-login limiter.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live
// under Config.KeyPrefix:
//   - <prefix>:rl:login:   per email (hashed)
//   - <prefix>:rl:loginip: per client IP (hashed)
//
// # What this package must NOT do
//
//   - Implement TFA or registration policies (those live in internal/limiters).
//   - Store raw emails or IPs in key names.
package rate
