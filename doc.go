// Package identity implements account registration, password login,
// time-based two-factor enrollment and verification, and Redis-backed
// sessions addressed by opaque access tokens.
//
// An [Engine] is assembled with [Builder] and is safe for concurrent use once
// [Builder.Build] returns. Persistent user records live behind [UserStore];
// sessions, rate-limit counters and pending TFA setups live in Redis.
//
// # Architecture boundaries
//
// The root package exposes [Engine], [Builder], [Config] and value types such
// as [User], [DeviceInfo] and [MetricsSnapshot]. Flow orchestration, rate
// limiting and audit dispatch live under internal/ and are not exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients or key layouts in its public API.
//   - Return password hashes, TFA secrets or backup codes from read paths.
//   - Import a sub-package that imports identity.
package identity
