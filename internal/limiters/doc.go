// Package limiters provides the Redis-backed counters guarding TFA pins and
// account creation.
//
// # Limiters
//
//   - [PinLimiter]: per-user failure throttle for TOTP and backup code pins.
//   - [RegistrationLimiter]: per-IP throttle for sign-ups.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
// A zero MaxAttempts disables the limiter.
//
// # What this package must NOT do
//
//   - Import the root identity package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
