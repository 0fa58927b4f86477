// Package snowflake issues 64-bit, time-ordered identifiers for users and
// sessions.
//
// An ID packs a 41-bit millisecond timestamp (relative to the generator
// epoch), a 10-bit node number and a 12-bit per-millisecond sequence. The
// creation time of any ID can be recovered with [Generator.ExtractCreationTime].
//
// # What this package must NOT do
//
//   - Read or write package-level mutable state after construction.
//   - Return the same ID twice from one generator, including across clock
//     regressions.
package snowflake
