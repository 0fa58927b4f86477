// Package session provides Redis-backed session persistence and a compact
// binary session encoding.
//
// # Keys
//
//	<prefix>:s:<sessionID>      encoded session record, TTL = absolute expiry
//	<prefix>:at:<sha256(token)> session ID for access-token lookup, same TTL
//	<prefix>:rt:<sha256(token)> session ID reserving the refresh token, same TTL
//	<prefix>:u:<userID>         set of the user's session IDs
//
// Access-token lookup is two direct GETs and never scans. Token plaintext is
// never written to Redis; only SHA-256 digests are stored.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does NOT load users or enforce authentication policy; those belong to the
// Engine.
//
// # What this package must NOT do
//
//   - Import the root identity package (no upward imports).
//   - Return a session whose expiry has passed, even if Redis still holds it.
//   - Store plaintext tokens.
package session
