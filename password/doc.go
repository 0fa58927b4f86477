// Package password derives and verifies salted PBKDF2-HMAC-SHA256 hashes for
// passwords and TFA backup codes.
//
// # Output format
//
// Hashes and salts are stored separately, each as standard base64. A hash is
// the 32-byte derived key for (salt, secret) after [Config.Iterations] rounds.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// character classes) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Reject weak secrets; empty input hashes deterministically.
//   - Log plaintext secrets.
package password
