// Package stores provides Redis-backed, short-lived record stores for
// authentication flows. Today that is the pending TFA enrollment store.
//
// # Design
//
// Each entry is a plain Redis string with a TTL set at write time. Reads never
// refresh the TTL, so an entry expires a fixed time after it was written.
// Process restarts do not matter; Redis restarts without persistence drop all
// pending entries, which callers treat as an expired setup.
//
// # What this package must NOT do
//
//   - Import the root identity package or any sibling internal package.
//   - Log or expose the stored secrets.
package stores
