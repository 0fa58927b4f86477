// Package internal holds helpers private to the identity module: secure random
// generation and hashing of identifiers that end up in Redis keys.
//
// # Sub-packages
//
//   - audit: async event dispatch
//   - config: environment-driven process configuration
//   - flows: the orchestration behind every Engine operation
//   - httpapi: the JSON HTTP surface served by identityd
//   - limiters: registration and PIN rate limiters
//   - logging: slog helpers
//   - rate: fixed-window Redis counters
//   - security: security report and config lint helpers
//   - stores: short-lived Redis records such as pending TFA setups
package internal
