// Package middleware adapts the identity engine to net/http.
//
//   - [RequestMetadata] resolves the client IP, user agent and proxy geo
//     headers into the request context and tags the request with an ID.
//   - [RequireSession] authenticates the bearer token and stores the session
//     and user in the context for handlers.
//
// Authentication decisions are delegated to the engine.
package middleware
