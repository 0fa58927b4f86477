// Package jwt signs and verifies short-lived service assertions: the bearer
// tokens the identity service presents when it calls internal collaborators
// on behalf of a user. User sessions never use JWTs; they are opaque tokens
// held in Redis.
package jwt
