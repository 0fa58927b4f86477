// Package featureflags provides [identity.FeatureFlags] sources.
//
// [RedisSource] polls a Redis hash on a fixed interval and answers
// IsEnabled from an in-memory snapshot, so flag reads never touch the
// network. [Static] is a fixed map for tests and local development.
package featureflags
