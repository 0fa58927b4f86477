// Package security builds the secret-free posture report the engine
// exposes through Engine.SecurityReport.
package security
