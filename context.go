package identity

import (
	"context"
	"strings"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type geoContextKey struct{}

// Geo is the coarse location a fronting proxy resolved for the client.
type Geo struct {
	Country string
	Region  string
	City    string
}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it
// for per-IP throttling, captcha verification, audit and session origin.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is stored on
// issued sessions and drives device classification.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func WithGeo(ctx context.Context, geo Geo) context.Context {
	return context.WithValue(ctx, geoContextKey{}, geo)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func geoFromContext(ctx context.Context) Geo {
	if ctx == nil {
		return Geo{}
	}
	geo, _ := ctx.Value(geoContextKey{}).(Geo)
	return geo
}

func locationFromContext(ctx context.Context) Location {
	geo := geoFromContext(ctx)
	return Location{
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Country:   strings.TrimSpace(geo.Country),
		Region:    strings.TrimSpace(geo.Region),
		City:      strings.TrimSpace(geo.City),
	}
}
