package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pulseapp/identity"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

type requestIDContextKey struct{}

// MetadataOptions controls which client-supplied headers are trusted.
type MetadataOptions struct {
	// TrustProxyHeaders honors CF-Connecting-IP, X-Forwarded-For and the
	// CF-IP* geo headers. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// RequestMetadata attaches client IP, user agent, geo and a request ID to
// the request context.
func RequestMetadata(opts MetadataOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)
			ctx = context.WithValue(ctx, requestIDContextKey{}, requestID)

			ctx = identity.WithClientIP(ctx, ClientIP(r, opts.TrustProxyHeaders))
			ctx = identity.WithUserAgent(ctx, r.UserAgent())
			if opts.TrustProxyHeaders {
				ctx = identity.WithGeo(ctx, identity.Geo{
					Country: r.Header.Get("CF-IPCountry"),
					Region:  r.Header.Get("CF-Region"),
					City:    r.Header.Get("CF-IPCity"),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the ID assigned by [RequestMetadata].
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// ClientIP resolves the caller address. With trustProxy it prefers
// CF-Connecting-IP, then the first X-Forwarded-For entry.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
			return ip
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
