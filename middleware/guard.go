package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pulseapp/identity"
)

// Authenticator resolves a bearer token. *identity.Engine implements it.
type Authenticator interface {
	GetAuthenticatedUser(ctx context.Context, accessToken string) (*identity.Session, *identity.User, error)
}

type sessionContextKey struct{}
type userContextKey struct{}

func SessionFromContext(ctx context.Context) (*identity.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*identity.Session)
	return s, ok
}

func UserFromContext(ctx context.Context) (*identity.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*identity.User)
	return u, ok
}

// RequireSession rejects requests without a valid bearer session with 401,
// or 403 when the owning account is disabled.
func RequireSession(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, user, err := auth.GetAuthenticatedUser(r.Context(), token)
			switch {
			case errors.Is(err, identity.ErrAccountDisabled):
				http.Error(w, "account disabled", http.StatusForbidden)
				return
			case err != nil:
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
			ctx = context.WithValue(ctx, userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
