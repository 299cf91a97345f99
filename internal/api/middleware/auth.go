package middleware

import (
	"context"
	"net/http"

	"github.com/hexrift/licensor/internal/api/response"
	"github.com/hexrift/licensor/internal/model"
)

type contextKey string

// APIKeyIdentityKey carries the authenticated admin key through the request
// context.
const APIKeyIdentityKey contextKey = "api_key_identity"

// Authenticator resolves a raw API key to its stored record.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*model.APIKey, error)
}

// Auth returns a middleware that validates the X-API-Key header.
func Auth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			identity, err := auth.Authenticate(r.Context(), key)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the authenticated API key, or nil on public
// routes.
func IdentityFromContext(ctx context.Context) *model.APIKey {
	identity, _ := ctx.Value(APIKeyIdentityKey).(*model.APIKey)
	return identity
}
