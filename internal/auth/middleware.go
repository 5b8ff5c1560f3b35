package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/talentcomp/comprec/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// Identity is the authenticated caller attached to request contexts.
type Identity struct {
	Email    string
	Name     string
	UserType models.UserType
}

// Middleware rejects requests without a valid bearer token and attaches the
// caller identity to the request context.
func Middleware(jwtManager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := ""
			if strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			} else if t := r.URL.Query().Get("token"); t != "" {
				// EventSource and websocket clients cannot set headers.
				token = t
			}
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := jwtManager.Verify(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			identity := &Identity{
				Email:    claims.Email,
				Name:     claims.Name,
				UserType: claims.UserType,
			}
			ctx := context.WithValue(r.Context(), userContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the authenticated caller, nil when the request
// bypassed the middleware.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(userContextKey).(*Identity)
	return id
}
