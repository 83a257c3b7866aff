package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
)

// TokenValidator resolves a plaintext API token to its user.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.User, error)
}

// AuthMiddleware authenticates requests via Bearer tokens.
type AuthMiddleware struct {
	tokens   TokenValidator
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(tokens TokenValidator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:   tokens,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		user, err := m.tokens.ValidateToken(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := auth.WithAuthContext(r.Context(), &auth.AuthContext{User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
