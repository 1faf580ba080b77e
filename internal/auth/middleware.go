// internal/auth/middleware.go

package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/imadgeboyega/marketplace-auth/internal/common/utils"
)

type contextKey string

const identityKey contextKey = "identity"

// Middleware provides authentication middleware
type Middleware struct {
	service Service
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service Service) *Middleware {
	return &Middleware{
		service: service,
	}
}

// Authorize protects a route with a role gate. It verifies the bearer access
// token, loads the caller's current role and checks it against roles.
// route labels the denial metrics.
func (m *Middleware) Authorize(route string, roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Extract token from Authorization header
			token := extractBearerToken(r)
			if token == "" {
				m.deny(w, route, "Missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			// 2. Resolve the caller
			identity, err := m.service.Authorize(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrInvalidToken) {
					log.Printf("Authorization lookup failed: %v", err)
					utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
					return
				}
				m.deny(w, route, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			// 3. Check the role
			if !allowed[identity.Role] {
				m.deny(w, route, "Insufficient permissions", http.StatusForbidden)
				return
			}

			// 4. Pass to the next handler with the caller attached
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func (m *Middleware) deny(w http.ResponseWriter, route, message string, status int) {
	authorizationDenialsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	utils.ErrorResponse(w, message, status)
}

// extractBearerToken extracts the token from the Authorization header
// Supports "Bearer <token>" format
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

// WithIdentity attaches the authenticated caller to ctx
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentityFromContext returns the caller set by Authorize
func GetIdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}
