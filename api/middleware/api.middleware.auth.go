// FilePath: api/middleware/api.middleware.auth.go
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/envimon/hub/internal/auth"
	"github.com/envimon/hub/internal/authz"
	"github.com/envimon/hub/internal/errors"
)

type contextKey string

const principalKey contextKey = "principal"

// AuthMiddleware validates bearer tokens and attaches the caller's
// principal to the request context.
type AuthMiddleware struct {
	tokens *auth.TokenService
}

func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate validates the token and adds the principal to context
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			handleError(w, errors.NewAuthError("no token provided", nil))
			return
		}

		claims, err := m.tokens.Parse(token)
		if err != nil {
			handleError(w, errors.NewAuthError("invalid token", err))
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			handleError(w, errors.NewAuthError("malformed token subject", err))
			return
		}

		principal := authz.Principal{
			UserID:     userID,
			Roles:      claims.Roles,
			CompanyIDs: claims.Companies,
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles middleware ensures the principal has all required roles
func (m *AuthMiddleware) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				handleError(w, errors.NewAuthError("no principal in context", nil))
				return
			}

			if !hasRequiredRoles(principal.Roles, roles) {
				handleError(w, errors.NewForbiddenError("insufficient permissions", nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (authz.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(authz.Principal)
	return principal, ok
}

// WithPrincipal returns a context carrying the principal. Used by tests and
// internal callers that bypass HTTP.
func WithPrincipal(ctx context.Context, principal authz.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

func extractToken(r *http.Request) string {
	bearerToken := r.Header.Get("Authorization")
	parts := strings.Split(bearerToken, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func hasRequiredRoles(userRoles, requiredRoles []string) bool {
	if len(requiredRoles) == 0 {
		return true
	}

	roleMap := make(map[string]bool)
	for _, role := range userRoles {
		roleMap[role] = true
	}

	for _, required := range requiredRoles {
		if !roleMap[required] {
			return false
		}
	}
	return true
}

func handleError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*errors.APIError); ok {
		w.Header().Set("Content-Type", "application/json")
		http.Error(w, apiErr.Message, apiErr.Code)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
