// internal/middleware/auth.go
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dangerclosesec/coursehub/internal/auth"
	"github.com/google/uuid"
)

type contextKey string

const (
	claimsKey contextKey = "coursehub_claims"
	userIDKey contextKey = "coursehub_user_id"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Claims *auth.Claims
}

// AuthMiddleware validates the Supabase bearer token and stores the caller
// in the request context.
func AuthMiddleware(tokenManager *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "No authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization header")
				return
			}

			claims, err := tokenManager.Validate(parts[1])
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			if id, err := claims.UserID(); err == nil {
				ctx = context.WithValue(ctx, userIDKey, id)
			} else if !claims.IsServiceRole() {
				respondWithError(w, http.StatusUnauthorized, "Invalid token subject")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth lets anonymous requests through but still rejects a bad token.
func OptionalAuth(tokenManager *auth.TokenManager) func(http.Handler) http.Handler {
	required := AuthMiddleware(tokenManager)
	return func(next http.Handler) http.Handler {
		strict := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			strict.ServeHTTP(w, r)
		})
	}
}

// RequireServiceRole only admits tokens carrying the service_role claim.
func RequireServiceRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || !claims.IsServiceRole() {
			respondWithError(w, http.StatusForbidden, "Service role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// PrincipalFromContext returns the caller; ok is false for anonymous and
// service-role requests that carry no user id.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return Principal{}, false
	}
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	if !ok {
		return Principal{}, false
	}
	return Principal{UserID: id, Email: claims.Email, Claims: claims}, true
}

// WithPrincipal stores claims as if AuthMiddleware had validated them.
func WithPrincipal(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	if id, err := claims.UserID(); err == nil {
		ctx = context.WithValue(ctx, userIDKey, id)
	}
	return ctx
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{"ok": false, "error": message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
