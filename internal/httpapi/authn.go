package httpapi

import (
	"net/http"
	"strings"

	"coursebase.org/internal/auth"
)

const bearerPrefix = "Bearer "

// withAuth authenticates the bearer token and attaches the verified claims
// to the request context. The three failure modes carry distinct messages
// so clients can tell a missing header from a malformed one from a bad
// token, while the token failure itself stays opaque.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			writeError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		claims := a.tokens.VerifyAccessToken(raw)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "Token expired or invalid")
			return
		}
		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
