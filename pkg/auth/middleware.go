package auth

import (
	"net/http"
	"strings"

	apperrors "github.com/chainsafe/htlc-resolver/pkg/app/errors"
	apphttp "github.com/chainsafe/htlc-resolver/pkg/app/http"
)

// RequireRole rejects requests without a valid bearer token for role.
// When m has no secret configured every request passes.
func RequireRole(m *TokenManager, role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.IsConfigured() {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r)
			if !ok {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(nil, "missing bearer token"))
				return
			}
			claims, err := m.ValidateToken(raw)
			if err != nil {
				apphttp.DefaultErrorHandler(w, apperrors.UnAuthorizedError(err, "invalid token"))
				return
			}
			if !claims.Role.Allows(role) {
				apphttp.DefaultErrorHandler(w, apperrors.ForbiddenError(nil, "role "+string(claims.Role)+" may not call this endpoint"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
