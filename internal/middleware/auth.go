package middleware

import (
	"net/http"

	"plantstore-be/internal/auth"
	"plantstore-be/internal/logger"
	"plantstore-be/internal/utils"

	"go.uber.org/zap"
)

// RequireAdmin rejects requests without a valid admin token in the session
// cookie or Authorization header.
func RequireAdmin(issuer *auth.Issuer, session auth.SessionCookie) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := session.Token(r)
			if tokenStr == "" {
				utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.Parse(tokenStr)
			if err != nil {
				logger.FromCtx(r.Context()).Warn("admin token rejected", zap.Error(err))
				utils.WriteJSONError(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
