package middleware

import (
	"context"
	"errors"
	"net/http"

	"shelfwatch/pkg/auth"
	apperrors "shelfwatch/pkg/errors"
	httputil "shelfwatch/pkg/http"
	"shelfwatch/pkg/logger"
)

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the claims placed by Authentication.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// Authentication requires a valid bearer token on every request.
func Authentication(verifier auth.Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.Verify(r.Header.Get("Authorization"))
			if err != nil {
				rejectUnauthorized(w, log, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectUnauthorized(w http.ResponseWriter, log *logger.Logger, r *http.Request, err error) {
	log.Warn("Request rejected",
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)

	message := "Invalid token"
	if errors.Is(err, auth.ErrMissingToken) {
		message = "Missing bearer token"
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	if writeErr := httputil.WriteError(w, apperrors.Unauthorized(message)); writeErr != nil {
		log.Error("failed to write error response", "middleware", "Authentication", "operation", "WriteError", "error", writeErr)
	}
}
