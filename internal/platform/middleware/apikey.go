package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// APIKeyHeader is the static credential header expected on registration
// endpoints. The health and metrics endpoints stay open.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key header does not match the
// configured key. Comparison is constant-time.
func RequireAPIKey(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				logger.WarnContext(r.Context(), "unauthorized request",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":"failed","message":"invalid or missing API key","error_code":"INVALID_DATA"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
