package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	pkghttp "github.com/ehgzao/Shipper-sub001/pkg/http"
)

// APIKeyHeader carries the shared service credential
const APIKeyHeader = "X-API-Key"

// RequireAPIKey authenticates service-to-service callers with a shared
// API key, compared in constant time.
func RequireAPIKey(apiKey string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(APIKeyHeader)
			if provided == "" {
				pkghttp.WriteUnauthorized(w, "missing API key")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				logger.Warn("request with invalid API key",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr))
				pkghttp.WriteUnauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
