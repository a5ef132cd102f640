package middleware

import (
	"crypto/subtle"
	"net/http"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminAuth gates the admin route group behind a shared API key. With no
// key configured the whole group is disabled rather than left open.
func AdminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				http.Error(w, "Admin API is disabled", http.StatusForbidden)
				return
			}

			provided := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
