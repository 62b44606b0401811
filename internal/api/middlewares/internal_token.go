package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

const tokenHeader = "X-Internal-Token"

// InternalToken authenticates the surrounding application: every request
// must carry the shared internal token header. Comparison is constant-time.
func InternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(tokenHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing or invalid internal token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
