package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAPIKey guards the /api routes with a static bearer key. An empty
// key leaves the explorer open, which is the local default.
func (e *Explorer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if got == "" {
			got = r.Header.Get("X-API-Key")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(e.apiKey)) != 1 {
			e.error(w, http.StatusUnauthorized, "unauthorized", "missing or invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
