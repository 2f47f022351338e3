// Package api implements the device-facing and admin REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminAuth returns middleware that validates the admin Bearer token.
// Admin routes have no disabled mode: requests must carry a valid
// "Authorization: Bearer <token>" header.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
