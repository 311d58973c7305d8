// Package middleware provides HTTP middleware for the skin bot API.
package middleware

import "net/http"

// CORS returns middleware that handles CORS headers. An empty
// allowedOrigin or "*" admits any origin; credentials are only allowed
// for an explicitly configured origin.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := origin != "" && (allowedOrigin == "" || allowedOrigin == "*" || allowedOrigin == origin)
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				if allowedOrigin != "" && allowedOrigin != "*" && allowedOrigin == origin {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
