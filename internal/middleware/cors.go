// Package middleware provides HTTP middleware for the agentdesk API.
package middleware

import "net/http"

// The REST surface is GET/POST only. The WebSocket upgrade is a GET and does
// its own origin check in the chat handler.
const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type"
)

// CORS returns middleware that answers preflight requests and stamps CORS
// headers for allowed origins. "*" matches any origin, but credentials are
// granted only to origins listed explicitly; an echoed wildcard origin must
// never carry the identity cookie.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(allowedOrigins, origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				if originListed(allowedOrigins, origin) {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// originListed matches explicit entries only, never the wildcard.
func originListed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == origin && o != "*" {
			return true
		}
	}
	return false
}
