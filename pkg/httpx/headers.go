package httpx

import (
	"net/http"
	"strings"
)

// corsAllowedHeaders is the header allowlist advertised on pre-flight
// responses. The dashboard sends bearer tokens and provider API keys.
var corsAllowedHeaders = []string{
	"Authorization",
	"Content-Type",
	"X-Client-Info",
	"Apikey",
}

// CORS allows any origin with a specific header allowlist and answers
// OPTIONS pre-flights with an empty 204.
func CORS() Middleware {
	allowed := strings.Join(corsAllowedHeaders, ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders sets browser hardening headers on every response:
// no content sniffing, no framing, strict referrer, HSTS and a
// frame-ancestors-none content security policy.
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin")
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			h.Set("Content-Security-Policy", "frame-ancestors 'none'")

			next.ServeHTTP(w, r)
		})
	}
}
