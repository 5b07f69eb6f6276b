package middleware

import (
	"net/http"
	"strings"
)

// SecurityConfig selects the header set for the deployment.
type SecurityConfig struct {
	HSTS bool // only behind TLS
}

// SecurityHeaders adds security headers to all responses. Uploaded files are
// user content, so they are sandboxed and may only render as images or
// downloads.
func SecurityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			switch {
			case strings.HasPrefix(r.URL.Path, "/files/"):
				h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; style-src 'unsafe-inline'; sandbox")
				h.Set("Cross-Origin-Resource-Policy", "same-site")
			case r.URL.Path == "/ws":
				// Upgrade responses carry no document.
			default:
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize limits request body size.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// multipartRoutes accept file uploads; every other body must be JSON.
var multipartRoutes = []string{"/api/upload", "/api/upload_avatar", "/emojis", "/stickers"}

func acceptsMultipart(path string) bool {
	for _, p := range multipartRoutes {
		if path == p || strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// ValidateRequest rejects bodies of the wrong type and URLs carrying
// traversal or script injection patterns.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			multipart := strings.HasPrefix(ct, "multipart/form-data")
			switch {
			case r.ContentLength == 0 && ct == "":
				// Allow empty body with no content-type
			case multipart && acceptsMultipart(r.URL.Path):
			case multipart:
				jsonError(w, http.StatusUnsupportedMediaType, "multipart bodies are only accepted by upload routes")
				return
			case !strings.HasPrefix(ct, "application/json"):
				jsonError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
				return
			}
		}

		if containsSuspiciousPatterns(r.URL.Path) || containsSuspiciousPatterns(r.URL.RawQuery) {
			jsonError(w, http.StatusBadRequest, "invalid request")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// containsSuspiciousPatterns checks for common attack patterns.
func containsSuspiciousPatterns(input string) bool {
	if input == "" {
		return false
	}

	suspicious := []string{
		"..",          // Path traversal
		"//",          // Path manipulation
		"%2e%2e",      // Encoded traversal
		"<script",     // XSS
		"javascript:", // XSS
		"vbscript:",   // XSS
		"onload=",     // XSS event handlers
		"onerror=",    // XSS event handlers
	}

	lower := strings.ToLower(input)
	for _, s := range suspicious {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
