package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oleg-messenger/oleg/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath normalizes paths to avoid high cardinality in metrics.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/files/") && len(path) > len("/files/"):
		return "/files/:name"
	case strings.HasPrefix(path, "/api/rooms/") && strings.HasSuffix(path, "/messages"):
		return "/api/rooms/:room/messages"
	case strings.HasPrefix(path, "/api/guilds/"):
		return normalizeGuildPath(path)
	}
	return path
}

// normalizeGuildPath replaces guild and channel ids:
// /api/guilds/:gid/channels/:cid/threads.
func normalizeGuildPath(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/api/guilds/"), "/")
	out := []string{"/api/guilds", ":gid"}
	for i := 1; i < len(parts); i++ {
		if i == 2 && parts[1] == "channels" {
			out = append(out, ":cid")
			continue
		}
		out = append(out, parts[i])
	}
	return strings.Join(out, "/")
}
