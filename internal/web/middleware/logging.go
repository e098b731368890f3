// Package middleware provides HTTP middleware for the web server.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/benjaminschreck/go-mailmerge/internal/logging"
)

// Logger logs one structured entry per request with method, path, status,
// duration_ms, ip and user_agent. Entries carry the chi request id when the
// RequestID middleware runs first.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		ip := r.RemoteAddr
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		logger := logging.FromContext(r.Context())
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ip,
			"user_agent", r.UserAgent(),
		}
		// Progress polling is frequent; keep it out of info logs.
		if ww.status < http.StatusBadRequest && r.Method == http.MethodGet && isPolling(r.URL.Path) {
			logger.Debug("request", attrs...)
			return
		}
		logger.Info("request", attrs...)
	})
}

func isPolling(path string) bool {
	return strings.HasPrefix(path, "/progress/")
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
