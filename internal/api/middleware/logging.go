package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += int64(n)
	return n, err
}

// Flush forwards to the underlying writer when it supports flushing.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger returns a middleware that logs each request once it has been served.
// Aborted requests are logged before the panic continues.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			aborted := true
			defer func() {
				attrs := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", wrapped.status,
					"size", wrapped.size,
					"duration", time.Since(start),
					"remote_addr", r.RemoteAddr,
				}
				if id := middleware.GetReqID(r.Context()); id != "" {
					attrs = append(attrs, "request_id", id)
				}
				if aborted {
					attrs = append(attrs, "aborted", true)
					logger.Warn("http request", attrs...)
					return
				}
				logger.Info("http request", attrs...)
			}()

			next.ServeHTTP(wrapped, r)
			aborted = false
		})
	}
}
