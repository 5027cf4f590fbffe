package httpapi

import (
	"expvar"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	requestsTotal  = expvar.NewInt("requests_total")
	requestsErrors = expvar.NewInt("requests_errors_total")
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware assigns a request id when the caller sent none and writes
// one access log line per request.
func LoggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		duration := time.Since(start)
		requestsTotal.Add(1)

		event := logger.Info()
		if writer.status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		if writer.status >= http.StatusBadRequest {
			requestsErrors.Add(1)
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", duration.Milliseconds()).
			Str("request_id", requestID).
			Msg("request")
	})
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
