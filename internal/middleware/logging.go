package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/zjoart/paystack-settlements/pkg/logger"
	"github.com/zjoart/paystack-settlements/pkg/utils"
)

// LoggingMiddleware tags every request with an id, echoed back in the
// X-Request-ID header, and logs its outcome.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(utils.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(utils.RequestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), utils.RequestIDKey, requestID))

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := logger.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rw.status,
			"duration":   time.Since(start).String(),
			"remote":     r.RemoteAddr,
		}
		if rw.status >= http.StatusInternalServerError {
			logger.Warn("Request failed", fields)
			return
		}
		logger.Info("Request completed", fields)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestID returns the id LoggingMiddleware attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(utils.RequestIDKey).(string)
	return id
}
