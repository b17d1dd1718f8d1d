package audit

import (
	"net/http"
	"time"

	"github.com/platinummonkey/fuelops/pkg/contextkeys"
)

// Middleware places the audit logger in the request context and records
// rejected mutations
type Middleware struct {
	logger Logger
}

// NewMiddleware creates a new audit middleware
func NewMiddleware(logger Logger) *Middleware {
	if logger == nil {
		logger = NoOpLogger()
	}
	return &Middleware{logger: logger}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps an HTTP handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx := WithLogger(r.Context(), m.logger)
		ctx = contextkeys.WithRequestStartTime(ctx, startTime)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		r = r.WithContext(ctx)
		next.ServeHTTP(wrapped, r)

		if !shouldLogRequest(r, wrapped.statusCode) {
			return
		}

		status := EventStatusFailure
		if wrapped.statusCode == http.StatusForbidden {
			status = EventStatusDenied
		}
		event := buildBaseEvent(ctx, EventType("http."+r.Method), status)
		event.Method = r.Method
		event.Path = r.URL.Path
		event.StatusCode = wrapped.statusCode
		event.IPAddress = clientIP(r)
		event.UserAgent = r.UserAgent()
		event.Metadata["duration_ms"] = time.Since(startTime).Milliseconds()
		_ = m.logger.Log(ctx, event)
	})
}

// Only rejected mutations are logged here; successful ones are logged by the
// lifecycle service with their before/after values.
func shouldLogRequest(r *http.Request, statusCode int) bool {
	if statusCode < http.StatusBadRequest {
		return false
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
