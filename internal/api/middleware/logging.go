package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// Logging logs each request and records it in m, which may be nil.
func Logging(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			elapsed := time.Since(start)
			route := routePattern(r)
			m.Request(r.Method, route, rw.status, elapsed)

			fields := []zap.Field{
				zap.String("id", GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", rw.status),
				zap.Duration("duration", elapsed),
				zap.String("remote", r.RemoteAddr),
			}
			if rw.status >= http.StatusInternalServerError {
				logger.L().Error("request", fields...)
				return
			}
			logger.L().Info("request", fields...)
		})
	}
}

// routePattern keeps metric labels bounded: ids in the path collapse
// into the chi pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
