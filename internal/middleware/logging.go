package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fotoljay/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const accessLogKey contextKey = "access_log"

// accessLog is filled in by inner middleware for the outer request log
type accessLog struct {
	userID string
}

// noteActor records the authenticated user on the request log, if any
func noteActor(ctx context.Context, userID string) {
	if entry, ok := ctx.Value(accessLogKey).(*accessLog); ok {
		entry.userID = userID
	}
}

// LoggingMiddleware writes one access log line per request and records its
// latency by route pattern.
func LoggingMiddleware(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &accessLog{}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), accessLogKey, entry)))

			elapsed := time.Since(start)
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(r.Method, route, status, elapsed)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
			}
			if entry.userID != "" {
				fields = append(fields, zap.String("user_id", entry.userID))
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("Request completed", fields...)
			case route == "/health" || strings.HasPrefix(route, "/metrics"):
				logger.Debug("Request completed", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
		})
	}
}
