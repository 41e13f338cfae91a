package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ayush/sessionauth/internal/logger"
)

// RequestLogger attaches log to the request context, tagged with chi's
// request id, and logs each request once it completes.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logger.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))

			reqLog := log.With(
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("ip", r.RemoteAddr),
			)
			ctx = logger.NewContext(ctx, reqLog)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				reqLog.Error(ctx, "request failed", fields...)
				return
			}
			reqLog.Info(ctx, "request completed", fields...)
		})
	}
}
