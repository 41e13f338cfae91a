package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayush/sessionauth/internal/logger"
)

type ctxKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session attached by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(ctxKey{}).(*Session)
	return sess
}

// Middleware loads the request's session into its context. A store failure
// ends the request with 500.
func (s *RedisStore) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Load(r.Context(), r)
		if err != nil {
			logger.Log(r.Context()).Error(r.Context(), "session load failed", zap.Error(err))
			http.Error(w, `{"error":"session store unavailable"}`, http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), sess)))
	})
}
