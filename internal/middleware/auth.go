package middleware

import (
	"net/http"

	"github.com/ayush/sessionauth/internal/auth"
	"github.com/ayush/sessionauth/internal/session"
)

// RequireLogin lets the request through only when its session carries a
// user id. Anonymous requests are redirected to loginPath and the wrapped
// handler is never invoked.
func RequireLogin(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.IsLoggedIn(session.FromContext(r.Context())) {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
