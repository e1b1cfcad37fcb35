package middleware

import (
	"net/http"

	"github.com/platinummonkey/sentinel/pkg/httputil"
	"github.com/platinummonkey/sentinel/pkg/rbac"
)

// RequirePermission wraps a handler with a permission check. The
// session middleware must run first; a request that reaches this guard
// without a session fails AUTH_REQUIRED.
func RequirePermission(checker *rbac.Service, code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := GetSession(r)
			if sess == nil {
				httputil.WriteAuthRequired(w)
				return
			}

			principal := sess.Principal()
			if err := checker.RequirePermission(r.Context(), principal, code); err != nil {
				httputil.WriteDomainError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
