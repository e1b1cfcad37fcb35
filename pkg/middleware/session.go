// Package middleware provides the HTTP authorization guard: session
// validation, tenant resolution and permission enforcement, applied in
// that order so an anonymous caller learns nothing about tenants before
// presenting a live session.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/sentinel/pkg/contextkeys"
	"github.com/platinummonkey/sentinel/pkg/httputil"
	"github.com/platinummonkey/sentinel/pkg/observability"
	"github.com/platinummonkey/sentinel/pkg/session"
)

// SessionCookieName is the cookie carrying the session ID.
const SessionCookieName = "sentinel_session"

// SessionMiddleware validates the caller's session. It runs before
// TenantContextMiddleware so that session absence short-circuits ahead
// of any tenant lookup; BindTenant then checks the session's tenant
// binding once the ambient tenant has been resolved.
type SessionMiddleware struct {
	binder *session.Binder
	logger *observability.Logger
}

// NewSessionMiddleware creates a new session middleware.
func NewSessionMiddleware(binder *session.Binder, logger *observability.Logger) *SessionMiddleware {
	return &SessionMiddleware{binder: binder, logger: logger}
}

// Handler wraps an HTTP handler with session validation. Requests
// without a live session fail AUTH_REQUIRED before any handler logic
// runs.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := ExtractSessionID(r)
		if sessionID == "" {
			httputil.WriteAuthRequired(w)
			return
		}

		sess, err := m.binder.Validate(r.Context(), sessionID)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r, sess)))
	})
}

// BindTenant checks the validated session against the ambient tenant.
// Routes without an ambient tenant pass through untouched.
func (m *SessionMiddleware) BindTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := GetTenant(r)
		sess := GetSession(r)
		if tenant != nil && sess != nil {
			if err := m.binder.BindTenant(sess, tenant.ID); err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func withSession(r *http.Request, sess *session.Session) context.Context {
	ctx := contextkeys.WithSession(r.Context(), sess)
	return contextkeys.WithUserID(ctx, strconv.FormatInt(sess.UserID, 10))
}

// ExtractSessionID pulls the session ID from the session cookie or, as
// a fallback, a bearer Authorization header.
func ExtractSessionID(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// GetSession extracts the validated session from the request context.
func GetSession(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(contextkeys.SessionKey).(*session.Session)
	return sess
}
