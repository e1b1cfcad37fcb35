package api

import (
	"net/http"

	"github.com/platinummonkey/sentinel/pkg/audit"
	"github.com/platinummonkey/sentinel/pkg/httputil"
	"github.com/platinummonkey/sentinel/pkg/middleware"
	"github.com/platinummonkey/sentinel/pkg/rbac"
	"github.com/platinummonkey/sentinel/pkg/session"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID int64  `json:"tenant_id"`
}

type sessionResponse struct {
	SessionID   string   `json:"session_id"`
	UserID      int64    `json:"user_id"`
	Email       string   `json:"email"`
	TenantID    int64    `json:"tenant_id"`
	Permissions []string `json:"permissions"`
	ExpiresAt   int64    `json:"expires_at"`
}

func toSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		Email:       sess.Email,
		TenantID:    sess.TenantID,
		Permissions: sess.Permissions,
		ExpiresAt:   sess.ExpiresAt.UnixMilli(),
	}
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.identity.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, user)
}

// signIn authenticates the user and binds a new session to the
// requested tenant. Membership is checked up front: a valid credential
// never yields a session in a tenant the user does not belong to.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequirePositive(w, req.TenantID, "tenant_id") {
		return
	}

	user, err := s.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	sess, err := s.issueSession(w, r, user.ID, user.Email, req.TenantID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	s.recordAudit(r, &audit.Event{
		TenantID: sess.TenantID,
		Type:     audit.EventSignIn,
		ActorID:  &user.ID,
	})

	httputil.WriteSuccess(w, toSessionResponse(sess))
}

// issueSession validates tenant membership, snapshots permissions and
// issues the session cookie.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, userID int64, email string, tenantID int64) (*session.Session, error) {
	tenant, err := s.tenants.GetTenant(r.Context(), tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, rbac.NewNotFound("tenant")
	}

	isMember, err := s.tenants.IsMember(r.Context(), tenantID, userID)
	if err != nil {
		return nil, rbac.NewInternal(err)
	}
	if !isMember {
		return nil, &rbac.Error{
			Code:    rbac.CodePermissionDenied,
			Message: "user is not a member of the tenant",
		}
	}

	perms, version, err := s.rbacSvc.PermissionSnapshot(r.Context(), userID, tenantID)
	if err != nil {
		return nil, rbac.NewInternal(err)
	}

	sess, err := s.binder.Issue(r.Context(), userID, email, tenantID, perms, version)
	if err != nil {
		return nil, rbac.NewInternal(err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   s.sessionCfg.CookieDomain,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.sessionCfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	return sess, nil
}

// signOut revokes the caller's session. Idempotent: signing out without
// a session succeeds.
func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.ExtractSessionID(r)
	if sessionID != "" {
		if err := s.binder.Revoke(r.Context(), sessionID); err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.sessionCfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.sessionCfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	httputil.WriteNoContent(w)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)
	if sess == nil {
		httputil.WriteAuthRequired(w)
		return
	}
	httputil.WriteSuccess(w, toSessionResponse(sess))
}
