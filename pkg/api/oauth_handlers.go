package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/sentinel/pkg/audit"
	"github.com/platinummonkey/sentinel/pkg/httputil"
)

// oauthStart issues a one-time state bound to the target tenant and
// redirects to the provider's authorization endpoint.
func (s *Server) oauthStart(w http.ResponseWriter, r *http.Request) {
	tenantIDStr := r.URL.Query().Get("tenant_id")
	tenantID, err := strconv.ParseInt(tenantIDStr, 10, 64)
	if err != nil || tenantID <= 0 {
		httputil.WriteValidationError(w, "tenant_id query parameter is required")
		return
	}

	state, err := s.states.Issue(r.Context(), tenantID)
	if err != nil {
		s.logger.WithError(err).Error("failed to issue oauth state")
		httputil.WriteDomainError(w, err)
		return
	}

	http.Redirect(w, r, s.oidc.AuthCodeURL(state), http.StatusFound)
}

// oauthCallback completes the flow: the state is consumed exactly once,
// the code exchanged and verified, and the external identity resolved
// to a local user. Retrying an interrupted callback re-finds the same
// user rather than creating a duplicate.
func (s *Server) oauthCallback(w http.ResponseWriter, r *http.Request) {
	tenantID, err := s.states.Consume(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		httputil.WriteValidationError(w, "invalid or expired oauth state")
		return
	}

	externalIdentity, err := s.oidc.HandleCallback(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.logger.WithError(err).Warn("oauth callback failed")
		httputil.WriteValidationError(w, "oauth sign-in failed")
		return
	}

	user, err := s.identity.FindOrCreateOAuthUser(r.Context(),
		externalIdentity.Provider, externalIdentity.Subject,
		externalIdentity.Email, externalIdentity.FullName)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	sess, err := s.issueSession(w, r, user.ID, user.Email, tenantID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	s.recordAudit(r, &audit.Event{
		TenantID: sess.TenantID,
		Type:     audit.EventSignIn,
		ActorID:  &user.ID,
		Detail:   map[string]string{"provider": externalIdentity.Provider},
	})

	httputil.WriteSuccess(w, toSessionResponse(sess))
}
