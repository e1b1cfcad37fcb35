package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/sentinel/pkg/audit"
	"github.com/platinummonkey/sentinel/pkg/httputil"
	"github.com/platinummonkey/sentinel/pkg/middleware"
)

type addMemberRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	members, err := s.tenants.ListMembers(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.UserID, "user_id") {
		return
	}

	tenant := middleware.GetTenant(r)
	var invitedBy *int64
	if sess := middleware.GetSession(r); sess != nil {
		invitedBy = &sess.UserID
	}

	if err := s.tenants.AddMember(r.Context(), tenant.ID, req.UserID, invitedBy); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	s.recordAudit(r, &audit.Event{
		TenantID:  tenant.ID,
		Type:      audit.EventMemberAdded,
		SubjectID: &req.UserID,
	})

	httputil.WriteCreated(w, map[string]interface{}{
		"tenant_id": tenant.ID,
		"user_id":   req.UserID,
	})
}

// removeMember drops the membership and the user's role assignments in
// the tenant, then revokes their sessions so access ends immediately.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	tenant := middleware.GetTenant(r)

	if err := s.tenants.RemoveMember(r.Context(), tenant.ID, userID); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if _, err := s.binder.RevokeAllForUser(r.Context(), userID); err != nil {
		s.logger.WithError(err).Warn("failed to revoke sessions for removed member")
	}

	s.recordAudit(r, &audit.Event{
		TenantID:  tenant.ID,
		Type:      audit.EventMemberRemoved,
		SubjectID: &userID,
	})

	httputil.WriteNoContent(w)
}

func (s *Server) revokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	dropped, err := s.binder.RevokeAllForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	tenant := middleware.GetTenant(r)
	s.recordAudit(r, &audit.Event{
		TenantID:  tenant.ID,
		Type:      audit.EventSessionsRevoked,
		SubjectID: &userID,
		Detail:    map[string]string{"revoked": strconv.Itoa(dropped)},
	})

	httputil.WriteSuccess(w, map[string]interface{}{"revoked": dropped})
}
