package api

import (
	"net/http"
	"strconv"

	"github.com/platinummonkey/sentinel/pkg/audit"
	"github.com/platinummonkey/sentinel/pkg/httputil"
	"github.com/platinummonkey/sentinel/pkg/middleware"
)

type replaceRolesRequest struct {
	RoleIDs []int64 `json:"role_ids"`
}

// listPermissions returns the static permission catalogue, sorted by
// category then code.
func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"permissions": s.rbacSvc.Registry().List(),
	})
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r)
	roles, err := s.rbacSvc.ListRoles(r.Context(), &tenant.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

func (s *Server) getRole(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	tenant := middleware.GetTenant(r)

	cfg, err := s.rbacSvc.GetRoleConfig(r.Context(), name, &tenant.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}

func (s *Server) getUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	tenant := middleware.GetTenant(r)

	assignments, err := s.rbacSvc.GetUserRoles(r.Context(), userID, tenant.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"assignments": assignments})
}

// replaceUserRoles swaps the user's full role set in one transaction
// and bumps their permission version, invalidating stale session
// snapshots everywhere.
func (s *Server) replaceUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req replaceRolesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	tenant := middleware.GetTenant(r)
	var grantedBy *int64
	if sess := middleware.GetSession(r); sess != nil {
		grantedBy = &sess.UserID
	}

	assignments, err := s.rbacSvc.ReplaceUserRoles(r.Context(), userID, tenant.ID, req.RoleIDs, grantedBy)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	s.recordAudit(r, &audit.Event{
		TenantID:  tenant.ID,
		Type:      audit.EventRolesReplaced,
		SubjectID: &userID,
		Detail:    map[string]string{"roles": strconv.Itoa(len(assignments))},
	})

	httputil.WriteSuccess(w, map[string]interface{}{"assignments": assignments})
}

func (s *Server) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	tenant := middleware.GetTenant(r)

	perms, err := s.rbacSvc.GetUserPermissions(r.Context(), userID, tenant.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": perms})
}
