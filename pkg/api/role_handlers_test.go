package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

func signInAs(t *testing.T, h *testHarness, email, password string, tenantID int64) *http.Cookie {
	t.Helper()
	rec := h.do(jsonRequest("POST", "/api/v1/auth/signin", signInRequest{
		Email: email, Password: password, TenantID: tenantID,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

func withCookie(req *http.Request, cookie *http.Cookie) *http.Request {
	req.AddCookie(cookie)
	return req
}

func seedViewerRole(h *testHarness) {
	h.roles.roles[2] = rbac.Role{ID: 2, Name: "viewer", Permissions: []string{
		"users:read", "roles:read", "tenants:read",
	}, IsBuiltIn: true}
}

func TestListPermissionsRequiresSession(t *testing.T) {
	h := newTestHarness(t)

	rec := h.do(httptest.NewRequest("GET", "/api/v1/permissions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTenantRoutesRequireSessionBeforeTenantLookup(t *testing.T) {
	h := newTestHarness(t)
	h.seedAdmin(t)

	// Anonymous callers get AUTH_REQUIRED whether or not the tenant
	// exists; tenant resolution only runs for live sessions.
	for _, path := range []string{"/api/v1/tenants/1/roles", "/api/v1/tenants/999/roles", "/api/v1/tenants/bogus/roles"} {
		rec := h.do(httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "AUTH_REQUIRED", path)
	}
}

func TestListPermissionsSorted(t *testing.T) {
	h := newTestHarness(t)
	h.seedAdmin(t)
	cookie := signInAs(t, h, "admin@example.com", "admin-password", 1)

	rec := h.do(withCookie(httptest.NewRequest("GET", "/api/v1/permissions", nil), cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Permissions []rbac.PermissionInfo `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Permissions)
	for i := 1; i < len(resp.Permissions); i++ {
		prev, cur := resp.Permissions[i-1], resp.Permissions[i]
		ordered := prev.Category < cur.Category ||
			(prev.Category == cur.Category && prev.Code <= cur.Code)
		assert.True(t, ordered, "catalogue out of order at %d: %v then %v", i, prev, cur)
	}
}

func TestReplaceUserRolesBumpsVersion(t *testing.T) {
	h := newTestHarness(t)
	admin := h.seedAdmin(t)
	seedViewerRole(h)
	cookie := signInAs(t, h, "admin@example.com", "admin-password", 1)

	target, err := h.identity.SignUp(context.Background(), "bob@example.com", "bob-password", "Bob")
	require.NoError(t, err)
	require.NoError(t, h.tenants.AddMember(context.Background(), 1, target.ID, &admin.ID))

	rec := h.do(withCookie(jsonRequest("PUT", "/api/v1/tenants/1/users/2/roles",
		replaceRolesRequest{RoleIDs: []int64{2}}), cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	version, err := h.versions.Get(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestReplaceUserRolesUnknownRoleNoPartialWrite(t *testing.T) {
	h := newTestHarness(t)
	h.seedAdmin(t)
	seedViewerRole(h)
	cookie := signInAs(t, h, "admin@example.com", "admin-password", 1)

	target, err := h.identity.SignUp(context.Background(), "bob@example.com", "bob-password", "Bob")
	require.NoError(t, err)
	h.roles.assignments[target.ID] = []rbac.RoleAssignment{{UserID: target.ID, RoleID: 2, RoleName: "viewer", TenantID: 1}}

	rec := h.do(withCookie(jsonRequest("PUT", "/api/v1/tenants/1/users/2/roles",
		replaceRolesRequest{RoleIDs: []int64{2, 999}}), cookie))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Prior assignments untouched, no version bump.
	assert.Len(t, h.roles.assignments[target.ID], 1)
	version, err := h.versions.Get(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
}

func TestDemotedAdminLosesAccessMidSession(t *testing.T) {
	h := newTestHarness(t)
	h.seedAdmin(t)
	seedViewerRole(h)
	cookie := signInAs(t, h, "admin@example.com", "admin-password", 1)

	// A write the session's snapshot permits.
	rec := h.do(withCookie(httptest.NewRequest("GET", "/api/v1/tenants/1/members", nil), cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	// Demote the admin to viewer (bumps their permission version).
	rec = h.do(withCookie(jsonRequest("PUT", "/api/v1/tenants/1/users/1/roles",
		replaceRolesRequest{RoleIDs: []int64{2}}), cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The same session, still carrying the old full snapshot, now fails
	// a write check: the stale snapshot is re-resolved, not trusted.
	rec = h.do(withCookie(jsonRequest("POST", "/api/v1/tenants/1/members",
		addMemberRequest{UserID: 99}), cookie))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Reads allowed to viewers still work.
	rec = h.do(withCookie(httptest.NewRequest("GET", "/api/v1/tenants/1/members", nil), cookie))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUserPermissions(t *testing.T) {
	h := newTestHarness(t)
	h.seedAdmin(t)
	cookie := signInAs(t, h, "admin@example.com", "admin-password", 1)

	rec := h.do(withCookie(httptest.NewRequest("GET", "/api/v1/tenants/1/users/1/permissions", nil), cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Permissions, "roles:assign")
}

func TestRevokeUserSessions(t *testing.T) {
	h := newTestHarness(t)
	admin := h.seedAdmin(t)
	seedViewerRole(h)
	adminCookie := signInAs(t, h, "admin@example.com", "admin-password", 1)

	// A second user with their own session.
	bob, err := h.identity.SignUp(context.Background(), "bob@example.com", "bob-password", "Bob")
	require.NoError(t, err)
	require.NoError(t, h.tenants.AddMember(context.Background(), 1, bob.ID, &admin.ID))
	h.roles.assignments[bob.ID] = []rbac.RoleAssignment{{UserID: bob.ID, RoleID: 2, RoleName: "viewer", TenantID: 1}}
	bobCookie := signInAs(t, h, "bob@example.com", "bob-password", 1)

	rec := h.do(withCookie(httptest.NewRequest("DELETE", "/api/v1/tenants/1/users/2/sessions", nil), adminCookie))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Revoked int `json:"revoked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Revoked)

	// Bob's session no longer works.
	rec = h.do(withCookie(httptest.NewRequest("GET", "/api/v1/tenants/1/members", nil), bobCookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRemoveMemberRevokesSessions(t *testing.T) {
	h := newTestHarness(t)
	admin := h.seedAdmin(t)
	seedViewerRole(h)
	adminCookie := signInAs(t, h, "admin@example.com", "admin-password", 1)

	bob, err := h.identity.SignUp(context.Background(), "bob@example.com", "bob-password", "Bob")
	require.NoError(t, err)
	require.NoError(t, h.tenants.AddMember(context.Background(), 1, bob.ID, &admin.ID))
	h.roles.assignments[bob.ID] = []rbac.RoleAssignment{{UserID: bob.ID, RoleID: 2, RoleName: "viewer", TenantID: 1}}
	bobCookie := signInAs(t, h, "bob@example.com", "bob-password", 1)

	rec := h.do(withCookie(httptest.NewRequest("DELETE", "/api/v1/tenants/1/members/2", nil), adminCookie))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(withCookie(httptest.NewRequest("GET", "/api/v1/tenants/1/members", nil), bobCookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestViewerCannotAssignRoles(t *testing.T) {
	h := newTestHarness(t)
	admin := h.seedAdmin(t)
	seedViewerRole(h)

	bob, err := h.identity.SignUp(context.Background(), "bob@example.com", "bob-password", "Bob")
	require.NoError(t, err)
	require.NoError(t, h.tenants.AddMember(context.Background(), 1, bob.ID, &admin.ID))
	h.roles.assignments[bob.ID] = []rbac.RoleAssignment{{UserID: bob.ID, RoleID: 2, RoleName: "viewer", TenantID: 1}}
	bobCookie := signInAs(t, h, "bob@example.com", "bob-password", 1)

	rec := h.do(withCookie(jsonRequest("PUT", "/api/v1/tenants/1/users/1/roles",
		replaceRolesRequest{RoleIDs: []int64{2}}), bobCookie))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
