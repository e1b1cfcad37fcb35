package rbac

import (
	"time"
)

// Role represents a named bundle of permission codes. Built-in roles are
// seeded by migrations and immutable; custom roles are tenant-scoped.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	TenantID    *int64    `json:"tenant_id,omitempty"` // nil for built-in roles
	Permissions []string  `json:"permissions"`
	IsBuiltIn   bool      `json:"is_built_in"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasPermission reports whether the role grants the given permission code.
func (r *Role) HasPermission(code string) bool {
	for _, p := range r.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// RoleConfig is the display-oriented view of a role. Enforcement never
// reads it; permission checks go through the resolved snapshot instead.
type RoleConfig struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// RoleAssignment binds a role to a user within one tenant.
type RoleAssignment struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	RoleName  string     `json:"role_name,omitempty"`
	TenantID  int64      `json:"tenant_id"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Principal is the authenticated caller as seen by permission checks: the
// session's identity plus its embedded permission snapshot. The session
// itself stays owned by the authentication layer; checks only read this view.
type Principal struct {
	SessionID         string
	UserID            int64
	TenantID          int64
	Permissions       []string
	PermissionVersion int64
}

// HasPermission reports whether the snapshot contains the given code.
// Callers must not use this directly for enforcement; Service.RequirePermission
// validates snapshot freshness first.
func (p *Principal) HasPermission(code string) bool {
	for _, c := range p.Permissions {
		if c == code {
			return true
		}
	}
	return false
}

// Built-in role names.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)
