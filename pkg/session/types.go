package session

import (
	"time"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

// Session ties a user to one tenant, a permission snapshot, and the
// permission version the snapshot was computed at. The tenant binding is
// immutable for the session's lifetime; presenting the session under a
// different tenant is rejected, never re-bound.
type Session struct {
	ID                string   `json:"id"`
	UserID            int64    `json:"user_id"`
	Email             string   `json:"email"`
	TenantID          int64    `json:"tenant_id"`
	Permissions       []string `json:"permissions"`
	PermissionVersion int64    `json:"permission_version"`
	LoggedInAt        int64    `json:"logged_in_at"` // epoch milliseconds
	ExpiresAt         time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Principal returns the permission-check view of the session.
func (s *Session) Principal() *rbac.Principal {
	return &rbac.Principal{
		SessionID:         s.ID,
		UserID:            s.UserID,
		TenantID:          s.TenantID,
		Permissions:       append([]string(nil), s.Permissions...),
		PermissionVersion: s.PermissionVersion,
	}
}
