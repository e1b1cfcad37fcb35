package audit

import (
	"time"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventSignIn          EventType = "auth.sign_in"
	EventSignInFailed    EventType = "auth.sign_in_failed"
	EventSignOut         EventType = "auth.sign_out"
	EventRolesReplaced   EventType = "rbac.roles_replaced"
	EventMemberAdded     EventType = "tenant.member_added"
	EventMemberRemoved   EventType = "tenant.member_removed"
	EventSessionsRevoked EventType = "session.revoked_all"
)

// Event is one audit trail entry. ActorID is the authenticated user who
// performed the action; SubjectID is the user acted upon, when different.
type Event struct {
	ID        int64             `json:"id"`
	TenantID  int64             `json:"tenant_id"`
	Type      EventType         `json:"type"`
	ActorID   *int64            `json:"actor_id,omitempty"`
	SubjectID *int64            `json:"subject_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Type      EventType
	SubjectID int64
	Limit     int
	Offset    int
}
