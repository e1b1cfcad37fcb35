package rbac

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/sentinel/pkg/observability"
)

// RoleStore is the persistence surface the service needs. *Store implements it.
type RoleStore interface {
	GetRoleByName(ctx context.Context, name string, tenantID *int64) (*Role, error)
	GetRolesByIDs(ctx context.Context, roleIDs []int64) ([]Role, error)
	GetUserAssignments(ctx context.Context, userID, tenantID int64) ([]RoleAssignment, error)
	ReplaceUserRoles(ctx context.Context, userID, tenantID int64, roleIDs []int64, grantedBy *int64) ([]RoleAssignment, error)
	ListRoles(ctx context.Context, tenantID *int64) ([]Role, error)
}

// SnapshotRefresher writes a re-resolved permission snapshot back into the
// session that carried a stale one. Implemented by the session binder; the
// RBAC service never touches session state directly.
type SnapshotRefresher interface {
	RefreshSnapshot(ctx context.Context, sessionID string, permissions []string, version int64) error
}

// Service resolves roles and permissions and enforces permission checks.
type Service struct {
	store     RoleStore
	versions  VersionStore
	registry  *Registry
	resolver  RoleResolver
	refresher SnapshotRefresher
	roleCache *lru.Cache[string, *RoleConfig]
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithSnapshotRefresher wires the session binder in for self-healing checks.
func WithSnapshotRefresher(r SnapshotRefresher) Option {
	return func(s *Service) { s.refresher = r }
}

// WithMetrics records check outcomes and stale re-resolutions.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the RBAC service.
func NewService(store RoleStore, versions VersionStore, registry *Registry, resolver RoleResolver, logger *observability.Logger, opts ...Option) *Service {
	roleCache, _ := lru.New[string, *RoleConfig](128)
	s := &Service{
		store:     store,
		versions:  versions,
		registry:  registry,
		resolver:  resolver,
		roleCache: roleCache,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the permission catalogue for display endpoints.
func (s *Service) Registry() *Registry {
	return s.registry
}

// ListRoles returns roles visible to the tenant: its own plus built-ins.
func (s *Service) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	roles, err := s.store.ListRoles(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// GetUserRole returns the user's primary role name, or ok=false when the
// user has no role in the tenant. Single-role view of the assignment set.
func (s *Service) GetUserRole(ctx context.Context, userID, tenantID int64) (string, bool, error) {
	assignments, err := s.store.GetUserAssignments(ctx, userID, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve user role: %w", err)
	}
	if len(assignments) == 0 {
		return "", false, nil
	}
	return assignments[0].RoleName, true, nil
}

// GetUserRoles returns all active role assignments for the user in the tenant.
func (s *Service) GetUserRoles(ctx context.Context, userID, tenantID int64) ([]RoleAssignment, error) {
	assignments, err := s.store.GetUserAssignments(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignments: %w", err)
	}
	return assignments, nil
}

// GetRoleConfig returns a role's display configuration, or NotFound if the
// role does not exist. Used for display, never for enforcement.
func (s *Service) GetRoleConfig(ctx context.Context, name string, tenantID *int64) (*RoleConfig, error) {
	cacheKey := name
	if tenantID != nil {
		cacheKey = fmt.Sprintf("%d:%s", *tenantID, name)
	}
	if cfg, ok := s.roleCache.Get(cacheKey); ok {
		return cfg, nil
	}

	role, err := s.store.GetRoleByName(ctx, name, tenantID)
	if err != nil {
		return nil, err
	}

	cfg := &RoleConfig{
		Name:        role.Name,
		DisplayName: role.DisplayName,
		Description: role.Description,
		Permissions: append([]string(nil), role.Permissions...),
	}
	s.roleCache.Add(cacheKey, cfg)
	return cfg, nil
}

// GetUserPermissions computes the user's effective permission set: the
// sorted, de-duplicated union across resolved roles. This is what gets
// embedded into sessions at sign-in and on version mismatch.
func (s *Service) GetUserPermissions(ctx context.Context, userID, tenantID int64) ([]string, error) {
	perms, err := s.resolver.EffectivePermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions for user %d: %w", userID, err)
	}
	return perms, nil
}

// PermissionSnapshot returns the effective permission set together with
// the current permission version. Sign-in embeds both into the session.
func (s *Service) PermissionSnapshot(ctx context.Context, userID, tenantID int64) ([]string, int64, error) {
	perms, err := s.resolver.EffectivePermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to resolve permissions for user %d: %w", userID, err)
	}
	version, err := s.versions.Get(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read permission version for user %d: %w", userID, err)
	}
	return perms, version, nil
}

// ReplaceUserRoles fully replaces the user's role set and bumps the
// permission version exactly once. Unknown role IDs fail the whole call with
// NotFound, leaving prior assignments untouched.
func (s *Service) ReplaceUserRoles(ctx context.Context, userID, tenantID int64, roleIDs []int64, grantedBy *int64) ([]RoleAssignment, error) {
	if userID <= 0 {
		return nil, NewValidation("user id must be positive")
	}
	seen := make(map[int64]bool, len(roleIDs))
	for _, id := range roleIDs {
		if id <= 0 {
			return nil, NewValidation("role ids must be positive")
		}
		if seen[id] {
			return nil, NewValidation(fmt.Sprintf("role %d listed twice", id))
		}
		seen[id] = true
	}

	assignments, err := s.store.ReplaceUserRoles(ctx, userID, tenantID, roleIDs, grantedBy)
	if err != nil {
		return nil, err
	}

	// One bump per mutation: never skipped, never duplicated. The bump sits
	// after the commit so a rolled-back replacement cannot invalidate
	// sessions for a change that never happened.
	version, err := s.versions.Bump(ctx, userID)
	if err != nil {
		return nil, NewInternal(fmt.Errorf("roles replaced but version bump failed for user %d: %w", userID, err))
	}

	if s.metrics != nil {
		s.metrics.PermissionVersionBumps.Inc()
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"tenant_id": tenantID,
		"roles":     len(assignments),
		"version":   version,
	}).Info("replaced user roles")

	return assignments, nil
}

// RequirePermission enforces a permission check for the authenticated
// principal. The check walks Unauthenticated → SessionPresent →
// VersionValid|VersionStale → (if stale) Resolved → Granted|Denied. A stale
// snapshot is re-resolved before any decision; the check never silently
// trusts a stale cache and always fails closed on storage errors.
func (s *Service) RequirePermission(ctx context.Context, principal *Principal, code string) error {
	if principal == nil {
		s.recordCheck("auth_required")
		return NewAuthRequired()
	}

	current, err := s.versions.Get(ctx, principal.UserID)
	if err != nil {
		s.recordCheck("error")
		s.checkLogger(principal, code).WithError(err).Error("permission version lookup failed")
		return NewInternal(err)
	}

	perms := principal.Permissions
	if principal.PermissionVersion != current {
		perms, err = s.resolver.EffectivePermissions(ctx, principal.UserID, principal.TenantID)
		if err != nil {
			s.recordCheck("error")
			s.checkLogger(principal, code).WithError(err).Error("stale snapshot re-resolution failed")
			return NewInternal(err)
		}
		if s.metrics != nil {
			s.metrics.StaleSnapshotResolutions.Inc()
		}
		if s.refresher != nil {
			if err := s.refresher.RefreshSnapshot(ctx, principal.SessionID, perms, current); err != nil {
				// The decision below uses the fresh set either way; a failed
				// write-back only costs another resolution next request.
				s.checkLogger(principal, code).WithError(err).Warn("session snapshot refresh failed")
			}
		}
		principal.Permissions = perms
		principal.PermissionVersion = current
	}

	for _, c := range perms {
		if c == code {
			s.recordCheck("granted")
			return nil
		}
	}

	s.recordCheck("denied")
	s.checkLogger(principal, code).Warn("permission denied")
	return NewPermissionDenied(code)
}

func (s *Service) recordCheck(outcome string) {
	if s.metrics != nil {
		s.metrics.PermissionChecks.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) checkLogger(principal *Principal, code string) *observability.Logger {
	return s.logger.WithFields(map[string]interface{}{
		"user_id":   principal.UserID,
		"tenant_id": principal.TenantID,
		"code":      code,
	})
}
