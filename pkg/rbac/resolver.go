package rbac

import (
	"context"
	"sort"
)

// RoleResolver turns a user's role assignments into an effective permission
// set. Deployments pick one strategy; callers never see the cardinality of
// the underlying role model, only the resulting permission codes.
type RoleResolver interface {
	EffectivePermissions(ctx context.Context, userID, tenantID int64) ([]string, error)
}

// MultiRoleResolver unions permissions across every role assigned to the
// user in the tenant.
type MultiRoleResolver struct {
	store *Store
}

// NewMultiRoleResolver creates a resolver over all assigned roles.
func NewMultiRoleResolver(store *Store) *MultiRoleResolver {
	return &MultiRoleResolver{store: store}
}

// EffectivePermissions returns the sorted, de-duplicated union of permission
// codes across the user's roles.
func (r *MultiRoleResolver) EffectivePermissions(ctx context.Context, userID, tenantID int64) ([]string, error) {
	roles, err := r.store.GetUserRoles(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return unionPermissions(roles), nil
}

// SingleRoleResolver resolves permissions from the user's most recently
// granted role only, for deployments with a one-role-per-user model.
type SingleRoleResolver struct {
	store *Store
}

// NewSingleRoleResolver creates a resolver over the user's primary role.
func NewSingleRoleResolver(store *Store) *SingleRoleResolver {
	return &SingleRoleResolver{store: store}
}

// EffectivePermissions returns the sorted permission codes of the user's
// primary role, or an empty set if the user has no role.
func (r *SingleRoleResolver) EffectivePermissions(ctx context.Context, userID, tenantID int64) ([]string, error) {
	assignments, err := r.store.GetUserAssignments(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return []string{}, nil
	}

	// Assignments come back newest first; the head is the primary role.
	role, err := r.store.GetRole(ctx, assignments[0].RoleID)
	if err != nil {
		return nil, err
	}
	return unionPermissions([]Role{*role}), nil
}

// unionPermissions de-duplicates and sorts permission codes across roles.
func unionPermissions(roles []Role) []string {
	set := make(map[string]bool)
	for _, role := range roles {
		for _, code := range role.Permissions {
			set[code] = true
		}
	}

	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
