package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// PermissionInfo is one catalogue entry, split into its category and action.
type PermissionInfo struct {
	Code        string `json:"code"`
	Category    string `json:"category"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// SplitCode splits a permission code on the first ":". Codes without a
// separator fall into the "system" category with the full code as the action.
func SplitCode(code string) (category, action string) {
	if idx := strings.Index(code, ":"); idx >= 0 {
		return code[:idx], code[idx+1:]
	}
	return "system", code
}

// Registry is the static catalogue of permission codes. It is built once at
// startup from configuration and is read-only afterwards; malformed
// configuration is fatal at construction, never per-request.
type Registry struct {
	defs  map[string]string
	infos []PermissionInfo
}

// NewRegistry validates the catalogue and builds the registry.
func NewRegistry(definitions map[string]string) (*Registry, error) {
	if len(definitions) == 0 {
		return nil, fmt.Errorf("permission catalogue is empty")
	}

	infos := make([]PermissionInfo, 0, len(definitions))
	defs := make(map[string]string, len(definitions))
	for code, description := range definitions {
		if strings.TrimSpace(code) == "" {
			return nil, fmt.Errorf("permission catalogue contains an empty code")
		}
		if strings.Count(code, " ") > 0 {
			return nil, fmt.Errorf("malformed permission code %q: whitespace not allowed", code)
		}
		category, action := SplitCode(code)
		if action == "" {
			return nil, fmt.Errorf("malformed permission code %q: missing action", code)
		}
		defs[code] = description
		infos = append(infos, PermissionInfo{
			Code:        code,
			Category:    category,
			Action:      action,
			Description: description,
		})
	}

	// Sorted by category, ties broken by full code.
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Category != infos[j].Category {
			return infos[i].Category < infos[j].Category
		}
		return infos[i].Code < infos[j].Code
	})

	return &Registry{defs: defs, infos: infos}, nil
}

// Definitions returns the code-to-description mapping.
func (r *Registry) Definitions() map[string]string {
	out := make(map[string]string, len(r.defs))
	for code, desc := range r.defs {
		out[code] = desc
	}
	return out
}

// List returns all catalogue entries sorted by category then code.
func (r *Registry) List() []PermissionInfo {
	out := make([]PermissionInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// Has reports whether the code exists in the catalogue.
func (r *Registry) Has(code string) bool {
	_, ok := r.defs[code]
	return ok
}

// DefaultPermissions returns the built-in permission catalogue.
func DefaultPermissions() map[string]string {
	return map[string]string{
		"users:read":     "View users in the tenant",
		"users:create":   "Create users in the tenant",
		"users:update":   "Update user profiles and status",
		"users:delete":   "Deactivate or remove users",
		"roles:read":     "View roles and their permissions",
		"roles:assign":   "Assign or replace user roles",
		"tenants:read":   "View tenant settings",
		"tenants:update": "Update tenant settings",
		"members:invite": "Invite members into the tenant",
		"members:remove": "Remove members from the tenant",
		"sessions:revoke": "Revoke other users' sessions",
		"audit:read":     "View audit history",
	}
}

// BuiltInRoles returns the role definitions seeded by migrations.
func BuiltInRoles() []Role {
	return []Role{
		{
			Name:        RoleAdmin,
			DisplayName: "Administrator",
			Description: "Full access to the tenant",
			IsBuiltIn:   true,
			Permissions: []string{
				"users:read", "users:create", "users:update", "users:delete",
				"roles:read", "roles:assign",
				"tenants:read", "tenants:update",
				"members:invite", "members:remove",
				"sessions:revoke",
				"audit:read",
			},
		},
		{
			Name:        RoleEditor,
			DisplayName: "Editor",
			Description: "Can manage users but not tenant settings",
			IsBuiltIn:   true,
			Permissions: []string{
				"users:read", "users:create", "users:update",
				"roles:read",
				"tenants:read",
			},
		},
		{
			Name:        RoleViewer,
			DisplayName: "Viewer",
			Description: "Read-only access to the tenant",
			IsBuiltIn:   true,
			Permissions: []string{
				"users:read",
				"roles:read",
				"tenants:read",
			},
		},
	}
}
