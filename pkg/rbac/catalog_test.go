package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCode(t *testing.T) {
	tests := []struct {
		code     string
		category string
		action   string
	}{
		{"users:read", "users", "read"},
		{"roles:assign", "roles", "assign"},
		{"a:b:c", "a", "b:c"},
		{"maintenance", "system", "maintenance"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			category, action := SplitCode(tt.code)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestNewRegistryRejectsMalformedCodes(t *testing.T) {
	tests := []struct {
		name string
		defs map[string]string
	}{
		{"empty catalogue", map[string]string{}},
		{"empty code", map[string]string{"": "nothing"}},
		{"blank code", map[string]string{"   ": "nothing"}},
		{"whitespace in code", map[string]string{"users: read": "spaced"}},
		{"missing action", map[string]string{"users:": "no action"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestRegistryListSorted(t *testing.T) {
	registry, err := NewRegistry(map[string]string{
		"users:read":   "view users",
		"users:create": "create users",
		"roles:read":   "view roles",
		"maintenance":  "system maintenance",
	})
	require.NoError(t, err)

	var codes []string
	for _, info := range registry.List() {
		codes = append(codes, info.Code)
	}
	// Sorted by category then code; bare codes land in the "system" category.
	assert.Equal(t, []string{"roles:read", "maintenance", "users:create", "users:read"}, codes)
}

func TestRegistryHas(t *testing.T) {
	registry, err := NewRegistry(DefaultPermissions())
	require.NoError(t, err)

	assert.True(t, registry.Has("users:read"))
	assert.True(t, registry.Has("sessions:revoke"))
	assert.False(t, registry.Has("users:frobnicate"))
}

func TestBuiltInRolesUseKnownPermissions(t *testing.T) {
	registry, err := NewRegistry(DefaultPermissions())
	require.NoError(t, err)

	for _, role := range BuiltInRoles() {
		for _, code := range role.Permissions {
			assert.True(t, registry.Has(code), "role %s grants unknown permission %s", role.Name, code)
		}
	}
}
