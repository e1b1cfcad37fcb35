package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "Acme", "acme"},
		{"spaces", "Acme Corp", "acme-corp"},
		{"special chars", "Acme, Inc!", "acme-inc"},
		{"digits", "Team 42", "team-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, generateSlug(tt.input))
		})
	}
}

func TestCreateTenantValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db)
	err = svc.CreateTenant(context.Background(), &Tenant{Name: "  "})
	assert.Equal(t, rbac.CodeValidation, rbac.CodeOf(err))
}

func TestCreateTenantDefaults(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs("Acme Corp", "acme-corp", "", "", string(TenantStatusActive), true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))

	tenant := &Tenant{Name: "Acme Corp"}
	require.NoError(t, svc.CreateTenant(context.Background(), tenant))
	assert.Equal(t, int64(1), tenant.ID)
	assert.Equal(t, "acme-corp", tenant.Slug)
	assert.Equal(t, TenantStatusActive, tenant.Status)
	assert.True(t, tenant.IsActive)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenantNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db)

	mock.ExpectQuery(`SELECT id, name, slug, display_name, description, status, is_active, settings, created_at, updated_at\s+FROM tenants WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "display_name", "description", "status", "is_active", "settings", "created_at", "updated_at"}))

	_, err = svc.GetTenant(context.Background(), 99)
	assert.Equal(t, rbac.CodeNotFound, rbac.CodeOf(err))
}

func TestAddMemberAlreadyExists(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db)

	mock.ExpectExec(`INSERT INTO tenant_members`).
		WithArgs(int64(1), int64(2), nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = svc.AddMember(context.Background(), 1, 2, nil)
	assert.Equal(t, rbac.CodeConflict, rbac.CodeOf(err))
}

func TestRemoveMemberClearsAssignments(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM tenant_members WHERE tenant_id = \$1 AND user_id = \$2`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM role_assignments WHERE tenant_id = \$1 AND user_id = \$2`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, svc.RemoveMember(context.Background(), 1, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM tenant_members WHERE tenant_id = \$1 AND user_id = \$2`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = svc.RemoveMember(context.Background(), 1, 2)
	assert.Equal(t, rbac.CodeNotFound, rbac.CodeOf(err))
}
