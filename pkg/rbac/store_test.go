package rbac

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleColumns() []string {
	return []string{"id", "name", "display_name", "description", "tenant_id", "permissions", "is_built_in", "created_at", "updated_at"}
}

func roleRow(id int64, name string, tenantID driver.Value, permissionsJSON string) []driver.Value {
	now := time.Now()
	return []driver.Value{id, name, name, "", tenantID, permissionsJSON, tenantID == nil, now, now}
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestCreateRoleConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO roles`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.CreateRole(context.Background(), &Role{Name: "admin"})
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoleByNameTenantShadowsBuiltIn(t *testing.T) {
	store, mock := newMockStore(t)
	tenantID := int64(5)

	// The query orders tenant-scoped rows first; only the head row matters.
	mock.ExpectQuery(`SELECT .+ FROM roles\s+WHERE name = \$1 AND \(tenant_id = \$2 OR tenant_id IS NULL\)`).
		WithArgs("admin", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(roleRow(10, "admin", tenantID, `["users:read"]`)...))

	role, err := store.GetRoleByName(context.Background(), "admin", &tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), role.ID)
	require.NotNil(t, role.TenantID)
	assert.Equal(t, tenantID, *role.TenantID)
	assert.Equal(t, []string{"users:read"}, role.Permissions)
}

func TestGetRoleByNameNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM roles`).
		WillReturnRows(sqlmock.NewRows(roleColumns()))

	_, err := store.GetRoleByName(context.Background(), "ghost", nil)
	assert.True(t, IsNotFound(err))
}

func TestGetRolesByIDsMissingRole(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM roles\s+WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(roleRow(1, "admin", nil, `["users:read"]`)...))

	_, err := store.GetRolesByIDs(context.Background(), []int64{1, 99})
	assert.True(t, IsNotFound(err))
}

func TestGetRolesByIDsEmptyInput(t *testing.T) {
	store, _ := newMockStore(t)

	roles, err := store.GetRolesByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestReplaceUserRolesTransactional(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM roles\s+WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(roleRow(2, "viewer", nil, `["users:read"]`)...))
	mock.ExpectBegin()
	// The per-user advisory lock is taken before any row is touched.
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(assignmentLockKey(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM role_assignments WHERE user_id = \$1 AND tenant_id = \$2`).
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO role_assignments`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(33)))
	mock.ExpectCommit()

	assignments, err := store.ReplaceUserRoles(context.Background(), 7, 1, []int64{2}, nil)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, int64(33), assignments[0].ID)
	assert.Equal(t, "viewer", assignments[0].RoleName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceUserRolesUnknownRoleAbortsBeforeWrite(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM roles\s+WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(roleColumns()))

	_, err := store.ReplaceUserRoles(context.Background(), 7, 1, []int64{99}, nil)
	assert.True(t, IsNotFound(err))

	// No transaction was opened; existing assignments are untouched.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceUserRolesRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM roles\s+WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(roleRow(2, "viewer", nil, `["users:read"]`)...))
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM role_assignments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO role_assignments`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := store.ReplaceUserRoles(context.Background(), 7, 1, []int64{2}, nil)
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserAssignmentsExcludesExpired(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	grantedBy := int64(3)

	mock.ExpectQuery(`SELECT .+ FROM role_assignments ra\s+JOIN roles r ON r\.id = ra\.role_id`).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "role_id", "name", "tenant_id", "granted_by", "granted_at", "expires_at"}).
			AddRow(int64(1), int64(7), int64(2), "viewer", int64(1), grantedBy, now, nil))

	assignments, err := store.GetUserAssignments(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, "viewer", assignments[0].RoleName)
	require.NotNil(t, assignments[0].GrantedBy)
	assert.Equal(t, grantedBy, *assignments[0].GrantedBy)
	assert.Nil(t, assignments[0].ExpiresAt)
}

func TestDeleteExpiredAssignmentsDeduplicatesUsers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`DELETE FROM role_assignments\s+WHERE expires_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow(int64(7)).
			AddRow(int64(7)).
			AddRow(int64(9)))

	userIDs, err := store.DeleteExpiredAssignments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 9}, userIDs)
}
