package rbac

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sentinel/pkg/observability"
)

func newTestJanitor(t *testing.T, versions VersionStore) (*Janitor, sqlmock.Sqlmock) {
	t.Helper()
	store, mock := newMockStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	janitor, err := NewJanitor(store, versions, logger, "@every 10m")
	require.NoError(t, err)
	return janitor, mock
}

func TestNewJanitorRejectsBadSchedule(t *testing.T) {
	store, _ := newMockStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	_, err := NewJanitor(store, newStubVersions(), logger, "not a schedule")
	assert.Error(t, err)
}

func TestSweepBumpsEachAffectedUser(t *testing.T) {
	versions := newStubVersions()
	janitor, mock := newTestJanitor(t, versions)

	mock.ExpectQuery(`DELETE FROM role_assignments\s+WHERE expires_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow(int64(7)).
			AddRow(int64(9)))

	require.NoError(t, janitor.Sweep(context.Background()))
	assert.Equal(t, int64(1), versions.versions[7])
	assert.Equal(t, int64(1), versions.versions[9])
}

func TestSweepNothingExpired(t *testing.T) {
	versions := newStubVersions()
	janitor, mock := newTestJanitor(t, versions)

	mock.ExpectQuery(`DELETE FROM role_assignments\s+WHERE expires_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	require.NoError(t, janitor.Sweep(context.Background()))
	assert.Zero(t, versions.bumps)
}

type stubPruner struct {
	days   []int
	pruned int64
	err    error
}

func (p *stubPruner) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	p.days = append(p.days, olderThanDays)
	return p.pruned, p.err
}

func TestSweepPrunesAuditEvents(t *testing.T) {
	store, mock := newMockStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	pruner := &stubPruner{pruned: 12}
	janitor, err := NewJanitor(store, newStubVersions(), logger, "@every 10m",
		WithAuditRetention(pruner, 90))
	require.NoError(t, err)

	mock.ExpectQuery(`DELETE FROM role_assignments\s+WHERE expires_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	require.NoError(t, janitor.Sweep(context.Background()))
	assert.Equal(t, []int{90}, pruner.days)
}

func TestSweepPruneFailureNotFatal(t *testing.T) {
	store, mock := newMockStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	pruner := &stubPruner{err: errors.New("db down")}
	janitor, err := NewJanitor(store, newStubVersions(), logger, "@every 10m",
		WithAuditRetention(pruner, 30))
	require.NoError(t, err)

	mock.ExpectQuery(`DELETE FROM role_assignments\s+WHERE expires_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	assert.NoError(t, janitor.Sweep(context.Background()))
}

func TestSweepContinuesPastBumpFailure(t *testing.T) {
	versions := newStubVersions()
	versions.bumpErr = errors.New("redis down")
	janitor, mock := newTestJanitor(t, versions)

	mock.ExpectQuery(`DELETE FROM role_assignments\s+WHERE expires_at IS NOT NULL`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow(int64(7)))

	// Bump failures are logged and left to the next sweep, not fatal.
	assert.NoError(t, janitor.Sweep(context.Background()))
}
