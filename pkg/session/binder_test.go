package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sentinel/pkg/observability"
	"github.com/platinummonkey/sentinel/pkg/rbac"
)

func newTestBinder(t *testing.T, ttl time.Duration) (*Binder, *RedisStore) {
	t.Helper()
	store, _ := newTestStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewBinder(store, ttl, logger, nil), store
}

func TestIssueAndValidate(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)
	ctx := context.Background()

	sess, err := binder.Issue(ctx, 7, "ada@example.com", 1, []string{"users:read"}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, int64(3), sess.PermissionVersion)

	got, err := binder.Validate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, []string{"users:read"}, got.Permissions)
}

func TestValidateUnknownSession(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)

	_, err := binder.Validate(context.Background(), "ghost")
	assert.True(t, rbac.IsAuthRequired(err))
}

func TestBindTenantMismatch(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)
	ctx := context.Background()

	sess, err := binder.Issue(ctx, 7, "ada@example.com", 1, nil, 0)
	require.NoError(t, err)

	// The session stays bound to tenant 1; tenant 2 never sees it as valid.
	assert.True(t, rbac.IsTenantMismatch(binder.BindTenant(sess, 2)))

	// The mismatch does not consume the session.
	got, err := binder.Validate(ctx, sess.ID)
	require.NoError(t, err)
	assert.NoError(t, binder.BindTenant(got, 1))
}

func TestValidateExpiredSessionDropped(t *testing.T) {
	binder, store := newTestBinder(t, time.Hour)
	ctx := context.Background()

	sess := testSession("s1", 7)
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, sess, time.Hour))

	_, err := binder.Validate(ctx, "s1")
	assert.True(t, rbac.IsAuthRequired(err))

	// The expired entry was removed, not just rejected.
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestValidateWithoutTenantBinding(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)
	ctx := context.Background()

	// Validation alone never consults the tenant; routes outside a
	// tenant scope accept a session bound to any tenant.
	sess, err := binder.Issue(ctx, 7, "ada@example.com", 2, nil, 0)
	require.NoError(t, err)

	got, err := binder.Validate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TenantID)
}

func TestRevokeIdempotent(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)
	ctx := context.Background()

	sess, err := binder.Issue(ctx, 7, "ada@example.com", 1, nil, 0)
	require.NoError(t, err)

	require.NoError(t, binder.Revoke(ctx, sess.ID))
	_, err = binder.Validate(ctx, sess.ID)
	assert.True(t, rbac.IsAuthRequired(err))

	assert.NoError(t, binder.Revoke(ctx, sess.ID))
}

func TestRevokeAllForUser(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)
	ctx := context.Background()

	a, err := binder.Issue(ctx, 7, "ada@example.com", 1, nil, 0)
	require.NoError(t, err)
	b, err := binder.Issue(ctx, 7, "ada@example.com", 2, nil, 0)
	require.NoError(t, err)
	other, err := binder.Issue(ctx, 9, "bob@example.com", 1, nil, 0)
	require.NoError(t, err)

	dropped, err := binder.RevokeAllForUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	_, err = binder.Validate(ctx, a.ID)
	assert.True(t, rbac.IsAuthRequired(err))
	_, err = binder.Validate(ctx, b.ID)
	assert.True(t, rbac.IsAuthRequired(err))
	_, err = binder.Validate(ctx, other.ID)
	assert.NoError(t, err)
}

func TestValidateRecordsOutcomes(t *testing.T) {
	store, _ := newTestStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	binder := NewBinder(store, time.Hour, logger, metrics)
	ctx := context.Background()

	sess, err := binder.Issue(ctx, 7, "ada@example.com", 1, nil, 0)
	require.NoError(t, err)

	got, err := binder.Validate(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, rbac.IsTenantMismatch(binder.BindTenant(got, 2)))
	_, err = binder.Validate(ctx, "ghost")
	assert.True(t, rbac.IsAuthRequired(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionValidations.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionValidations.WithLabelValues("tenant_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionValidations.WithLabelValues("missing")))
}

func TestRefreshSnapshot(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)
	ctx := context.Background()

	sess, err := binder.Issue(ctx, 7, "ada@example.com", 1, []string{"users:read", "roles:assign"}, 1)
	require.NoError(t, err)

	require.NoError(t, binder.RefreshSnapshot(ctx, sess.ID, []string{"users:read"}, 2))

	got, err := binder.Validate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"users:read"}, got.Permissions)
	assert.Equal(t, int64(2), got.PermissionVersion)

	// The refresh preserves the original expiry rather than extending it.
	assert.WithinDuration(t, sess.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestRefreshSnapshotMissingSessionNoop(t *testing.T) {
	binder, _ := newTestBinder(t, time.Hour)

	assert.NoError(t, binder.RefreshSnapshot(context.Background(), "ghost", []string{"users:read"}, 2))
}

func TestSessionPrincipalCopiesPermissions(t *testing.T) {
	sess := testSession("s1", 7)
	principal := sess.Principal()

	principal.Permissions[0] = "mutated"
	assert.Equal(t, []string{"users:read"}, sess.Permissions)
}
