package sso

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateStore(t *testing.T) (*StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStateStore(client), mr
}

func TestStateIssueAndConsume(t *testing.T) {
	store, _ := newTestStateStore(t)
	ctx := context.Background()

	state, err := store.Issue(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	tenantID, err := store.Consume(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, int64(42), tenantID)
}

func TestStateConsumeOnce(t *testing.T) {
	store, _ := newTestStateStore(t)
	ctx := context.Background()

	state, err := store.Issue(ctx, 7)
	require.NoError(t, err)

	_, err = store.Consume(ctx, state)
	require.NoError(t, err)

	_, err = store.Consume(ctx, state)
	assert.Error(t, err)
}

func TestStateUnknown(t *testing.T) {
	store, _ := newTestStateStore(t)

	_, err := store.Consume(context.Background(), "no-such-state")
	assert.Error(t, err)

	_, err = store.Consume(context.Background(), "")
	assert.Error(t, err)
}

func TestStateExpiry(t *testing.T) {
	store, mr := newTestStateStore(t)
	ctx := context.Background()

	state, err := store.Issue(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(stateTTL + 1)

	_, err = store.Consume(ctx, state)
	assert.Error(t, err)
}
