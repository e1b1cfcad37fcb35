package rbac

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// VersionStore tracks the per-user permission version: a monotonic counter
// bumped exactly once per role mutation. A session whose embedded version
// differs from the stored one carries a stale permission snapshot.
type VersionStore interface {
	// Get returns the current version for a user, 0 for unknown users.
	Get(ctx context.Context, userID int64) (int64, error)

	// Bump atomically increments the version and returns the new value.
	// Concurrent bumps for the same user serialize; no increment is lost.
	Bump(ctx context.Context, userID int64) (int64, error)
}

// RedisVersionStore stores permission versions as Redis counters.
// INCR gives the required per-user atomicity without any in-process locking.
type RedisVersionStore struct {
	client *redis.Client
}

// NewRedisVersionStore creates a Redis-backed version store.
func NewRedisVersionStore(client *redis.Client) *RedisVersionStore {
	return &RedisVersionStore{client: client}
}

func (s *RedisVersionStore) key(userID int64) string {
	return fmt.Sprintf("permver:%d", userID)
}

// Get returns the stored version, defaulting to 0 for users never bumped.
func (s *RedisVersionStore) Get(ctx context.Context, userID int64) (int64, error) {
	v, err := s.client.Get(ctx, s.key(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read permission version for user %d: %w", userID, err)
	}
	return v, nil
}

// Bump increments the stored version atomically.
func (s *RedisVersionStore) Bump(ctx context.Context, userID int64) (int64, error) {
	v, err := s.client.Incr(ctx, s.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump permission version for user %d: %w", userID, err)
	}
	return v, nil
}
