package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store persists sessions. Implementations must expire sessions on their own
// (TTL) or tolerate the binder's expiry check discarding stale entries.
type Store interface {
	// Save writes the session with the given time-to-live.
	Save(ctx context.Context, sess *Session, ttl time.Duration) error

	// Get returns the session or (nil, nil) when it does not exist.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes the session; deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteByUser removes every session for the user and returns how
	// many were dropped.
	DeleteByUser(ctx context.Context, userID int64) (int, error)
}

// RedisStore stores sessions as JSON values with a Redis TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func userSessionsKey(userID int64) string {
	return fmt.Sprintf("user_sessions:%d", userID)
}

// Save writes the session with the given TTL.
func (s *RedisStore) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
	// Index for per-user revocation. Expired members are pruned lazily
	// by DeleteByUser.
	pipe.SAdd(ctx, userSessionsKey(sess.UserID), sess.ID)
	pipe.Expire(ctx, userSessionsKey(sess.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session, returning (nil, nil) on a miss.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		// Corrupt entries are dropped rather than trusted.
		s.client.Del(ctx, sessionKey(sessionID))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// Delete removes a session; missing sessions are a no-op.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err == nil && sess != nil {
		s.client.SRem(ctx, userSessionsKey(sess.UserID), sessionID)
	}
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUser removes all sessions indexed for the user.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID int64) (int, error) {
	ids, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}

	dropped := 0
	for _, id := range ids {
		n, err := s.client.Del(ctx, sessionKey(id)).Result()
		if err != nil {
			return dropped, fmt.Errorf("failed to delete session: %w", err)
		}
		dropped += int(n)
	}
	if err := s.client.Del(ctx, userSessionsKey(userID)).Err(); err != nil {
		return dropped, fmt.Errorf("failed to clear session index: %w", err)
	}
	return dropped, nil
}
