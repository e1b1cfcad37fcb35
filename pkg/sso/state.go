package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const stateTTL = 10 * time.Minute

// StateStore issues and consumes one-time OAuth state tokens. States
// live in Redis so any instance can complete a flow another started.
type StateStore struct {
	client *redis.Client
}

// NewStateStore creates a new state store.
func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{client: client}
}

// Issue creates a state token. The token carries the tenant the sign-in
// will be bound to.
func (s *StateStore) Issue(ctx context.Context, tenantID int64) (string, error) {
	state := uuid.NewString()
	if err := s.client.Set(ctx, s.key(state), tenantID, stateTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// Consume validates and deletes a state token, returning the tenant ID
// it was issued for. A state can be consumed once; replays fail.
func (s *StateStore) Consume(ctx context.Context, state string) (int64, error) {
	if state == "" {
		return 0, fmt.Errorf("missing oauth state")
	}

	pipe := s.client.TxPipeline()
	get := pipe.Get(ctx, s.key(state))
	pipe.Del(ctx, s.key(state))
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return 0, fmt.Errorf("unknown or expired oauth state")
		}
		return 0, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	tenantID, err := get.Int64()
	if err != nil {
		return 0, fmt.Errorf("invalid oauth state payload: %w", err)
	}
	return tenantID, nil
}

func (s *StateStore) key(state string) string {
	return "oauthstate:" + state
}
