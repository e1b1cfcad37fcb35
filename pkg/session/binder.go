package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/sentinel/pkg/observability"
	"github.com/platinummonkey/sentinel/pkg/rbac"
)

// Binder owns the session lifecycle: it issues tenant-bound sessions at
// sign-in, validates them on each request, refreshes permission snapshots
// after a version mismatch, and revokes them at sign-out. The RBAC service
// only supplies the data embedded here; it never mutates sessions itself.
type Binder struct {
	store   Store
	ttl     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewBinder creates a session binder with the given session lifetime.
func NewBinder(store Store, ttl time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Binder {
	return &Binder{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Issue creates a session bound to the tenant, embedding the permission
// snapshot and the version it was computed at.
func (b *Binder) Issue(ctx context.Context, userID int64, email string, tenantID int64, permissions []string, version int64) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		Email:             email,
		TenantID:          tenantID,
		Permissions:       append([]string(nil), permissions...),
		PermissionVersion: version,
		LoggedInAt:        now.UnixMilli(),
		ExpiresAt:         now.Add(b.ttl),
	}

	if err := b.store.Save(ctx, sess, b.ttl); err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	if b.metrics != nil {
		b.metrics.SessionsIssued.Inc()
	}
	b.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"tenant_id": tenantID,
	}).Info("session issued")

	return sess, nil
}

// Validate loads the session and checks that it exists and has not
// expired. It deliberately knows nothing about tenants: session absence
// must fail before any tenant resolution happens, so the tenant binding
// is checked separately via BindTenant once the ambient tenant is known.
func (b *Binder) Validate(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := b.store.Get(ctx, sessionID)
	if err != nil {
		b.recordValidation("error")
		return nil, rbac.NewInternal(err)
	}
	if sess == nil {
		b.recordValidation("missing")
		return nil, rbac.NewAuthRequired()
	}

	if sess.Expired(time.Now()) {
		b.recordValidation("expired")
		if err := b.store.Delete(ctx, sessionID); err != nil {
			b.logger.WithError(err).Warn("failed to drop expired session")
		}
		return nil, rbac.NewAuthRequired()
	}

	b.recordValidation("valid")
	return sess, nil
}

// BindTenant checks the session's tenant binding against the ambient
// tenant. A session bound to a different tenant fails with
// TenantMismatch, regardless of whether the underlying credential would
// be valid there.
func (b *Binder) BindTenant(sess *Session, ambientTenantID int64) error {
	if sess.TenantID != ambientTenantID {
		b.recordValidation("tenant_mismatch")
		return rbac.NewTenantMismatch(sess.TenantID, ambientTenantID)
	}
	return nil
}

func (b *Binder) recordValidation(outcome string) {
	if b.metrics == nil {
		return
	}
	b.metrics.SessionValidations.WithLabelValues(outcome).Inc()
}

// RevokeAllForUser drops every session the user holds, across all
// tenants. Used when an operator force-signs-out a user.
func (b *Binder) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	dropped, err := b.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	if b.metrics != nil {
		b.metrics.SessionsRevoked.Add(float64(dropped))
	}
	b.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"dropped": dropped,
	}).Info("revoked all user sessions")
	return dropped, nil
}

// Revoke removes the session. Idempotent: revoking an unknown session
// succeeds.
func (b *Binder) Revoke(ctx context.Context, sessionID string) error {
	if err := b.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if b.metrics != nil {
		b.metrics.SessionsRevoked.Inc()
	}
	return nil
}

// RefreshSnapshot replaces the session's embedded permission snapshot and
// version after a stale check re-resolved them. Implements
// rbac.SnapshotRefresher. Refreshing a session that no longer exists is a
// no-op; the next request will fail session validation anyway.
func (b *Binder) RefreshSnapshot(ctx context.Context, sessionID string, permissions []string, version int64) error {
	sess, err := b.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	sess.Permissions = append([]string(nil), permissions...)
	sess.PermissionVersion = version

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return b.store.Save(ctx, sess, ttl)
}
