package rbac

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/sentinel/pkg/observability"
)

// AuditPruner removes audit events older than the retention window and
// returns how many were deleted. Implemented by the audit store.
type AuditPruner interface {
	Prune(ctx context.Context, olderThanDays int) (int64, error)
}

// Janitor periodically removes expired role assignments and bumps the
// permission version of every affected user so their sessions re-resolve.
// It optionally also enforces audit retention on the same schedule.
type Janitor struct {
	store         *Store
	versions      VersionStore
	logger        *observability.Logger
	cron          *cron.Cron
	timeout       time.Duration
	pruner        AuditPruner
	retentionDays int
}

// JanitorOption configures optional janitor duties.
type JanitorOption func(*Janitor)

// WithAuditRetention makes the sweep prune audit events older than the
// given number of days.
func WithAuditRetention(pruner AuditPruner, days int) JanitorOption {
	return func(j *Janitor) {
		j.pruner = pruner
		j.retentionDays = days
	}
}

// NewJanitor creates a janitor sweeping on the given cron schedule
// (e.g. "@every 10m").
func NewJanitor(store *Store, versions VersionStore, logger *observability.Logger, schedule string, opts ...JanitorOption) (*Janitor, error) {
	j := &Janitor{
		store:    store,
		versions: versions,
		logger:   logger,
		cron:     cron.New(),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(j)
	}

	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the sweep schedule.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep runs one pass immediately. Exposed for tests and manual triggering.
func (j *Janitor) Sweep(ctx context.Context) error {
	userIDs, err := j.store.DeleteExpiredAssignments(ctx)
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		if _, err := j.versions.Bump(ctx, userID); err != nil {
			// Leave the remaining bumps to the next sweep rather than
			// aborting; the deleted rows already make the snapshot wrong.
			j.logger.WithError(err).WithField("user_id", userID).Error("version bump after expiry sweep failed")
			continue
		}
	}

	if len(userIDs) > 0 {
		j.logger.WithField("users", len(userIDs)).Info("expired role assignments removed")
	}

	if j.pruner != nil && j.retentionDays > 0 {
		pruned, err := j.pruner.Prune(ctx, j.retentionDays)
		if err != nil {
			// Retention can wait for the next sweep; assignment expiry
			// already ran.
			j.logger.WithError(err).Error("audit retention prune failed")
		} else if pruned > 0 {
			j.logger.WithField("events", pruned).Info("audit events pruned")
		}
	}
	return nil
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.Sweep(ctx); err != nil {
		j.logger.WithError(err).Error("expiry sweep failed")
	}
}
