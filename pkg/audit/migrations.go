package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents an audit schema migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// GetMigrations returns audit migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_audit_events_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_events (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					event_type VARCHAR(64) NOT NULL,
					actor_id BIGINT,
					subject_id BIGINT,
					detail JSONB,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_audit_events_tenant_time ON audit_events(tenant_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_events_subject ON audit_events(subject_id) WHERE subject_id IS NOT NULL;
			`,
		},
	}
}

// RunMigrations applies pending audit migrations. Tenant migrations must
// run first: audit_events references tenants.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range GetMigrations() {
		var count int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM audit_migrations WHERE version = $1`,
			migration.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", migration.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_migrations (version, name) VALUES ($1, $2)`,
			migration.Version, migration.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}
	return nil
}
