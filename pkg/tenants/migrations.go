package tenants

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a tenant schema migration.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// GetMigrations returns tenant migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_tenants_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					is_active BOOLEAN NOT NULL DEFAULT true,
					settings JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_tenants_slug ON tenants(slug);
			`,
		},
		{
			Version: 2,
			Name:    "create_tenant_members_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_members (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					invited_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id, user_id)
				);
				CREATE INDEX IF NOT EXISTS idx_tenant_members_user_id ON tenant_members(user_id);
			`,
		},
	}
}

// RunMigrations applies pending tenant migrations. The identity
// migrations must run first since tenant_members references users.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenant_migrations (
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
			`SELECT COUNT(*) FROM tenant_migrations WHERE version = $1`,
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
			`INSERT INTO tenant_migrations (version, name) VALUES ($1, $2)`,
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
