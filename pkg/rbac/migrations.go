package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all RBAC migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					tenant_id BIGINT REFERENCES tenants(id) ON DELETE CASCADE,
					permissions JSONB NOT NULL DEFAULT '[]',
					is_built_in BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(name, tenant_id)
				);

				CREATE INDEX idx_roles_tenant_id ON roles(tenant_id);
				CREATE INDEX idx_roles_name ON roles(name);
				CREATE UNIQUE INDEX idx_roles_builtin_name ON roles(name) WHERE tenant_id IS NULL;
			`,
		},
		{
			Version:     2,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					granted_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					UNIQUE(user_id, role_id, tenant_id)
				);

				CREATE INDEX idx_role_assignments_user_id ON role_assignments(user_id);
				CREATE INDEX idx_role_assignments_role_id ON role_assignments(role_id);
				CREATE INDEX idx_role_assignments_tenant_id ON role_assignments(tenant_id);
				CREATE INDEX idx_role_assignments_expires_at ON role_assignments(expires_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations and seeds built-in roles.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rbac_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM rbac_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO rbac_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return seedBuiltInRoles(ctx, db)
}

// seedBuiltInRoles inserts the built-in role catalogue; reruns are no-ops.
func seedBuiltInRoles(ctx context.Context, db *sql.DB) error {
	for _, role := range BuiltInRoles() {
		permissionsJSON, err := json.Marshal(role.Permissions)
		if err != nil {
			return fmt.Errorf("failed to marshal built-in role %q: %w", role.Name, err)
		}

		_, err = db.ExecContext(ctx, `
			INSERT INTO roles (name, display_name, description, tenant_id, permissions, is_built_in)
			VALUES ($1, $2, $3, NULL, $4, TRUE)
			ON CONFLICT (name) WHERE tenant_id IS NULL DO NOTHING
		`, role.Name, role.DisplayName, role.Description, string(permissionsJSON))
		if err != nil {
			return fmt.Errorf("failed to seed built-in role %q: %w", role.Name, err)
		}
	}
	return nil
}
