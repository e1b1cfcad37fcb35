package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store handles role and role-assignment persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a new custom role.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO roles (name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		role.Name,
		role.DisplayName,
		role.Description,
		role.TenantID,
		string(permissionsJSON),
		role.IsBuiltIn,
		now,
		now,
	).Scan(&role.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return NewConflict(fmt.Sprintf("role %q already exists", role.Name))
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	return s.scanRoleRow(s.db.QueryRowContext(ctx, query, roleID), fmt.Sprintf("role %d", roleID))
}

// GetRoleByName retrieves a role by name. Tenant-scoped roles shadow built-in
// roles of the same name.
func (s *Store) GetRoleByName(ctx context.Context, name string, tenantID *int64) (*Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at
		FROM roles
		WHERE name = $1 AND (tenant_id = $2 OR tenant_id IS NULL)
		ORDER BY tenant_id DESC NULLS LAST
		LIMIT 1
	`
	return s.scanRoleRow(s.db.QueryRowContext(ctx, query, name, tenantID), fmt.Sprintf("role %q", name))
}

// ListRoles lists built-in roles plus the tenant's custom roles.
func (s *Store) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	query := `
		SELECT id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at
		FROM roles
		WHERE tenant_id = $1 OR tenant_id IS NULL
		ORDER BY is_built_in DESC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	return roles, rows.Err()
}

// GetRolesByIDs loads the given roles, failing with NotFound if any ID is
// missing. Used to validate assignments before writing them.
func (s *Store) GetRolesByIDs(ctx context.Context, roleIDs []int64) ([]Role, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, name, display_name, description, tenant_id, permissions, is_built_in, created_at, updated_at
		FROM roles
		WHERE id = ANY($1)
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]*Role, len(roleIDs))
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		found[role.ID] = role
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roles := make([]Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		role, ok := found[id]
		if !ok {
			return nil, NewNotFound(fmt.Sprintf("role %d", id))
		}
		roles = append(roles, *role)
	}
	return roles, nil
}

// GetUserAssignments retrieves a user's active role assignments in a tenant,
// newest first. Expired assignments are excluded.
func (s *Store) GetUserAssignments(ctx context.Context, userID, tenantID int64) ([]RoleAssignment, error) {
	query := `
		SELECT ra.id, ra.user_id, ra.role_id, r.name, ra.tenant_id, ra.granted_by, ra.granted_at, ra.expires_at
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		WHERE ra.user_id = $1
		  AND ra.tenant_id = $2
		  AND (ra.expires_at IS NULL OR ra.expires_at > CURRENT_TIMESTAMP)
		ORDER BY ra.granted_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		var grantedBy sql.NullInt64
		var expiresAt sql.NullTime

		err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.RoleName, &a.TenantID, &grantedBy, &a.GrantedAt, &expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role assignment: %w", err)
		}

		if grantedBy.Valid {
			gb := grantedBy.Int64
			a.GrantedBy = &gb
		}
		if expiresAt.Valid {
			ea := expiresAt.Time
			a.ExpiresAt = &ea
		}

		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}

// GetUserRoles retrieves the full role records behind a user's active
// assignments in a tenant.
func (s *Store) GetUserRoles(ctx context.Context, userID, tenantID int64) ([]Role, error) {
	query := `
		SELECT DISTINCT r.id, r.name, r.display_name, r.description, r.tenant_id, r.permissions, r.is_built_in, r.created_at, r.updated_at
		FROM roles r
		JOIN role_assignments ra ON ra.role_id = r.id
		WHERE ra.user_id = $1
		  AND ra.tenant_id = $2
		  AND (ra.expires_at IS NULL OR ra.expires_at > CURRENT_TIMESTAMP)
	`

	rows, err := s.db.QueryContext(ctx, query, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}

	return roles, rows.Err()
}

// assignmentLockClass tags the advisory lock keyspace used to serialize
// role-assignment writes, keeping it disjoint from any other advisory
// locks taken against the same database.
const assignmentLockClass int64 = 0x52424143 << 32

func assignmentLockKey(userID int64) int64 {
	return assignmentLockClass ^ userID
}

// ReplaceUserRoles fully replaces the user's role set in one transaction:
// old assignments are removed and new ones inserted, or neither. Any unknown
// roleID aborts the whole write with NotFound.
func (s *Store) ReplaceUserRoles(ctx context.Context, userID, tenantID int64, roleIDs []int64, grantedBy *int64) ([]RoleAssignment, error) {
	roles, err := s.GetRolesByIDs(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize replacements per user. Without the lock, two concurrent
	// replacements at READ COMMITTED can interleave their DELETE and
	// INSERT statements and commit a mix of both role sets.
	_, err = tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1)`, assignmentLockKey(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user assignments: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE user_id = $1 AND tenant_id = $2`,
		userID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to clear role assignments: %w", err)
	}

	now := time.Now()
	assignments := make([]RoleAssignment, 0, len(roles))
	for _, role := range roles {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO role_assignments (user_id, role_id, tenant_id, granted_by, granted_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, userID, role.ID, tenantID, grantedBy, now).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, NewConflict(fmt.Sprintf("role %q assigned twice", role.Name))
			}
			return nil, fmt.Errorf("failed to insert role assignment: %w", err)
		}

		assignments = append(assignments, RoleAssignment{
			ID:        id,
			UserID:    userID,
			RoleID:    role.ID,
			RoleName:  role.Name,
			TenantID:  tenantID,
			GrantedBy: grantedBy,
			GrantedAt: now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role replacement: %w", err)
	}

	return assignments, nil
}

// DeleteExpiredAssignments removes assignments past their expiry and returns
// the affected user IDs so their permission versions can be bumped.
func (s *Store) DeleteExpiredAssignments(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM role_assignments
		WHERE expires_at IS NOT NULL AND expires_at <= CURRENT_TIMESTAMP
		RETURNING user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired assignments: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var userIDs []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan expired assignment: %w", err)
		}
		if !seen[userID] {
			seen[userID] = true
			userIDs = append(userIDs, userID)
		}
	}

	return userIDs, rows.Err()
}

func (s *Store) scanRoleRow(row *sql.Row, what string) (*Role, error) {
	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, NewNotFound(what)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// scanRole scans a role from a database row.
func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var permissionsJSON string
	var tenantID sql.NullInt64

	err := scanner.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&tenantID,
		&permissionsJSON,
		&role.IsBuiltIn,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tenantID.Valid {
		id := tenantID.Int64
		role.TenantID = &id
	}

	if permissionsJSON != "" {
		if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	} else {
		role.Permissions = []string{}
	}

	return &role, nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
