package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

// Service implements tenant persistence using PostgreSQL.
type Service struct {
	db *sql.DB
}

// NewService creates a new tenant service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateTenant creates a new tenant. The slug is derived from the name
// when not provided.
func (s *Service) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if strings.TrimSpace(tenant.Name) == "" {
		return rbac.NewValidation("tenant name is required")
	}
	if tenant.Slug == "" {
		tenant.Slug = generateSlug(tenant.Name)
	}
	if tenant.Status == "" {
		tenant.Status = TenantStatusActive
	}
	tenant.IsActive = true

	settingsJSON, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO tenants (name, slug, display_name, description, status, is_active, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, tenant.Name, tenant.Slug, tenant.DisplayName,
		tenant.Description, tenant.Status, tenant.IsActive, settingsJSON).
		Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return rbac.NewConflict(fmt.Sprintf("tenant %q already exists", tenant.Slug))
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by ID.
func (s *Service) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, display_name, description, status, is_active, settings, created_at, updated_at
		FROM tenants WHERE id = $1
	`, id))
}

// GetTenantBySlug retrieves a tenant by slug.
func (s *Service) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.scanTenant(s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, display_name, description, status, is_active, settings, created_at, updated_at
		FROM tenants WHERE slug = $1
	`, slug))
}

// ListTenantsForUser lists active tenants the user is a member of.
func (s *Service) ListTenantsForUser(ctx context.Context, userID int64) ([]*Tenant, error) {
	query := `
		SELECT DISTINCT t.id, t.name, t.slug, t.display_name, t.description, t.status,
		       t.is_active, t.settings, t.created_at, t.updated_at
		FROM tenants t
		JOIN tenant_members tm ON t.id = tm.tenant_id
		WHERE tm.user_id = $1 AND t.is_active = true
		ORDER BY t.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		tenant := &Tenant{}
		var settingsJSON []byte
		if err := rows.Scan(
			&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.DisplayName, &tenant.Description,
			&tenant.Status, &tenant.IsActive, &settingsJSON, &tenant.CreatedAt, &tenant.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		if len(settingsJSON) > 0 {
			if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
			}
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

// UpdateTenant applies a partial update.
func (s *Service) UpdateTenant(ctx context.Context, id int64, updates *UpdateTenantRequest) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.DisplayName != nil {
		setClauses = append(setClauses, fmt.Sprintf("display_name = $%d", argPos))
		args = append(args, *updates.DisplayName)
		argPos++
	}
	if updates.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *updates.Description)
		argPos++
	}
	if updates.Settings != nil {
		settingsJSON, err := json.Marshal(updates.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("settings = $%d", argPos))
		args = append(args, settingsJSON)
		argPos++
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE tenants SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argPos)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return rbac.NewNotFound("tenant")
	}
	return nil
}

// SuspendTenant soft-deletes a tenant. Sessions bound to it keep their
// tenant id and fail validation once the tenant is inactive elsewhere.
func (s *Service) SuspendTenant(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET status = $1, is_active = false, updated_at = NOW() WHERE id = $2`,
		TenantStatusSuspended, id)
	if err != nil {
		return fmt.Errorf("failed to suspend tenant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return rbac.NewNotFound("tenant")
	}
	return nil
}

func (s *Service) scanTenant(row *sql.Row) (*Tenant, error) {
	tenant := &Tenant{}
	var settingsJSON []byte
	err := row.Scan(
		&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.DisplayName, &tenant.Description,
		&tenant.Status, &tenant.IsActive, &settingsJSON, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, rbac.NewNotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &tenant.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return tenant, nil
}

func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
