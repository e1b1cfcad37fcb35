package tenants

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

// ListMembers retrieves all members of a tenant, oldest first.
func (s *Service) ListMembers(ctx context.Context, tenantID int64) ([]*Member, error) {
	query := `
		SELECT tm.id, tm.tenant_id, tm.user_id, u.email, u.full_name,
		       tm.invited_by, tm.joined_at, tm.created_at
		FROM tenant_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.tenant_id = $1
		ORDER BY tm.created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		var fullName sql.NullString
		if err := rows.Scan(
			&member.ID, &member.TenantID, &member.UserID, &member.Email, &fullName,
			&member.InvitedBy, &member.JoinedAt, &member.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if fullName.Valid {
			member.FullName = fullName.String
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// IsMember reports whether the user belongs to the tenant.
func (s *Service) IsMember(ctx context.Context, tenantID, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// AddMember adds a user to a tenant. Adding an existing member is a conflict.
func (s *Service) AddMember(ctx context.Context, tenantID, userID int64, invitedBy *int64) error {
	query := `
		INSERT INTO tenant_members (tenant_id, user_id, invited_by, joined_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, tenantID, userID, invitedBy)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return rbac.NewConflict("user is already a member")
	}
	return nil
}

// RemoveMember removes a user from a tenant and clears their role
// assignments in that tenant in the same transaction.
func (s *Service) RemoveMember(ctx context.Context, tenantID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return rbac.NewNotFound("member")
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID); err != nil {
		return fmt.Errorf("failed to clear role assignments: %w", err)
	}

	return tx.Commit()
}
