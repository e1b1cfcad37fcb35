package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/sentinel/pkg/rbac"
)

// Store handles user identity persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new identity store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, verified, is_active, created_at, updated_at, last_login_at
		FROM users WHERE id = $1
	`, userID))
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, verified, is_active, created_at, updated_at, last_login_at
		FROM users WHERE email = $1
	`, normalizeEmail(email)))
}

// SignUp creates a user with a bcrypt-hashed password.
func (s *Store) SignUp(ctx context.Context, email, password, fullName string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, rbac.NewValidation("a valid email is required")
	}
	if len(password) < 8 {
		return nil, rbac.NewValidation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var userID int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, full_name, password_hash, verified, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, false, true, NOW(), NOW())
		RETURNING id
	`, email, fullName, string(hash)).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, rbac.NewConflict(fmt.Sprintf("user %q already exists", email))
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.GetUser(ctx, userID)
}

// SignIn verifies the password and returns the user. Inactive users and bad
// credentials both fail with AuthRequired so callers cannot probe accounts.
func (s *Store) SignIn(ctx context.Context, email, password string) (*User, error) {
	var user User
	var passwordHash sql.NullString
	var fullName sql.NullString
	var lastLoginAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, password_hash, verified, is_active, created_at, updated_at, last_login_at
		FROM users WHERE email = $1
	`, normalizeEmail(email)).Scan(
		&user.ID, &user.Email, &fullName, &passwordHash,
		&user.Verified, &user.IsActive, &user.CreatedAt, &user.UpdatedAt, &lastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, rbac.NewAuthRequired()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !user.IsActive || !passwordHash.Valid {
		return nil, rbac.NewAuthRequired()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash.String), []byte(password)); err != nil {
		return nil, rbac.NewAuthRequired()
	}

	if fullName.Valid {
		user.FullName = fullName.String
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}

	if err := s.touchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOrCreateOAuthUser resolves an external identity to a local user,
// creating both on first sign-in. Idempotent by (provider, providerID):
// a callback aborted after user creation simply finds the same user on
// retry instead of leaving a half-created duplicate.
func (s *Store) FindOrCreateOAuthUser(ctx context.Context, provider, providerID, email, fullName string) (*User, error) {
	email = normalizeEmail(email)
	if provider == "" || providerID == "" {
		return nil, rbac.NewValidation("provider and provider id are required")
	}

	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM oauth_identities
		WHERE provider = $1 AND provider_id = $2
	`, provider, providerID).Scan(&userID)

	if err == nil {
		if err := s.touchLastLogin(ctx, userID); err != nil {
			return nil, err
		}
		return s.GetUser(ctx, userID)
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up oauth identity: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Reuse an existing account with the same email; otherwise provision one.
	// OAuth-provided emails count as verified.
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err == sql.ErrNoRows {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO users (email, full_name, verified, is_active, created_at, updated_at, last_login_at)
			VALUES ($1, $2, true, true, NOW(), NOW(), NOW())
			RETURNING id
		`, email, fullName).Scan(&userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to provision oauth user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO oauth_identities (provider, provider_id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (provider, provider_id) DO UPDATE SET updated_at = NOW()
	`, provider, providerID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to link oauth identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit oauth provisioning: %w", err)
	}

	return s.GetUser(ctx, userID)
}

func (s *Store) touchLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var user User
	var fullName sql.NullString
	var lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &fullName,
		&user.Verified, &user.IsActive, &user.CreatedAt, &user.UpdatedAt, &lastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, rbac.NewNotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if fullName.Valid {
		user.FullName = fullName.String
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
