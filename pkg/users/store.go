// Package users provides persistence for registered accounts. Invites
// resolve email addresses to users through this store.
package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tracklane/tracklane/pkg/acl"
	"github.com/tracklane/tracklane/pkg/auth"
)

// Store defines user persistence operations.
type Store interface {
	Create(ctx context.Context, user *auth.User) error
	GetByID(ctx context.Context, id int64) (*auth.User, error)
	GetByEmail(ctx context.Context, email string) (*auth.User, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new user. A duplicate email yields acl.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, user *auth.User) error {
	if user.GlobalRole == "" {
		user.GlobalRole = auth.GlobalRoleUser
	}
	user.IsActive = true

	query := `
		INSERT INTO users (email, display_name, global_role, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, user.Email, user.DisplayName, user.GlobalRole, user.IsActive).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user with email %s: %w", user.Email, acl.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by id.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	return s.get(ctx, `WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email, the lookup behind invite-by-email.
func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.get(ctx, `WHERE email = $1`, email)
}

func (s *PostgresStore) get(ctx context.Context, where string, arg interface{}) (*auth.User, error) {
	query := `
		SELECT id, email, display_name, global_role, is_active, created_at, updated_at
		FROM users
	` + where
	user := &auth.User{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.GlobalRole,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: %w", acl.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}
