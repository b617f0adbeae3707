package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// UserRepository handles user data operations
type UserRepository struct{}

// NewUserRepository creates a new user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// GetUser retrieves a user by ID
func (r *UserRepository) GetUser(ctx context.Context, db DBExecutor, id string) (*model.User, error) {
	query := `
		SELECT id, phone, name, email, avatar, created_at
		FROM users
		WHERE id = $1
	`

	var user model.User
	err := db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, id, "user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByPhone retrieves a user by phone number
func (r *UserRepository) GetUserByPhone(ctx context.Context, db DBExecutor, phone string) (*model.User, error) {
	query := `
		SELECT id, phone, name, email, avatar, created_at
		FROM users
		WHERE phone = $1
	`

	var user model.User
	err := db.GetContext(ctx, &user, query, phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.E(model.KindNotFound, phone, "user not found")
		}
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}

	return &user, nil
}

// UpsertUser inserts a user, keeping the existing row on phone conflict
func (r *UserRepository) UpsertUser(ctx context.Context, db DBExecutor, user *model.User) error {
	query := `
		INSERT INTO users (id, phone, name, email, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (phone) DO NOTHING
	`

	_, err := db.ExecContext(ctx, query,
		user.ID, user.Phone, user.Name, user.Email, user.Avatar)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// ExistingUsers returns which of the given ids reference a known user.
// The result preserves the input order and drops duplicates.
func (r *UserRepository) ExistingUsers(ctx context.Context, db DBExecutor, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT id FROM users WHERE id = ANY($1)`

	var found []string
	if err := db.SelectContext(ctx, &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}

	known := make(map[string]bool, len(found))
	for _, id := range found {
		known[id] = true
	}

	existing := make([]string, 0, len(found))
	for _, id := range ids {
		if known[id] {
			existing = append(existing, id)
			known[id] = false // drop duplicates from the request
		}
	}

	return existing, nil
}
