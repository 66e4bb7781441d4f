package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/flash-sale-processor/internal/model"
)

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// UserRepository provides data access for users using pgx.
type UserRepository struct {
	pool PoolInterface
}

// NewUserRepository creates a new UserRepository with the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// NewUserRepositoryWithPool creates a new UserRepository with a custom pool interface.
// This is primarily used for testing.
func NewUserRepositoryWithPool(pool PoolInterface) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetOrCreateByEmail returns the user for the given email, creating one with
// the default role on first sight. Email matching is case-insensitive; the
// stored email is lower-cased. The upsert makes concurrent first requests
// from the same email converge on a single row.
func (r *UserRepository) GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		INSERT INTO users (id, email, role)
		VALUES ($1, lower($2), $3)
		ON CONFLICT (email) DO UPDATE SET email = users.email
		RETURNING id, email, role, created_at`

	var user model.User
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), email, model.RoleUser).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create user by email: %w", err)
	}
	return &user, nil
}

// GetByID retrieves a user by id. Returns nil, nil when not found.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT id, email, role, created_at FROM users WHERE id = $1`

	var user model.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id %s: %w", id, err)
	}
	return &user, nil
}
