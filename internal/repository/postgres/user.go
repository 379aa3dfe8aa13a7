package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lyrebird-dev/chime/internal/models"
	"github.com/lyrebird-dev/chime/internal/repository"
)

// UserRepository is the PostgreSQL-backed user store.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByToken(ctx context.Context, token string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, api_token, created_at FROM users WHERE api_token = $1`,
		token,
	).Scan(&user.ID, &user.APIToken, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by token: %w", err)
	}
	return &user, nil
}
