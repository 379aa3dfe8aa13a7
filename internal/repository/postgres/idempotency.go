package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lyrebird-dev/chime/internal/repository"
)

// IdempotencyRepository is the PostgreSQL-backed idempotency key store.
type IdempotencyRepository struct {
	db *sql.DB
}

// NewIdempotencyRepository creates a new idempotency key repository.
func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string, userID int64) (json.RawMessage, error) {
	var response json.RawMessage
	err := r.db.QueryRowContext(ctx,
		`SELECT response FROM idempotency_keys WHERE key = $1 AND user_id = $2`,
		key, userID,
	).Scan(&response)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency key: %w", err)
	}
	return response, nil
}

func (r *IdempotencyRepository) Save(ctx context.Context, key string, userID int64, response json.RawMessage, now int64) error {
	query := `
		INSERT INTO idempotency_keys (key, user_id, response, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, key, userID, response, now); err != nil {
		return fmt.Errorf("failed to save idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) DeleteOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean idempotency keys: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clean idempotency keys: %w", err)
	}
	return deleted, nil
}
