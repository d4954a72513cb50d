package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for API keys.
type Repository interface {
	FindByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByPrefix fetches a key record by its public prefix.
func (r *PGRepository) FindByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, prefix, secret_hash, name, COALESCE(customer, ''), roles, disabled, created_at, last_used_at
		FROM api_keys
		WHERE prefix = $1`, prefix)
	var key APIKey
	err := row.Scan(&key.ID, &key.Prefix, &key.SecretHash, &key.Name, &key.Customer, &key.Roles, &key.Disabled, &key.CreatedAt, &key.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	return &key, nil
}

// TouchLastUsed records when the key last authenticated a request.
func (r *PGRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at.UTC())
	return err
}

var _ Repository = (*PGRepository)(nil)
