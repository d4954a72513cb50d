package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline-erp/frostline/internal/platform/httpx"
)

// Repository persists warehouses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns active warehouses ordered by code.
func (r *Repository) List(ctx context.Context, includeDisabled bool) ([]Warehouse, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT code, name, bag_capacity, disabled, created_at, updated_at
		FROM warehouses
		WHERE $1 OR NOT disabled
		ORDER BY code`, includeDisabled)
	if err != nil {
		return nil, fmt.Errorf("warehouse: list: %w", err)
	}
	defer rows.Close()

	var result []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.Code, &w.Name, &w.BagCapacity, &w.Disabled, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("warehouse: scan: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// Get loads one warehouse by code.
func (r *Repository) Get(ctx context.Context, code string) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `
		SELECT code, name, bag_capacity, disabled, created_at, updated_at
		FROM warehouses WHERE code = $1`, code).
		Scan(&w.Code, &w.Name, &w.BagCapacity, &w.Disabled, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, fmt.Errorf("%w: warehouse %s", httpx.ErrNotFound, code)
		}
		return Warehouse{}, fmt.Errorf("warehouse: get %s: %w", code, err)
	}
	return w, nil
}

// Create inserts a warehouse.
func (r *Repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	if err := validate(w); err != nil {
		return Warehouse{}, fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO warehouses (code, name, bag_capacity, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, false, NOW(), NOW())
		RETURNING created_at, updated_at`, w.Code, w.Name, w.BagCapacity).
		Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Warehouse{}, fmt.Errorf("%w: warehouse %s", httpx.ErrDuplicate, w.Code)
		}
		return Warehouse{}, fmt.Errorf("warehouse: create %s: %w", w.Code, err)
	}
	return w, nil
}

// Update modifies name, capacity and disabled flag.
func (r *Repository) Update(ctx context.Context, w Warehouse) error {
	if err := validate(w); err != nil {
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE warehouses SET name = $2, bag_capacity = $3, disabled = $4, updated_at = NOW()
		WHERE code = $1`, w.Code, w.Name, w.BagCapacity, w.Disabled)
	if err != nil {
		return fmt.Errorf("warehouse: update %s: %w", w.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: warehouse %s", httpx.ErrNotFound, w.Code)
	}
	return nil
}
