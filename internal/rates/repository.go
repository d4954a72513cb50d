package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline-erp/frostline/internal/platform/httpx"
)

// Repository persists rate rules in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns every rule ordered by group, billing type and specificity.
func (r *Repository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(goods_item, ''), item_group, billing_type, handling_rate, loading_rate
		FROM rate_rules
		ORDER BY item_group, billing_type, goods_item NULLS FIRST, id`)
	if err != nil {
		return nil, fmt.Errorf("rates: list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.GoodsItem, &rule.ItemGroup, &rule.BillingType,
			&rule.HandlingRate, &rule.LoadingRate); err != nil {
			return nil, fmt.Errorf("rates: scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Create inserts a rule and returns it with its assigned id.
func (r *Repository) Create(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ItemGroup == "" || !rule.BillingType.Valid() {
		return Rule{}, fmt.Errorf("%w: %w", httpx.ErrValidation, ErrInvalidRule)
	}
	var item any
	if rule.GoodsItem != "" {
		item = rule.GoodsItem
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rate_rules (goods_item, item_group, billing_type, handling_rate, loading_rate)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		item, rule.ItemGroup, rule.BillingType, rule.HandlingRate, rule.LoadingRate).Scan(&rule.ID)
	if err != nil {
		return Rule{}, fmt.Errorf("rates: create rule: %w", err)
	}
	return rule, nil
}

// Delete removes a rule by id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rate_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("rates: delete rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rate rule %d", httpx.ErrNotFound, id)
	}
	return nil
}

// Snapshot loads a resolver over the current table contents.
func (r *Repository) Snapshot(ctx context.Context) (*Resolver, error) {
	rules, err := r.List(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return NewResolver(nil), nil
		}
		return nil, err
	}
	return NewResolver(rules), nil
}
