package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool. Batch claims run inside
// the receipt submission transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Get loads a batch by code.
func Get(ctx context.Context, q Querier, code string) (Batch, bool, error) {
	var b Batch
	err := q.QueryRow(ctx, `
		SELECT code, COALESCE(customer, ''), COALESCE(goods_item, ''), created_at
		FROM batches WHERE code = $1`, code).Scan(&b.Code, &b.Customer, &b.GoodsItem, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, false, nil
		}
		return Batch{}, false, fmt.Errorf("batch: get %s: %w", code, err)
	}
	return b, true, nil
}

// Claim creates the batch on first sight and binds it to the customer.
// Claiming a batch owned by a different customer fails with
// ErrOwnedByOtherCustomer; re-claiming by the same owner is a no-op.
func Claim(ctx context.Context, q Querier, code, customer, goodsItem string) error {
	if code == "" {
		return errors.New("batch: code required")
	}
	existing, found, err := Get(ctx, q, code)
	if err != nil {
		return err
	}
	if !found {
		_, err := q.Exec(ctx, `
			INSERT INTO batches (code, customer, goods_item, created_at)
			VALUES ($1, NULLIF($2, ''), $3, NOW())
			ON CONFLICT (code) DO NOTHING`, code, customer, goodsItem)
		if err != nil {
			return fmt.Errorf("batch: create %s: %w", code, err)
		}
		return nil
	}
	if existing.Customer == "" && customer != "" {
		if _, err := q.Exec(ctx, `UPDATE batches SET customer = $2 WHERE code = $1`, code, customer); err != nil {
			return fmt.Errorf("batch: bind %s to %s: %w", code, customer, err)
		}
		return nil
	}
	if existing.Customer != "" && customer != "" && existing.Customer != customer {
		return fmt.Errorf("%w: %s belongs to %s", ErrOwnedByOtherCustomer, code, existing.Customer)
	}
	return nil
}

// Reassign moves batch ownership between customers. This is the customer
// transfer path; plain receipts must go through Claim, which blocks
// reassignment.
func Reassign(ctx context.Context, q Querier, code, fromCustomer, toCustomer string) error {
	existing, found, err := Get(ctx, q, code)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("batch: reassign unknown batch %s", code)
	}
	if existing.Customer != "" && existing.Customer != fromCustomer {
		return fmt.Errorf("%w: %s belongs to %s, not %s", ErrOwnedByOtherCustomer, code, existing.Customer, fromCustomer)
	}
	_, err = q.Exec(ctx, `UPDATE batches SET customer = $2 WHERE code = $1`, code, toCustomer)
	if err != nil {
		return fmt.Errorf("batch: reassign %s to %s: %w", code, toCustomer, err)
	}
	return nil
}
