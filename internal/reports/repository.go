package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/warehouse"
)

// PGRepository reads report data from PostgreSQL through the ledger engine.
type PGRepository struct {
	pool       *pgxpool.Pool
	warehouses *warehouse.Repository
}

// NewPGRepository constructs PGRepository.
func NewPGRepository(pool *pgxpool.Pool, warehouses *warehouse.Repository) *PGRepository {
	return &PGRepository{pool: pool, warehouses: warehouses}
}

func (r *PGRepository) BalanceRows(ctx context.Context, filter ledger.BalanceFilter) ([]ledger.BalanceRow, error) {
	return ledger.BalanceRows(ctx, r.pool, filter)
}

func (r *PGRepository) ActiveBatchCount(ctx context.Context) (int64, error) {
	return ledger.ActiveBatchCount(ctx, r.pool)
}

func (r *PGRepository) MonthlyFlows(ctx context.Context, from, to time.Time) ([]ledger.MonthlyFlow, error) {
	return ledger.MonthlyFlows(ctx, r.pool, from, to)
}

func (r *PGRepository) Warehouses(ctx context.Context) ([]warehouse.Warehouse, error) {
	return r.warehouses.List(ctx, false)
}
