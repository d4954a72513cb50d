package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline-erp/frostline/internal/billing"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/db"
	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/internal/rates"
	"github.com/frostline-erp/frostline/internal/shared"
)

// Repository persists dispatches in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	companyAbbr string
}

// NewRepository constructs Repository. companyAbbr feeds the naming series.
func NewRepository(pool *pgxpool.Pool, companyAbbr string) *Repository {
	return &Repository{pool: pool, companyAbbr: companyAbbr}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, companyAbbr: r.companyAbbr})
	})
}

// Get loads a dispatch with its lines.
func (r *Repository) Get(ctx context.Context, code string) (Dispatch, error) {
	return getDispatch(ctx, r.pool, code)
}

// List returns dispatches without lines, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Dispatch, error) {
	query := `SELECT code, company, customer, billing_type, dispatch_date, gst_applicable, gst_rate,
		total_handling, total_loading, total_gst, grand_total, status,
		COALESCE(stock_entry_ref, ''), COALESCE(invoice_ref, ''), remarks, created_by, created_at, updated_at
		FROM dispatches WHERE 1=1`
	var args []any
	if filter.Customer != "" {
		args = append(args, filter.Customer)
		query += fmt.Sprintf(" AND customer = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetSideEffectRefs records the generated stock entry and invoice on the
// document after the submit transaction committed.
func (r *Repository) SetSideEffectRefs(ctx context.Context, code, stockEntryRef, invoiceRef string) error {
	_, err := r.pool.Exec(ctx, `UPDATE dispatches
		SET stock_entry_ref = NULLIF($2, ''), invoice_ref = NULLIF($3, ''), updated_at = now()
		WHERE code = $1`, code, stockEntryRef, invoiceRef)
	return err
}

// BatchBalance is the unlocked advisory balance read.
func (r *Repository) BatchBalance(ctx context.Context, receiptCode, batchCode, excludeDispatch string) (float64, error) {
	return ledger.BatchBalance(ctx, r.pool, receiptCode, batchCode, excludeDispatch)
}

type txRepo struct {
	tx          pgx.Tx
	companyAbbr string
}

// NextCode allocates the next code in the FL-CSD-MM-YY-#### series.
func (t *txRepo) NextCode(ctx context.Context, at time.Time) (string, error) {
	series := shared.BuildSeries(t.companyAbbr, "CSD", at)
	return shared.NextName(ctx, t.tx, series, 0)
}

func (t *txRepo) Insert(ctx context.Context, d *Dispatch) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO dispatches
		(code, company, customer, billing_type, dispatch_date, gst_applicable, gst_rate,
		 total_handling, total_loading, total_gst, grand_total, status, remarks, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		d.Code, d.Company, d.Customer, string(d.BillingType), d.DispatchDate, d.GSTApplicable, d.GSTRate,
		d.TotalHandling, d.TotalLoading, d.TotalGST, d.GrandTotal, string(d.Status), d.Remarks, d.CreatedBy,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return err
	}
	return t.insertLines(ctx, d.Code, d.Lines)
}

func (t *txRepo) insertLines(ctx context.Context, code string, lines []Line) error {
	for i := range lines {
		err := t.tx.QueryRow(ctx, `INSERT INTO dispatch_lines
			(dispatch_code, goods_item, item_group, batch_code, receipt_code, warehouse,
			 qty, rate, loading_rate, amount, loading_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			code, lines[i].GoodsItem, lines[i].ItemGroup, lines[i].BatchCode, lines[i].ReceiptCode,
			lines[i].Warehouse, lines[i].Qty, lines[i].Rate, lines[i].LoadingRate,
			lines[i].Amount, lines[i].LoadingAmount,
		).Scan(&lines[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) Get(ctx context.Context, code string) (Dispatch, error) {
	return getDispatch(ctx, t.tx, code)
}

func (t *txRepo) ReplaceLines(ctx context.Context, code string, lines []Line) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM dispatch_lines WHERE dispatch_code = $1`, code); err != nil {
		return err
	}
	return t.insertLines(ctx, code, lines)
}

func (t *txRepo) UpdateBilling(ctx context.Context, code string, lines []Line, totals billing.Totals) error {
	_, err := t.tx.Exec(ctx, `UPDATE dispatches
		SET total_handling = $2, total_loading = $3, total_gst = $4, grand_total = $5, updated_at = now()
		WHERE code = $1`,
		code, totals.Handling, totals.Loading, totals.GST, totals.GrandTotal)
	if err != nil {
		return err
	}
	for _, line := range lines {
		_, err := t.tx.Exec(ctx, `UPDATE dispatch_lines
			SET rate = $2, loading_rate = $3, amount = $4, loading_amount = $5
			WHERE id = $1`,
			line.ID, line.Rate, line.LoadingRate, line.Amount, line.LoadingAmount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) SetStatus(ctx context.Context, code string, status ledger.DocStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE dispatches SET status = $2, updated_at = now() WHERE code = $1`,
		code, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// LockAndBalance takes row locks on the source receipt lines, then computes
// the remaining balance with the given dispatch excluded.
func (t *txRepo) LockAndBalance(ctx context.Context, receiptCode, batchCode, excludeDispatch string) (float64, error) {
	if err := ledger.LockReceiptLines(ctx, t.tx, receiptCode, batchCode); err != nil {
		return 0, err
	}
	return ledger.BatchBalance(ctx, t.tx, receiptCode, batchCode, excludeDispatch)
}

func (t *txRepo) ReceiptDate(ctx context.Context, receiptCode string) (time.Time, error) {
	var date time.Time
	err := t.tx.QueryRow(ctx, `SELECT receipt_date FROM receipts WHERE code = $1`, receiptCode).Scan(&date)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("receipt %s: %w", receiptCode, httpx.ErrNotFound)
	}
	return date, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispatch(row rowScanner) (Dispatch, error) {
	var d Dispatch
	var billingType, status string
	err := row.Scan(&d.Code, &d.Company, &d.Customer, &billingType, &d.DispatchDate,
		&d.GSTApplicable, &d.GSTRate, &d.TotalHandling, &d.TotalLoading, &d.TotalGST,
		&d.GrandTotal, &status, &d.StockEntryRef, &d.InvoiceRef, &d.Remarks,
		&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Dispatch{}, err
	}
	d.BillingType = rates.BillingType(billingType)
	d.Status = ledger.DocStatus(status)
	return d, nil
}

func getDispatch(ctx context.Context, q ledger.Querier, code string) (Dispatch, error) {
	row := q.QueryRow(ctx, `SELECT code, company, customer, billing_type, dispatch_date, gst_applicable, gst_rate,
		total_handling, total_loading, total_gst, grand_total, status,
		COALESCE(stock_entry_ref, ''), COALESCE(invoice_ref, ''), remarks, created_by, created_at, updated_at
		FROM dispatches WHERE code = $1`, code)
	d, err := scanDispatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Dispatch{}, httpx.ErrNotFound
	}
	if err != nil {
		return Dispatch{}, err
	}

	rows, err := q.Query(ctx, `SELECT id, goods_item, item_group, batch_code, receipt_code, warehouse,
		qty, rate, loading_rate, amount, loading_amount
		FROM dispatch_lines WHERE dispatch_code = $1 ORDER BY id`, code)
	if err != nil {
		return Dispatch{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.GoodsItem, &line.ItemGroup, &line.BatchCode,
			&line.ReceiptCode, &line.Warehouse, &line.Qty, &line.Rate, &line.LoadingRate,
			&line.Amount, &line.LoadingAmount); err != nil {
			return Dispatch{}, err
		}
		d.Lines = append(d.Lines, line)
	}
	return d, rows.Err()
}
