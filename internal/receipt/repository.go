package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline-erp/frostline/internal/batch"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/db"
	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/internal/shared"
)

// Repository persists receipts in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	companyAbbr string
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, companyAbbr string) *Repository {
	return &Repository{pool: pool, companyAbbr: companyAbbr}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, companyAbbr: r.companyAbbr})
	})
}

// Get loads a receipt with its lines.
func (r *Repository) Get(ctx context.Context, code string) (Receipt, error) {
	return getReceipt(ctx, r.pool, code)
}

// List returns receipts without lines, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	query := `SELECT code, company, customer, receipt_type, receipt_date,
		COALESCE(source_customer, ''), COALESCE(source_warehouse, ''), total_bags, status,
		COALESCE(stock_entry_ref, ''), COALESCE(journal_ref, ''), COALESCE(dispatch_ref, ''),
		remarks, created_by, created_at, updated_at
		FROM receipts WHERE 1=1`
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

	var docs []Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, rec)
	}
	return docs, rows.Err()
}

// SetSideEffectRefs records the generated stock entry and journal after the
// submit transaction committed.
func (r *Repository) SetSideEffectRefs(ctx context.Context, code, stockEntryRef, journalRef string) error {
	_, err := r.pool.Exec(ctx, `UPDATE receipts
		SET stock_entry_ref = NULLIF($2, ''), journal_ref = NULLIF($3, ''), updated_at = now()
		WHERE code = $1`, code, stockEntryRef, journalRef)
	return err
}

// SetDispatchRef links the auto-generated transfer dispatch.
func (r *Repository) SetDispatchRef(ctx context.Context, code, dispatchRef string) error {
	_, err := r.pool.Exec(ctx, `UPDATE receipts
		SET dispatch_ref = NULLIF($2, ''), updated_at = now()
		WHERE code = $1`, code, dispatchRef)
	return err
}

type txRepo struct {
	tx          pgx.Tx
	companyAbbr string
}

// NextCode allocates the next code in the FL-CSR-MM-YY-#### series.
func (t *txRepo) NextCode(ctx context.Context, at time.Time) (string, error) {
	series := shared.BuildSeries(t.companyAbbr, "CSR", at)
	return shared.NextName(ctx, t.tx, series, 0)
}

func (t *txRepo) Insert(ctx context.Context, rec *Receipt) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO receipts
		(code, company, customer, receipt_type, receipt_date, source_customer, source_warehouse,
		 total_bags, status, remarks, created_by)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		rec.Code, rec.Company, rec.Customer, string(rec.Type), rec.ReceiptDate,
		rec.SourceCustomer, rec.SourceWarehouse, rec.TotalBags, string(rec.Status),
		rec.Remarks, rec.CreatedBy,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return err
	}
	return t.insertLines(ctx, rec.Code, rec.Lines)
}

func (t *txRepo) insertLines(ctx context.Context, code string, lines []Line) error {
	for i := range lines {
		err := t.tx.QueryRow(ctx, `INSERT INTO receipt_lines
			(receipt_code, goods_item, item_group, batch_code, warehouse, source_receipt, qty)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
			RETURNING id`,
			code, lines[i].GoodsItem, lines[i].ItemGroup, lines[i].BatchCode,
			lines[i].Warehouse, lines[i].SourceReceipt, lines[i].Qty,
		).Scan(&lines[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) Get(ctx context.Context, code string) (Receipt, error) {
	return getReceipt(ctx, t.tx, code)
}

func (t *txRepo) ReplaceLines(ctx context.Context, code string, lines []Line, totalBags float64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM receipt_lines WHERE receipt_code = $1`, code); err != nil {
		return err
	}
	if err := t.insertLines(ctx, code, lines); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE receipts SET total_bags = $2, updated_at = now() WHERE code = $1`,
		code, totalBags)
	return err
}

func (t *txRepo) SetStatus(ctx context.Context, code string, status ledger.DocStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE receipts SET status = $2, updated_at = now() WHERE code = $1`,
		code, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (t *txRepo) ClaimBatch(ctx context.Context, code, customer, goodsItem string) error {
	return batch.Claim(ctx, t.tx, code, customer, goodsItem)
}

func (t *txRepo) ReassignBatch(ctx context.Context, code, fromCustomer, toCustomer string) error {
	return batch.Reassign(ctx, t.tx, code, fromCustomer, toCustomer)
}

func (t *txRepo) LockAndBalance(ctx context.Context, receiptCode, batchCode string) (float64, error) {
	if err := ledger.LockReceiptLines(ctx, t.tx, receiptCode, batchCode); err != nil {
		return 0, err
	}
	return ledger.BatchBalance(ctx, t.tx, receiptCode, batchCode, "")
}

func (t *txRepo) AggregateBalance(ctx context.Context, customer, warehouse, batchCode string) (float64, error) {
	return ledger.AggregateBalance(ctx, t.tx, customer, warehouse, batchCode)
}

func (t *txRepo) DispatchedTotal(ctx context.Context, receiptCode string) (float64, error) {
	return ledger.ReceiptDispatchedTotal(ctx, t.tx, receiptCode)
}

func (t *txRepo) DispatchRefCount(ctx context.Context, receiptCode string) (int64, error) {
	return ledger.ReceiptReferenceCount(ctx, t.tx, receiptCode)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (Receipt, error) {
	var rec Receipt
	var recType, status string
	err := row.Scan(&rec.Code, &rec.Company, &rec.Customer, &recType, &rec.ReceiptDate,
		&rec.SourceCustomer, &rec.SourceWarehouse, &rec.TotalBags, &status,
		&rec.StockEntryRef, &rec.JournalRef, &rec.DispatchRef,
		&rec.Remarks, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Receipt{}, err
	}
	rec.Type = Type(recType)
	rec.Status = ledger.DocStatus(status)
	return rec, nil
}

func getReceipt(ctx context.Context, q ledger.Querier, code string) (Receipt, error) {
	row := q.QueryRow(ctx, `SELECT code, company, customer, receipt_type, receipt_date,
		COALESCE(source_customer, ''), COALESCE(source_warehouse, ''), total_bags, status,
		COALESCE(stock_entry_ref, ''), COALESCE(journal_ref, ''), COALESCE(dispatch_ref, ''),
		remarks, created_by, created_at, updated_at
		FROM receipts WHERE code = $1`, code)
	rec, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, httpx.ErrNotFound
	}
	if err != nil {
		return Receipt{}, err
	}

	rows, err := q.Query(ctx, `SELECT id, goods_item, item_group, batch_code, warehouse,
		COALESCE(source_receipt, ''), qty
		FROM receipt_lines WHERE receipt_code = $1 ORDER BY id`, code)
	if err != nil {
		return Receipt{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.GoodsItem, &line.ItemGroup, &line.BatchCode,
			&line.Warehouse, &line.SourceReceipt, &line.Qty); err != nil {
			return Receipt{}, err
		}
		rec.Lines = append(rec.Lines, line)
	}
	return rec, rows.Err()
}
