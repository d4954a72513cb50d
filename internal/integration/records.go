// Package integration adapts document lifecycle events to the external
// collaborators: inventory stock entries, loading-charge journals, customer
// invoices and queued notifications. These records stand in for the host ERP;
// every failure here is contained to a warning on the primary document.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/frostline-erp/frostline/internal/billing"
)

const (
	PurposeMaterialReceipt  = "Material Receipt"
	PurposeMaterialTransfer = "Material Transfer"
	PurposeMaterialIssue    = "Material Issue"
)

// StockEntryLine mirrors one document line into the inventory record.
type StockEntryLine struct {
	GoodsItem string  `json:"goods_item"`
	BatchCode string  `json:"batch_code"`
	Warehouse string  `json:"warehouse"`
	Qty       float64 `json:"qty"`
}

// Recorder persists the collaborator records in PostgreSQL.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder constructs Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// CreateStockEntry records an inventory movement and returns its reference.
func (r *Recorder) CreateStockEntry(ctx context.Context, purpose, docCode, fromWarehouse, toWarehouse string, postingDate time.Time, lines []StockEntryLine) (string, error) {
	ref := uuid.NewString()
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO stock_entries
		(ref, purpose, doc_code, from_warehouse, to_warehouse, posting_date, lines, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, 'SUBMITTED')`,
		ref, purpose, docCode, fromWarehouse, toWarehouse, postingDate, raw)
	if err != nil {
		return "", err
	}
	return ref, nil
}

// CancelStockEntry marks a stock entry cancelled.
func (r *Recorder) CancelStockEntry(ctx context.Context, ref string) error {
	_, err := r.pool.Exec(ctx, `UPDATE stock_entries SET status = 'CANCELLED' WHERE ref = $1`, ref)
	return err
}

// CreateJournal records a two-sided ledger journal and returns its reference.
func (r *Recorder) CreateJournal(ctx context.Context, docCode, remark, debitAccount, creditAccount string, amount decimal.Decimal, postingDate time.Time) (string, error) {
	ref := uuid.NewString()
	_, err := r.pool.Exec(ctx, `INSERT INTO journal_entries
		(ref, doc_code, remark, debit_account, credit_account, amount, posting_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'SUBMITTED')`,
		ref, docCode, remark, debitAccount, creditAccount, amount, postingDate)
	if err != nil {
		return "", err
	}
	return ref, nil
}

// CancelJournal marks a journal cancelled.
func (r *Recorder) CancelJournal(ctx context.Context, ref string) error {
	_, err := r.pool.Exec(ctx, `UPDATE journal_entries SET status = 'CANCELLED' WHERE ref = $1`, ref)
	return err
}

// CreateInvoice records a customer invoice with its expanded lines.
func (r *Recorder) CreateInvoice(ctx context.Context, docCode, customer string, lines []billing.InvoiceLine, tax, grandTotal decimal.Decimal, postingDate time.Time) (string, error) {
	ref := uuid.NewString()
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO invoices
		(ref, doc_code, customer, lines, tax, grand_total, posting_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'SUBMITTED')`,
		ref, docCode, customer, raw, tax, grandTotal, postingDate)
	if err != nil {
		return "", err
	}
	return ref, nil
}

// CancelInvoice marks an invoice cancelled.
func (r *Recorder) CancelInvoice(ctx context.Context, ref string) error {
	_, err := r.pool.Exec(ctx, `UPDATE invoices SET status = 'CANCELLED' WHERE ref = $1`, ref)
	return err
}

// Contact is a customer's notification endpoints.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// CustomerContact looks up the customer's contact details. Missing customers
// return an empty contact, not an error.
func (r *Recorder) CustomerContact(ctx context.Context, customer string) (Contact, error) {
	var c Contact
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, '')
		FROM customers WHERE code = $1`, customer).Scan(&c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, nil
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}
