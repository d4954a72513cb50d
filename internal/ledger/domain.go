// Package ledger is the authoritative balance engine over receipt and dispatch
// lines. Both the transactional validation path and every report derive
// quantities through this package so the received-minus-dispatched formula can
// never diverge between the two.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// DocStatus enumerates document lifecycle states shared by receipts and
// dispatches. Only submitted documents contribute to balances.
type DocStatus string

const (
	// StatusDraft marks a document that has not been posted yet.
	StatusDraft DocStatus = "DRAFT"
	// StatusSubmitted marks a posted document whose lines count in the ledger.
	StatusSubmitted DocStatus = "SUBMITTED"
	// StatusCancelled marks a reversed document, excluded from balances.
	StatusCancelled DocStatus = "CANCELLED"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx. Balance
// reads accept it so the validation gate can re-check balances inside the same
// transaction that holds the row locks.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BalanceRow is one receipt line with its dispatched quantity, the unit every
// stock report is built from.
type BalanceRow struct {
	ReceiptCode string
	ReceiptDate time.Time
	Customer    string
	Warehouse   string
	GoodsItem   string
	ItemGroup   string
	BatchCode   string
	InQty       float64
	OutQty      float64
}

// Balance returns the remaining quantity for the row.
func (b BalanceRow) Balance() float64 {
	return b.InQty - b.OutQty
}

// BalanceFilter narrows BalanceRows queries.
type BalanceFilter struct {
	Customer  string
	Warehouse string
	GoodsItem string
	ItemGroup string
	BatchCode string
	FromDate  time.Time
	ToDate    time.Time
}

// MonthlyFlow aggregates inbound and outbound bags for one calendar month.
type MonthlyFlow struct {
	Month  time.Time
	InQty  float64
	OutQty float64
}

// ErrMissingKey indicates a balance lookup without both identifying keys.
var ErrMissingKey = errors.New("ledger: receipt and batch required")
