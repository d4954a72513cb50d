// Package reports derives the read-side projections: customer stock ledger,
// inventory aging, warehouse utilization, movement trends and the dashboard
// summary. Every quantity goes through the ledger balance engine so the
// reports can never disagree with the validation gate.
package reports

import (
	"time"

	"github.com/frostline-erp/frostline/internal/ledger"
)

// StockLedgerRow is one receipt line with its drawdown state and storage age.
type StockLedgerRow struct {
	ReceiptCode string    `json:"receipt_code"`
	ReceiptDate time.Time `json:"receipt_date"`
	Customer    string    `json:"customer"`
	Warehouse   string    `json:"warehouse"`
	GoodsItem   string    `json:"goods_item"`
	ItemGroup   string    `json:"item_group"`
	BatchCode   string    `json:"batch_code"`
	InQty       float64   `json:"in_qty"`
	OutQty      float64   `json:"out_qty"`
	Balance     float64   `json:"balance"`
	DaysInStore int       `json:"days_in_store"`
}

// AgingRow is a stock ledger row classified into an age bucket. Only rows with
// a positive balance appear.
type AgingRow struct {
	StockLedgerRow
	Bucket string `json:"bucket"`
}

// AgingSummary aggregates remaining bags per age bucket.
type AgingSummary struct {
	Bucket string  `json:"bucket"`
	Qty    float64 `json:"qty"`
}

// AgingReport couples the classified rows with the per-bucket totals.
type AgingReport struct {
	Rows    []AgingRow     `json:"rows"`
	Summary []AgingSummary `json:"summary"`
}

// UtilizationRow reports equivalent-unit occupancy against capacity for one
// warehouse.
type UtilizationRow struct {
	Warehouse      string  `json:"warehouse"`
	Capacity       float64 `json:"capacity"`
	Used           float64 `json:"used"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// TrendPoint is one month of inbound and outbound movement.
type TrendPoint struct {
	Month  time.Time `json:"month"`
	InQty  float64   `json:"in_qty"`
	OutQty float64   `json:"out_qty"`
}

// Dashboard is the cached summary the landing page renders.
type Dashboard struct {
	TotalBalance  float64          `json:"total_balance"`
	ActiveBatches int64            `json:"active_batches"`
	Utilization   []UtilizationRow `json:"utilization"`
	Trends        []TrendPoint     `json:"trends"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// Filter narrows report queries.
type Filter = ledger.BalanceFilter
