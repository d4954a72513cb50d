// Package dispatch implements the outbound movement document and the
// validation gate that guards batch balances.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/rates"
)

// Dispatch models one outbound movement billed to a customer. Every line
// references the specific receipt and batch it draws down; the document level
// carries no receipt link on purpose, since one dispatch may draw from several
// receipts.
type Dispatch struct {
	Code          string            `json:"code"`
	Company       string            `json:"company"`
	Customer      string            `json:"customer"`
	BillingType   rates.BillingType `json:"billing_type"`
	DispatchDate  time.Time         `json:"dispatch_date"`
	GSTApplicable bool              `json:"gst_applicable"`
	GSTRate       decimal.Decimal   `json:"gst_rate"`
	TotalHandling decimal.Decimal   `json:"total_handling"`
	TotalLoading  decimal.Decimal   `json:"total_loading"`
	TotalGST      decimal.Decimal   `json:"total_gst"`
	GrandTotal    decimal.Decimal   `json:"grand_total"`
	Status        ledger.DocStatus  `json:"status"`
	StockEntryRef string            `json:"stock_entry_ref,omitempty"`
	InvoiceRef    string            `json:"invoice_ref,omitempty"`
	Remarks       string            `json:"remarks,omitempty"`
	CreatedBy     string            `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Lines         []Line            `json:"lines"`
}

// Line is one batch drawdown within a dispatch.
type Line struct {
	ID            int64           `json:"id"`
	GoodsItem     string          `json:"goods_item"`
	ItemGroup     string          `json:"item_group"`
	BatchCode     string          `json:"batch_code"`
	ReceiptCode   string          `json:"receipt_code"`
	Warehouse     string          `json:"warehouse"`
	Qty           float64         `json:"qty"`
	Rate          decimal.Decimal `json:"rate"`
	LoadingRate   decimal.Decimal `json:"loading_rate"`
	Amount        decimal.Decimal `json:"amount"`
	LoadingAmount decimal.Decimal `json:"loading_amount"`
}

var (
	// ErrInvalidQuantity indicates a non-positive bag count.
	ErrInvalidQuantity = errors.New("dispatch: number of bags must be greater than 0")
	// ErrMissingReceipt indicates a line without its source receipt.
	ErrMissingReceipt = errors.New("dispatch: linked receipt required on every line")
	// ErrMissingWarehouse indicates a line without a warehouse.
	ErrMissingWarehouse = errors.New("dispatch: warehouse required on every line")
	// ErrFutureDate rejects dispatch dates after today.
	ErrFutureDate = errors.New("dispatch: dispatch date cannot be in the future")
	// ErrNotDraft rejects a transition available only from draft.
	ErrNotDraft = errors.New("dispatch: document is not in draft state")
	// ErrNotSubmitted rejects a transition available only from submitted.
	ErrNotSubmitted = errors.New("dispatch: document is not submitted")
	// ErrNoLines rejects an empty document.
	ErrNoLines = errors.New("dispatch: at least one line required")
)

// InsufficientBalanceError reports the failing line with the quantities the
// caller needs to correct it.
type InsufficientBalanceError struct {
	Row         int
	ReceiptCode string
	BatchCode   string
	Available   float64
	Requested   float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("dispatch: row %d: insufficient balance for batch %s on receipt %s: available %g, requested %g",
		e.Row, e.BatchCode, e.ReceiptCode, e.Available, e.Requested)
}
