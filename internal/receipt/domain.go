// Package receipt implements the inbound movement document: plain receipts,
// customer transfers that move stock between customer accounts, and warehouse
// transfers that relocate stock within one account.
package receipt

import (
	"errors"
	"fmt"
	"time"

	"github.com/frostline-erp/frostline/internal/ledger"
)

// Type distinguishes the three inbound flavours.
type Type string

const (
	TypeNew               Type = "New Receipt"
	TypeCustomerTransfer  Type = "Customer Transfer"
	TypeWarehouseTransfer Type = "Warehouse Transfer"
)

// Valid reports whether the type is one of the known flavours.
func (t Type) Valid() bool {
	switch t {
	case TypeNew, TypeCustomerTransfer, TypeWarehouseTransfer:
		return true
	}
	return false
}

// Transfer reports whether the type draws down existing stock.
func (t Type) Transfer() bool {
	return t == TypeCustomerTransfer || t == TypeWarehouseTransfer
}

// Receipt models one inbound movement. TotalBags is denormalized from the
// lines and recomputed on every write, never trusted from the client.
type Receipt struct {
	Code            string           `json:"code"`
	Company         string           `json:"company"`
	Customer        string           `json:"customer"`
	Type            Type             `json:"receipt_type"`
	ReceiptDate     time.Time        `json:"receipt_date"`
	SourceCustomer  string           `json:"source_customer,omitempty"`
	SourceWarehouse string           `json:"source_warehouse,omitempty"`
	TotalBags       float64          `json:"total_bags"`
	Status          ledger.DocStatus `json:"status"`
	StockEntryRef   string           `json:"stock_entry_ref,omitempty"`
	JournalRef      string           `json:"journal_ref,omitempty"`
	DispatchRef     string           `json:"dispatch_ref,omitempty"`
	Remarks         string           `json:"remarks,omitempty"`
	CreatedBy       string           `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Lines           []Line           `json:"lines"`
}

// Line is one batch placed into a warehouse. SourceReceipt names the receipt
// the stock is drawn from on customer transfers.
type Line struct {
	ID            int64   `json:"id"`
	GoodsItem     string  `json:"goods_item"`
	ItemGroup     string  `json:"item_group"`
	BatchCode     string  `json:"batch_code"`
	Warehouse     string  `json:"warehouse"`
	SourceReceipt string  `json:"source_receipt,omitempty"`
	Qty           float64 `json:"qty"`
}

var (
	// ErrInvalidQuantity indicates a non-positive bag count.
	ErrInvalidQuantity = errors.New("receipt: number of bags must be greater than 0")
	// ErrMissingWarehouse indicates a line without a warehouse.
	ErrMissingWarehouse = errors.New("receipt: warehouse required on every line")
	// ErrMissingBatch indicates a line without a batch code.
	ErrMissingBatch = errors.New("receipt: batch required on every line")
	// ErrFutureDate rejects receipt dates after today.
	ErrFutureDate = errors.New("receipt: receipt date cannot be in the future")
	// ErrNotDraft rejects a transition available only from draft.
	ErrNotDraft = errors.New("receipt: document is not in draft state")
	// ErrNotSubmitted rejects a transition available only from submitted.
	ErrNotSubmitted = errors.New("receipt: document is not submitted")
	// ErrNoLines rejects an empty document.
	ErrNoLines = errors.New("receipt: at least one line required")
	// ErrSourceCustomerRequired rejects a customer transfer without its source.
	ErrSourceCustomerRequired = errors.New("receipt: source customer required for customer transfer")
	// ErrSourceReceiptRequired rejects a customer transfer line without the
	// receipt the stock comes from.
	ErrSourceReceiptRequired = errors.New("receipt: source receipt required on customer transfer lines")
	// ErrSourceWarehouseRequired rejects a warehouse transfer without its source.
	ErrSourceWarehouseRequired = errors.New("receipt: source warehouse required for warehouse transfer")
	// ErrSameCustomer rejects a customer transfer onto itself.
	ErrSameCustomer = errors.New("receipt: source and destination customer must differ")
	// ErrHasLiveDispatches blocks cancellation while non-cancelled dispatches still
	// draw from the receipt.
	ErrHasLiveDispatches = errors.New("receipt: dispatches still reference this receipt")
)

// TransferShortfallError reports a transfer that requests more than the
// source holds.
type TransferShortfallError struct {
	Row       int
	BatchCode string
	Available float64
	Requested float64
}

func (e *TransferShortfallError) Error() string {
	return fmt.Sprintf("receipt: row %d: transfer exceeds source balance for batch %s: available %g, requested %g",
		e.Row, e.BatchCode, e.Available, e.Requested)
}
