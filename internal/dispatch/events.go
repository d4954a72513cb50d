package dispatch

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frostline-erp/frostline/internal/rates"
)

// SubmittedLine carries a computed line plus the receipt date used for the
// storage-duration multiplier on the invoice.
type SubmittedLine struct {
	Line
	ReceiptDate time.Time
}

// SubmittedEvent describes a dispatch whose ledger transition has committed.
type SubmittedEvent struct {
	Code          string
	Company       string
	Customer      string
	BillingType   rates.BillingType
	DispatchDate  time.Time
	GSTApplicable bool
	GSTRate       decimal.Decimal
	GrandTotal    decimal.Decimal
	Lines         []SubmittedLine
}

// CancelledEvent describes a cancelled dispatch with the generated records
// that should be reversed.
type CancelledEvent struct {
	Code          string
	Customer      string
	StockEntryRef string
	InvoiceRef    string
}

// SideEffects reports what the integration layer generated, plus warnings for
// anything that failed without blocking the document transition.
type SideEffects struct {
	StockEntryRef string
	InvoiceRef    string
	Warnings      []string
}

// IntegrationHandler receives dispatch lifecycle events for downstream
// stock-entry, invoicing and notification side effects. Failures there are
// contained: the primary transition never rolls back because of them.
type IntegrationHandler interface {
	HandleDispatchSubmitted(ctx context.Context, evt SubmittedEvent) (SideEffects, error)
	HandleDispatchCancelled(ctx context.Context, evt CancelledEvent) []string
}
