package receipt

import (
	"context"
	"time"
)

// SubmittedEvent describes a receipt whose ledger transition has committed.
// EquivalentUnits is the jute-bag-equivalent total used for the
// transfer-loading journal.
type SubmittedEvent struct {
	Code            string
	Company         string
	Customer        string
	Type            Type
	ReceiptDate     time.Time
	SourceCustomer  string
	SourceWarehouse string
	TotalBags       float64
	EquivalentUnits float64
	Lines           []Line
}

// CancelledEvent describes a cancelled receipt with the generated records
// that should be reversed.
type CancelledEvent struct {
	Code          string
	Customer      string
	StockEntryRef string
	JournalRef    string
	DispatchRef   string
}

// SideEffects reports what the integration layer generated on submit.
type SideEffects struct {
	StockEntryRef string
	JournalRef    string
	Warnings      []string
}

// IntegrationHandler receives receipt lifecycle events for stock-entry,
// journal and notification side effects. Failures are contained: the primary
// transition never rolls back because of them.
type IntegrationHandler interface {
	HandleReceiptSubmitted(ctx context.Context, evt SubmittedEvent) (SideEffects, error)
	HandleReceiptCancelled(ctx context.Context, evt CancelledEvent) []string
}
