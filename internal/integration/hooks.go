package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frostline-erp/frostline/internal/billing"
	"github.com/frostline-erp/frostline/internal/dispatch"
	"github.com/frostline-erp/frostline/internal/receipt"
	"github.com/frostline-erp/frostline/jobs"
)

// RecorderPort is the persistence surface Hooks writes through.
type RecorderPort interface {
	CreateStockEntry(ctx context.Context, purpose, docCode, fromWarehouse, toWarehouse string, postingDate time.Time, lines []StockEntryLine) (string, error)
	CancelStockEntry(ctx context.Context, ref string) error
	CreateJournal(ctx context.Context, docCode, remark, debitAccount, creditAccount string, amount decimal.Decimal, postingDate time.Time) (string, error)
	CancelJournal(ctx context.Context, ref string) error
	CreateInvoice(ctx context.Context, docCode, customer string, lines []billing.InvoiceLine, tax, grandTotal decimal.Decimal, postingDate time.Time) (string, error)
	CancelInvoice(ctx context.Context, ref string) error
	CustomerContact(ctx context.Context, customer string) (Contact, error)
}

// NotifyPort enqueues customer notifications. Satisfied by *jobs.Client.
type NotifyPort interface {
	EnqueueNotifyDispatch(ctx context.Context, payload jobs.NotifyDispatchPayload) error
	EnqueueNotifyReceipt(ctx context.Context, payload jobs.NotifyReceiptPayload) error
}

// Config holds the accounting settings for transfer loading charges. Empty
// accounts disable the journal, matching the configurable-rate behaviour of
// the settings screen.
type Config struct {
	LoadingExpenseAccount string
	LoadingPayableAccount string
	IntraWarehouseRate    decimal.Decimal
	InterWarehouseRate    decimal.Decimal
}

// Hooks implements the receipt and dispatch integration handlers.
type Hooks struct {
	logger   *slog.Logger
	recorder RecorderPort
	notify   NotifyPort
	cfg      Config
}

// NewHooks constructs Hooks. notify may be nil when no queue is configured.
func NewHooks(logger *slog.Logger, recorder RecorderPort, notify NotifyPort, cfg Config) *Hooks {
	return &Hooks{logger: logger, recorder: recorder, notify: notify, cfg: cfg}
}

var (
	_ receipt.IntegrationHandler  = (*Hooks)(nil)
	_ dispatch.IntegrationHandler = (*Hooks)(nil)
)

// HandleDispatchSubmitted creates the inventory issue, the customer invoice
// and a notification for a submitted dispatch. The stock entry is the only
// hard failure; invoice and notification degrade to warnings.
func (h *Hooks) HandleDispatchSubmitted(ctx context.Context, evt dispatch.SubmittedEvent) (dispatch.SideEffects, error) {
	var effects dispatch.SideEffects

	lines := make([]StockEntryLine, len(evt.Lines))
	for i, line := range evt.Lines {
		lines[i] = StockEntryLine{
			GoodsItem: line.GoodsItem,
			BatchCode: line.BatchCode,
			Warehouse: line.Warehouse,
			Qty:       line.Qty,
		}
	}
	stockRef, err := h.recorder.CreateStockEntry(ctx, PurposeMaterialIssue, evt.Code, "", "", evt.DispatchDate, lines)
	if err != nil {
		return effects, fmt.Errorf("stock entry: %w", err)
	}
	effects.StockEntryRef = stockRef

	invoiceRef, err := h.createDispatchInvoice(ctx, evt)
	if err != nil {
		h.logger.Error("dispatch invoice failed", slog.String("code", evt.Code), slog.Any("error", err))
		effects.Warnings = append(effects.Warnings, fmt.Sprintf("invoice not created: %v", err))
	} else {
		effects.InvoiceRef = invoiceRef
	}

	if warning := h.notifyDispatch(ctx, evt); warning != "" {
		effects.Warnings = append(effects.Warnings, warning)
	}
	return effects, nil
}

func (h *Hooks) createDispatchInvoice(ctx context.Context, evt dispatch.SubmittedEvent) (string, error) {
	var rows []billing.InvoiceLine
	var subtotal decimal.Decimal
	for _, line := range evt.Lines {
		dur := billing.StorageDuration(evt.BillingType, line.ReceiptDate, evt.DispatchDate)
		for _, row := range billing.InvoiceLines(billing.Line{
			GoodsItem:   line.GoodsItem,
			ItemGroup:   line.ItemGroup,
			BatchCode:   line.BatchCode,
			Qty:         line.Qty,
			Rate:        line.Rate,
			LoadingRate: line.LoadingRate,
		}, evt.BillingType, dur) {
			rows = append(rows, row)
			subtotal = subtotal.Add(row.Amount)
		}
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no billable lines")
	}
	var tax decimal.Decimal
	if evt.GSTApplicable {
		tax = subtotal.Mul(evt.GSTRate).Div(decimal.NewFromInt(100))
	}
	return h.recorder.CreateInvoice(ctx, evt.Code, evt.Customer, rows, tax, subtotal.Add(tax), evt.DispatchDate)
}

func (h *Hooks) notifyDispatch(ctx context.Context, evt dispatch.SubmittedEvent) string {
	if h.notify == nil {
		return ""
	}
	contact, err := h.recorder.CustomerContact(ctx, evt.Customer)
	if err != nil {
		return fmt.Sprintf("notification skipped: %v", err)
	}
	var totalBags float64
	for _, line := range evt.Lines {
		totalBags += line.Qty
	}
	err = h.notify.EnqueueNotifyDispatch(ctx, jobs.NotifyDispatchPayload{
		DispatchCode: evt.Code,
		Customer:     evt.Customer,
		Email:        contact.Email,
		Phone:        contact.Phone,
		DispatchDate: evt.DispatchDate,
		GrandTotal:   evt.GrandTotal.StringFixed(2),
		TotalBags:    totalBags,
	})
	if err != nil {
		h.logger.Error("dispatch notification enqueue failed", slog.String("code", evt.Code), slog.Any("error", err))
		return fmt.Sprintf("notification not queued: %v", err)
	}
	return ""
}

// HandleDispatchCancelled reverses the generated stock entry and invoice.
// Each failure becomes a warning.
func (h *Hooks) HandleDispatchCancelled(ctx context.Context, evt dispatch.CancelledEvent) []string {
	var warnings []string
	if evt.StockEntryRef != "" {
		if err := h.recorder.CancelStockEntry(ctx, evt.StockEntryRef); err != nil {
			warnings = append(warnings, fmt.Sprintf("stock entry %s not cancelled: %v", evt.StockEntryRef, err))
		}
	}
	if evt.InvoiceRef != "" {
		if err := h.recorder.CancelInvoice(ctx, evt.InvoiceRef); err != nil {
			warnings = append(warnings, fmt.Sprintf("invoice %s not cancelled: %v", evt.InvoiceRef, err))
		}
	}
	return warnings
}

// HandleReceiptSubmitted creates the inventory movement, the transfer-loading
// journal for warehouse transfers and a notification.
func (h *Hooks) HandleReceiptSubmitted(ctx context.Context, evt receipt.SubmittedEvent) (receipt.SideEffects, error) {
	var effects receipt.SideEffects

	purpose := PurposeMaterialReceipt
	fromWarehouse := ""
	if evt.Type == receipt.TypeWarehouseTransfer {
		purpose = PurposeMaterialTransfer
		fromWarehouse = evt.SourceWarehouse
	}
	lines := make([]StockEntryLine, len(evt.Lines))
	toWarehouse := ""
	for i, line := range evt.Lines {
		lines[i] = StockEntryLine{
			GoodsItem: line.GoodsItem,
			BatchCode: line.BatchCode,
			Warehouse: line.Warehouse,
			Qty:       line.Qty,
		}
		toWarehouse = line.Warehouse
	}
	stockRef, err := h.recorder.CreateStockEntry(ctx, purpose, evt.Code, fromWarehouse, toWarehouse, evt.ReceiptDate, lines)
	if err != nil {
		return effects, fmt.Errorf("stock entry: %w", err)
	}
	effects.StockEntryRef = stockRef

	if evt.Type == receipt.TypeWarehouseTransfer {
		journalRef, warning := h.createLoadingJournal(ctx, evt)
		effects.JournalRef = journalRef
		if warning != "" {
			effects.Warnings = append(effects.Warnings, warning)
		}
	}

	if warning := h.notifyReceipt(ctx, evt); warning != "" {
		effects.Warnings = append(effects.Warnings, warning)
	}
	return effects, nil
}

// createLoadingJournal posts the loading-charge journal for a warehouse
// transfer: equivalent units times the intra- or inter-warehouse rate.
// Unconfigured accounts or a zero rate skip the journal silently, matching
// the settings screen semantics.
func (h *Hooks) createLoadingJournal(ctx context.Context, evt receipt.SubmittedEvent) (string, string) {
	if h.cfg.LoadingExpenseAccount == "" || h.cfg.LoadingPayableAccount == "" {
		h.logger.Info("transfer loading charges skipped: accounts not configured",
			slog.String("code", evt.Code))
		return "", ""
	}
	intra := true
	for _, line := range evt.Lines {
		if line.Warehouse != evt.SourceWarehouse {
			intra = false
			break
		}
	}
	rate := h.cfg.InterWarehouseRate
	kind := "Inter"
	if intra {
		rate = h.cfg.IntraWarehouseRate
		kind = "Intra"
	}
	if !rate.IsPositive() {
		return "", ""
	}
	amount := rate.Mul(decimal.NewFromFloat(evt.EquivalentUnits))
	if !amount.IsPositive() {
		return "", ""
	}
	remark := fmt.Sprintf("Loading Charges for Warehouse Transfer: %s (%s-Warehouse)", evt.Code, kind)
	ref, err := h.recorder.CreateJournal(ctx, evt.Code, remark,
		h.cfg.LoadingExpenseAccount, h.cfg.LoadingPayableAccount, amount, evt.ReceiptDate)
	if err != nil {
		h.logger.Error("loading journal failed", slog.String("code", evt.Code), slog.Any("error", err))
		return "", fmt.Sprintf("loading journal not created: %v", err)
	}
	return ref, ""
}

func (h *Hooks) notifyReceipt(ctx context.Context, evt receipt.SubmittedEvent) string {
	if h.notify == nil {
		return ""
	}
	contact, err := h.recorder.CustomerContact(ctx, evt.Customer)
	if err != nil {
		return fmt.Sprintf("notification skipped: %v", err)
	}
	err = h.notify.EnqueueNotifyReceipt(ctx, jobs.NotifyReceiptPayload{
		ReceiptCode: evt.Code,
		Customer:    evt.Customer,
		Email:       contact.Email,
		Phone:       contact.Phone,
		ReceiptDate: evt.ReceiptDate,
		TotalBags:   evt.TotalBags,
	})
	if err != nil {
		h.logger.Error("receipt notification enqueue failed", slog.String("code", evt.Code), slog.Any("error", err))
		return fmt.Sprintf("notification not queued: %v", err)
	}
	return ""
}

// HandleReceiptCancelled reverses the generated stock entry and journal.
func (h *Hooks) HandleReceiptCancelled(ctx context.Context, evt receipt.CancelledEvent) []string {
	var warnings []string
	if evt.StockEntryRef != "" {
		if err := h.recorder.CancelStockEntry(ctx, evt.StockEntryRef); err != nil {
			warnings = append(warnings, fmt.Sprintf("stock entry %s not cancelled: %v", evt.StockEntryRef, err))
		}
	}
	if evt.JournalRef != "" {
		if err := h.recorder.CancelJournal(ctx, evt.JournalRef); err != nil {
			warnings = append(warnings, fmt.Sprintf("journal %s not cancelled: %v", evt.JournalRef, err))
		}
	}
	return warnings
}
