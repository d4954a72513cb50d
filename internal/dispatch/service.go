package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/frostline-erp/frostline/internal/billing"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/rates"
	"github.com/frostline-erp/frostline/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, code string) (Dispatch, error)
	List(ctx context.Context, filter ListFilter) ([]Dispatch, error)
	SetSideEffectRefs(ctx context.Context, code, stockEntryRef, invoiceRef string) error
	BatchBalance(ctx context.Context, receiptCode, batchCode, excludeDispatch string) (float64, error)
}

// TxRepository exposes the transactional operations used during submit.
// LockAndBalance must take the row locks before computing the balance so the
// check-then-commit sequence is serialized per (receipt, batch).
type TxRepository interface {
	NextCode(ctx context.Context, at time.Time) (string, error)
	Insert(ctx context.Context, d *Dispatch) error
	Get(ctx context.Context, code string) (Dispatch, error)
	ReplaceLines(ctx context.Context, code string, lines []Line) error
	UpdateBilling(ctx context.Context, code string, lines []Line, totals billing.Totals) error
	SetStatus(ctx context.Context, code string, status ledger.DocStatus) error
	LockAndBalance(ctx context.Context, receiptCode, batchCode, excludeDispatch string) (float64, error)
	ReceiptDate(ctx context.Context, receiptCode string) (time.Time, error)
}

// RatesPort loads a rate table snapshot.
type RatesPort interface {
	Snapshot(ctx context.Context) (*rates.Resolver, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilter narrows dispatch listings.
type ListFilter struct {
	Customer string
	Status   ledger.DocStatus
	Limit    int
}

// ServiceConfig groups document defaults.
type ServiceConfig struct {
	Company     string
	CompanyAbbr string
}

// Service coordinates dispatch lifecycle operations.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	ratesPort   RatesPort
	audit       AuditPort
	integration IntegrationHandler
	cfg         ServiceConfig
	now         func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, ratesPort RatesPort, audit AuditPort, integration IntegrationHandler, cfg ServiceConfig) *Service {
	return &Service{
		logger:      logger,
		repo:        repo,
		ratesPort:   ratesPort,
		audit:       audit,
		integration: integration,
		cfg:         cfg,
		now:         time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// LineInput is one requested drawdown. Zero rates mean "resolve from table".
type LineInput struct {
	GoodsItem   string
	ItemGroup   string
	BatchCode   string
	ReceiptCode string
	Warehouse   string
	Qty         float64
	Rate        string
	LoadingRate string
}

// CreateInput describes a dispatch submission request.
type CreateInput struct {
	Customer      string
	BillingType   rates.BillingType
	DispatchDate  time.Time
	GSTApplicable bool
	GSTRate       float64
	Remarks       string
	Lines         []LineInput
}

func (s *Service) checkShape(input CreateInput) error {
	if input.Customer == "" {
		return errors.New("dispatch: customer required")
	}
	if !input.BillingType.Valid() {
		return fmt.Errorf("dispatch: invalid billing type %q", input.BillingType)
	}
	if len(input.Lines) == 0 {
		return ErrNoLines
	}
	if dateOnly(input.DispatchDate).After(dateOnly(s.now())) {
		return ErrFutureDate
	}
	for i, line := range input.Lines {
		if line.ReceiptCode == "" {
			return fmt.Errorf("row %d: %w", i+1, ErrMissingReceipt)
		}
		if line.Warehouse == "" {
			return fmt.Errorf("row %d: %w", i+1, ErrMissingWarehouse)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("row %d: %w", i+1, ErrInvalidQuantity)
		}
		if line.Qty != math.Trunc(line.Qty) {
			// Bags are whole units; accept but flag.
			s.logger.Warn("fractional bag count on dispatch line",
				slog.Int("row", i+1), slog.Float64("qty", line.Qty), slog.String("batch", line.BatchCode))
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toLines(inputs []LineInput) ([]Line, error) {
	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		rate, err := parseAmount(in.Rate)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid rate: %w", i+1, err)
		}
		loading, err := parseAmount(in.LoadingRate)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid loading rate: %w", i+1, err)
		}
		lines[i] = Line{
			GoodsItem:   in.GoodsItem,
			ItemGroup:   in.ItemGroup,
			BatchCode:   in.BatchCode,
			ReceiptCode: in.ReceiptCode,
			Warehouse:   in.Warehouse,
			Qty:         in.Qty,
			Rate:        rate,
			LoadingRate: loading,
		}
	}
	return lines, nil
}

// CreateDraft validates shape and availability, allocates a code and stores
// the document in draft. The availability check here is advisory; the
// authoritative, lock-protected check happens on submit.
func (s *Service) CreateDraft(ctx context.Context, actor shared.Actor, input CreateInput) (Dispatch, error) {
	if err := s.checkShape(input); err != nil {
		return Dispatch{}, err
	}
	lines, err := toLines(input.Lines)
	if err != nil {
		return Dispatch{}, err
	}
	if err := s.checkAvailability(ctx, lines, ""); err != nil {
		return Dispatch{}, err
	}

	resolver, err := s.ratesPort.Snapshot(ctx)
	if err != nil {
		return Dispatch{}, err
	}
	computed, totals := computeBilling(lines, input, resolver)

	doc := Dispatch{
		Company:       s.cfg.Company,
		Customer:      input.Customer,
		BillingType:   input.BillingType,
		DispatchDate:  dateOnly(input.DispatchDate),
		GSTApplicable: input.GSTApplicable,
		GSTRate:       floatToDecimal(input.GSTRate),
		TotalHandling: totals.Handling,
		TotalLoading:  totals.Loading,
		TotalGST:      totals.GST,
		GrandTotal:    totals.GrandTotal,
		Status:        ledger.StatusDraft,
		Remarks:       input.Remarks,
		CreatedBy:     actor.Key,
		Lines:         computed,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCode(ctx, doc.DispatchDate)
		if err != nil {
			return err
		}
		doc.Code = code
		return tx.Insert(ctx, &doc)
	})
	if err != nil {
		return Dispatch{}, err
	}
	return doc, nil
}

// UpdateDraft replaces the lines of a draft and re-validates with the
// document itself excluded from the dispatched sum.
func (s *Service) UpdateDraft(ctx context.Context, actor shared.Actor, code string, input CreateInput) (Dispatch, error) {
	if err := s.checkShape(input); err != nil {
		return Dispatch{}, err
	}
	lines, err := toLines(input.Lines)
	if err != nil {
		return Dispatch{}, err
	}
	if err := s.checkAvailability(ctx, lines, code); err != nil {
		return Dispatch{}, err
	}
	resolver, err := s.ratesPort.Snapshot(ctx)
	if err != nil {
		return Dispatch{}, err
	}
	computed, totals := computeBilling(lines, input, resolver)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.Get(ctx, code)
		if err != nil {
			return err
		}
		if doc.Status != ledger.StatusDraft {
			return ErrNotDraft
		}
		if err := tx.ReplaceLines(ctx, code, computed); err != nil {
			return err
		}
		return tx.UpdateBilling(ctx, code, computed, totals)
	})
	if err != nil {
		return Dispatch{}, err
	}
	return s.repo.Get(ctx, code)
}

// Submit transitions a draft to submitted. The balance re-check and the
// status flip happen inside one transaction holding row locks on the source
// receipt lines, taken in deterministic key order.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, code string) (Dispatch, []string, error) {
	var evt SubmittedEvent

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.Get(ctx, code)
		if err != nil {
			return err
		}
		if doc.Status != ledger.StatusDraft {
			return ErrNotDraft
		}
		if dateOnly(doc.DispatchDate).After(dateOnly(s.now())) {
			return ErrFutureDate
		}
		if len(doc.Lines) == 0 {
			return ErrNoLines
		}

		// Sum requested quantities per (receipt,batch) first so the same
		// batch split across lines cannot pass on individual-line checks.
		requested := map[sourceKey]float64{}
		firstRow := map[sourceKey]int{}
		for i, line := range doc.Lines {
			key := sourceKey{receipt: line.ReceiptCode, batch: line.BatchCode}
			requested[key] += line.Qty
			if _, ok := firstRow[key]; !ok {
				firstRow[key] = i + 1
			}
		}
		keys := make([]sourceKey, 0, len(requested))
		for key := range requested {
			keys = append(keys, key)
		}
		// Lock in key order so concurrent submissions cannot deadlock.
		sort.Slice(keys, func(a, b int) bool {
			if keys[a].receipt != keys[b].receipt {
				return keys[a].receipt < keys[b].receipt
			}
			return keys[a].batch < keys[b].batch
		})
		for _, key := range keys {
			available, err := tx.LockAndBalance(ctx, key.receipt, key.batch, doc.Code)
			if err != nil {
				return err
			}
			if requested[key] > available {
				return &InsufficientBalanceError{
					Row:         firstRow[key],
					ReceiptCode: key.receipt,
					BatchCode:   key.batch,
					Available:   available,
					Requested:   requested[key],
				}
			}
		}

		resolver, err := s.ratesPort.Snapshot(ctx)
		if err != nil {
			return err
		}
		computed, totals := recomputeBilling(doc, resolver)
		if err := tx.UpdateBilling(ctx, code, computed, totals); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, code, ledger.StatusSubmitted); err != nil {
			return err
		}

		evt = SubmittedEvent{
			Code:          doc.Code,
			Company:       doc.Company,
			Customer:      doc.Customer,
			BillingType:   doc.BillingType,
			DispatchDate:  doc.DispatchDate,
			GSTApplicable: doc.GSTApplicable,
			GSTRate:       doc.GSTRate,
			GrandTotal:    totals.GrandTotal,
		}
		for _, line := range computed {
			receiptDate, err := tx.ReceiptDate(ctx, line.ReceiptCode)
			if err != nil {
				return err
			}
			evt.Lines = append(evt.Lines, SubmittedLine{Line: line, ReceiptDate: receiptDate})
		}
		return nil
	})
	if err != nil {
		return Dispatch{}, nil, err
	}

	warnings := s.runSubmitSideEffects(ctx, evt)
	s.recordAudit(ctx, actor, "dispatch:submit", evt.Code, map[string]any{
		"customer":    evt.Customer,
		"grand_total": evt.GrandTotal.String(),
	})

	doc, err := s.repo.Get(ctx, code)
	if err != nil {
		return Dispatch{}, warnings, err
	}
	return doc, warnings, nil
}

func (s *Service) runSubmitSideEffects(ctx context.Context, evt SubmittedEvent) []string {
	if s.integration == nil {
		return nil
	}
	effects, err := s.integration.HandleDispatchSubmitted(ctx, evt)
	warnings := effects.Warnings
	if err != nil {
		// Contained: the submitted state stands, the failure is surfaced.
		s.logger.Error("dispatch side effects failed", slog.String("code", evt.Code), slog.Any("error", err))
		warnings = append(warnings, fmt.Sprintf("downstream processing failed: %v", err))
	}
	if effects.StockEntryRef != "" || effects.InvoiceRef != "" {
		if err := s.repo.SetSideEffectRefs(ctx, evt.Code, effects.StockEntryRef, effects.InvoiceRef); err != nil {
			s.logger.Error("store side effect refs", slog.String("code", evt.Code), slog.Any("error", err))
		}
	}
	return warnings
}

// Cancel transitions a submitted dispatch to cancelled and reverses the
// generated stock entry and invoice best-effort.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, code string) (Dispatch, []string, error) {
	var evt CancelledEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.Get(ctx, code)
		if err != nil {
			return err
		}
		if doc.Status != ledger.StatusSubmitted {
			return ErrNotSubmitted
		}
		if err := tx.SetStatus(ctx, code, ledger.StatusCancelled); err != nil {
			return err
		}
		evt = CancelledEvent{
			Code:          doc.Code,
			Customer:      doc.Customer,
			StockEntryRef: doc.StockEntryRef,
			InvoiceRef:    doc.InvoiceRef,
		}
		return nil
	})
	if err != nil {
		return Dispatch{}, nil, err
	}

	var warnings []string
	if s.integration != nil {
		warnings = s.integration.HandleDispatchCancelled(ctx, evt)
		for _, warning := range warnings {
			s.logger.Warn("dispatch cancellation cascade", slog.String("code", code), slog.String("warning", warning))
		}
	}
	s.recordAudit(ctx, actor, "dispatch:cancel", code, nil)

	doc, err := s.repo.Get(ctx, code)
	if err != nil {
		return Dispatch{}, warnings, err
	}
	return doc, warnings, nil
}

// Get loads a dispatch with lines.
func (s *Service) Get(ctx context.Context, code string) (Dispatch, error) {
	return s.repo.Get(ctx, code)
}

// List returns dispatches matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Dispatch, error) {
	return s.repo.List(ctx, filter)
}

// LineAvailability reports the unlocked balance check for one line.
type LineAvailability struct {
	Row       int     `json:"row"`
	Batch     string  `json:"batch"`
	Receipt   string  `json:"receipt"`
	Available float64 `json:"available"`
	Requested float64 `json:"requested"`
	OK        bool    `json:"ok"`
}

// CheckAvailability runs the advisory balance check used by drafts and by the
// validate endpoint. excludeDispatch removes a document being edited from the
// dispatched sum.
func (s *Service) CheckAvailability(ctx context.Context, lines []LineInput, excludeDispatch string) ([]LineAvailability, error) {
	converted, err := toLines(lines)
	if err != nil {
		return nil, err
	}
	result := make([]LineAvailability, len(converted))
	balances := map[sourceKey]float64{}
	drawn := map[sourceKey]float64{}
	for i, line := range converted {
		key := sourceKey{receipt: line.ReceiptCode, batch: line.BatchCode}
		available, ok := balances[key]
		if !ok {
			var err error
			available, err = s.repo.BatchBalance(ctx, key.receipt, key.batch, excludeDispatch)
			if err != nil {
				return nil, err
			}
			balances[key] = available
		}
		// Earlier rows against the same (receipt,batch) consume the pool,
		// matching what the submit-time gate will see.
		remaining := available - drawn[key]
		drawn[key] += line.Qty
		result[i] = LineAvailability{
			Row:       i + 1,
			Batch:     line.BatchCode,
			Receipt:   line.ReceiptCode,
			Available: remaining,
			Requested: line.Qty,
			OK:        line.Qty <= remaining,
		}
	}
	return result, nil
}

// sourceKey identifies the receipt line pool a dispatch line draws from.
type sourceKey struct {
	receipt string
	batch   string
}

func (s *Service) checkAvailability(ctx context.Context, lines []Line, excludeDispatch string) error {
	requested := map[sourceKey]float64{}
	firstRow := map[sourceKey]int{}
	for i, line := range lines {
		key := sourceKey{receipt: line.ReceiptCode, batch: line.BatchCode}
		requested[key] += line.Qty
		if _, ok := firstRow[key]; !ok {
			firstRow[key] = i + 1
		}
	}
	for key, qty := range requested {
		available, err := s.repo.BatchBalance(ctx, key.receipt, key.batch, excludeDispatch)
		if err != nil {
			return err
		}
		if qty > available {
			return &InsufficientBalanceError{
				Row:         firstRow[key],
				ReceiptCode: key.receipt,
				BatchCode:   key.batch,
				Available:   available,
				Requested:   qty,
			}
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor.Key,
		Action:   action,
		Entity:   "dispatch",
		EntityID: entityID,
		Meta:     meta,
	})
}
