package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/frostline-erp/frostline/internal/billing"
	"github.com/frostline-erp/frostline/internal/dispatch"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/rates"
	"github.com/frostline-erp/frostline/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, code string) (Receipt, error)
	List(ctx context.Context, filter ListFilter) ([]Receipt, error)
	SetSideEffectRefs(ctx context.Context, code, stockEntryRef, journalRef string) error
	SetDispatchRef(ctx context.Context, code, dispatchRef string) error
}

// TxRepository exposes the transactional operations used during submit.
type TxRepository interface {
	NextCode(ctx context.Context, at time.Time) (string, error)
	Insert(ctx context.Context, rec *Receipt) error
	Get(ctx context.Context, code string) (Receipt, error)
	ReplaceLines(ctx context.Context, code string, lines []Line, totalBags float64) error
	SetStatus(ctx context.Context, code string, status ledger.DocStatus) error
	ClaimBatch(ctx context.Context, code, customer, goodsItem string) error
	ReassignBatch(ctx context.Context, code, fromCustomer, toCustomer string) error
	LockAndBalance(ctx context.Context, receiptCode, batchCode string) (float64, error)
	AggregateBalance(ctx context.Context, customer, warehouse, batchCode string) (float64, error)
	DispatchedTotal(ctx context.Context, receiptCode string) (float64, error)
	DispatchRefCount(ctx context.Context, receiptCode string) (int64, error)
}

// DispatchPort generates the balancing dispatch for customer transfers.
// Satisfied by *dispatch.Service.
type DispatchPort interface {
	CreateDraft(ctx context.Context, actor shared.Actor, input dispatch.CreateInput) (dispatch.Dispatch, error)
	Submit(ctx context.Context, actor shared.Actor, code string) (dispatch.Dispatch, []string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilter narrows receipt listings.
type ListFilter struct {
	Customer string
	Status   ledger.DocStatus
	Limit    int
}

// ServiceConfig groups document defaults.
type ServiceConfig struct {
	Company     string
	CompanyAbbr string
	// TransferBillingType is used on the auto-generated dispatch that balances
	// a customer transfer.
	TransferBillingType rates.BillingType
}

// Service coordinates receipt lifecycle operations.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	dispatches  DispatchPort
	audit       AuditPort
	integration IntegrationHandler
	cfg         ServiceConfig
	now         func() time.Time
}

// NewService builds Service.
func NewService(logger *slog.Logger, repo RepositoryPort, dispatches DispatchPort, audit AuditPort, integration IntegrationHandler, cfg ServiceConfig) *Service {
	if cfg.TransferBillingType == "" {
		cfg.TransferBillingType = rates.BillingDaily
	}
	return &Service{
		logger:      logger,
		repo:        repo,
		dispatches:  dispatches,
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

// LineInput is one inbound batch placement.
type LineInput struct {
	GoodsItem     string
	ItemGroup     string
	BatchCode     string
	Warehouse     string
	SourceReceipt string
	Qty           float64
}

// CreateInput describes a receipt request.
type CreateInput struct {
	Customer        string
	Type            Type
	ReceiptDate     time.Time
	SourceCustomer  string
	SourceWarehouse string
	Remarks         string
	Lines           []LineInput
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) checkShape(input CreateInput) error {
	if input.Customer == "" {
		return errors.New("receipt: customer required")
	}
	if !input.Type.Valid() {
		return fmt.Errorf("receipt: invalid receipt type %q", input.Type)
	}
	if len(input.Lines) == 0 {
		return ErrNoLines
	}
	if dateOnly(input.ReceiptDate).After(dateOnly(s.now())) {
		return ErrFutureDate
	}
	switch input.Type {
	case TypeCustomerTransfer:
		if input.SourceCustomer == "" {
			return ErrSourceCustomerRequired
		}
		if input.SourceCustomer == input.Customer {
			return ErrSameCustomer
		}
	case TypeWarehouseTransfer:
		if input.SourceWarehouse == "" {
			return ErrSourceWarehouseRequired
		}
	}
	for i, line := range input.Lines {
		if line.BatchCode == "" {
			return fmt.Errorf("row %d: %w", i+1, ErrMissingBatch)
		}
		if line.Warehouse == "" {
			return fmt.Errorf("row %d: %w", i+1, ErrMissingWarehouse)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("row %d: %w", i+1, ErrInvalidQuantity)
		}
		if input.Type == TypeCustomerTransfer && line.SourceReceipt == "" {
			return fmt.Errorf("row %d: %w", i+1, ErrSourceReceiptRequired)
		}
		if line.Qty != math.Trunc(line.Qty) {
			s.logger.Warn("fractional bag count on receipt line",
				slog.Int("row", i+1), slog.Float64("qty", line.Qty), slog.String("batch", line.BatchCode))
		}
	}
	return nil
}

func totalBags(lines []Line) float64 {
	var total float64
	for _, line := range lines {
		total += line.Qty
	}
	return total
}

func equivalentUnits(lines []Line) float64 {
	var total float64
	for _, line := range lines {
		total += billing.EquivalentUnits(line.ItemGroup, line.Qty)
	}
	return total
}

func toLines(inputs []LineInput) []Line {
	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		lines[i] = Line{
			GoodsItem:     in.GoodsItem,
			ItemGroup:     in.ItemGroup,
			BatchCode:     in.BatchCode,
			Warehouse:     in.Warehouse,
			SourceReceipt: in.SourceReceipt,
			Qty:           in.Qty,
		}
	}
	return lines
}

// CreateDraft validates shape and stores the document in draft. TotalBags is
// always recomputed from the lines.
func (s *Service) CreateDraft(ctx context.Context, actor shared.Actor, input CreateInput) (Receipt, error) {
	if err := s.checkShape(input); err != nil {
		return Receipt{}, err
	}
	lines := toLines(input.Lines)
	rec := Receipt{
		Company:         s.cfg.Company,
		Customer:        input.Customer,
		Type:            input.Type,
		ReceiptDate:     dateOnly(input.ReceiptDate),
		SourceCustomer:  input.SourceCustomer,
		SourceWarehouse: input.SourceWarehouse,
		TotalBags:       totalBags(lines),
		Status:          ledger.StatusDraft,
		Remarks:         input.Remarks,
		CreatedBy:       actor.Key,
		Lines:           lines,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		code, err := tx.NextCode(ctx, rec.ReceiptDate)
		if err != nil {
			return err
		}
		rec.Code = code
		return tx.Insert(ctx, &rec)
	})
	if err != nil {
		return Receipt{}, err
	}
	return rec, nil
}

// UpdateDraft replaces the lines of a draft and recomputes TotalBags.
func (s *Service) UpdateDraft(ctx context.Context, actor shared.Actor, code string, input CreateInput) (Receipt, error) {
	if err := s.checkShape(input); err != nil {
		return Receipt{}, err
	}
	lines := toLines(input.Lines)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.Get(ctx, code)
		if err != nil {
			return err
		}
		if rec.Status != ledger.StatusDraft {
			return ErrNotDraft
		}
		return tx.ReplaceLines(ctx, code, lines, totalBags(lines))
	})
	if err != nil {
		return Receipt{}, err
	}
	return s.repo.Get(ctx, code)
}

// Submit transitions a draft to submitted. Transfer source checks and batch
// ownership claims happen inside the transaction; with customer transfers the
// source receipt lines are row-locked first so the availability check cannot
// race a concurrent dispatch.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, code string) (Receipt, []string, error) {
	var evt SubmittedEvent

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.Get(ctx, code)
		if err != nil {
			return err
		}
		if rec.Status != ledger.StatusDraft {
			return ErrNotDraft
		}
		if dateOnly(rec.ReceiptDate).After(dateOnly(s.now())) {
			return ErrFutureDate
		}
		if len(rec.Lines) == 0 {
			return ErrNoLines
		}

		switch rec.Type {
		case TypeCustomerTransfer:
			if err := s.checkCustomerTransfer(ctx, tx, rec); err != nil {
				return err
			}
			for _, line := range rec.Lines {
				if err := tx.ReassignBatch(ctx, line.BatchCode, rec.SourceCustomer, rec.Customer); err != nil {
					return err
				}
			}
		case TypeWarehouseTransfer:
			if err := s.checkWarehouseTransfer(ctx, tx, rec); err != nil {
				return err
			}
			for _, line := range rec.Lines {
				if err := tx.ClaimBatch(ctx, line.BatchCode, rec.Customer, line.GoodsItem); err != nil {
					return err
				}
			}
		default:
			for _, line := range rec.Lines {
				if err := tx.ClaimBatch(ctx, line.BatchCode, rec.Customer, line.GoodsItem); err != nil {
					return err
				}
			}
		}

		total := totalBags(rec.Lines)
		if err := tx.ReplaceLines(ctx, code, rec.Lines, total); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, code, ledger.StatusSubmitted); err != nil {
			return err
		}
		evt = SubmittedEvent{
			Code:            rec.Code,
			Company:         rec.Company,
			Customer:        rec.Customer,
			Type:            rec.Type,
			ReceiptDate:     rec.ReceiptDate,
			SourceCustomer:  rec.SourceCustomer,
			SourceWarehouse: rec.SourceWarehouse,
			TotalBags:       total,
			EquivalentUnits: equivalentUnits(rec.Lines),
			Lines:           rec.Lines,
		}
		return nil
	})
	if err != nil {
		return Receipt{}, nil, err
	}

	warnings := s.runSubmitSideEffects(ctx, evt)
	s.recordAudit(ctx, actor, "receipt:submit", evt.Code, map[string]any{
		"customer":   evt.Customer,
		"type":       string(evt.Type),
		"total_bags": evt.TotalBags,
	})

	rec, err := s.repo.Get(ctx, code)
	if err != nil {
		return Receipt{}, warnings, err
	}
	return rec, warnings, nil
}

// checkCustomerTransfer verifies the source customer holds every requested
// batch on the named source receipts, under row locks.
func (s *Service) checkCustomerTransfer(ctx context.Context, tx TxRepository, rec Receipt) error {
	type sourceKey struct {
		receipt string
		batch   string
	}
	requested := map[sourceKey]float64{}
	firstRow := map[sourceKey]int{}
	for i, line := range rec.Lines {
		key := sourceKey{receipt: line.SourceReceipt, batch: line.BatchCode}
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
		available, err := tx.LockAndBalance(ctx, key.receipt, key.batch)
		if err != nil {
			return err
		}
		if requested[key] > available {
			return &TransferShortfallError{
				Row:       firstRow[key],
				BatchCode: key.batch,
				Available: available,
				Requested: requested[key],
			}
		}
	}

	// Coarse total check per source receipt, on top of the batch-level one.
	totals := map[string]float64{}
	for key, qty := range requested {
		totals[key.receipt] += qty
	}
	for sourceCode, qty := range totals {
		source, err := tx.Get(ctx, sourceCode)
		if err != nil {
			return fmt.Errorf("source receipt %s: %w", sourceCode, err)
		}
		if source.Status != ledger.StatusSubmitted {
			return fmt.Errorf("receipt: source receipt %s is not submitted", sourceCode)
		}
		dispatched, err := tx.DispatchedTotal(ctx, sourceCode)
		if err != nil {
			return err
		}
		if available := source.TotalBags - dispatched; qty > available {
			return &TransferShortfallError{
				Available: available,
				Requested: qty,
			}
		}
	}
	return nil
}

// checkWarehouseTransfer verifies the customer holds every batch in the
// source warehouse. Requested quantities are summed per batch first so the
// same batch split across lines cannot pass on individual-line checks.
func (s *Service) checkWarehouseTransfer(ctx context.Context, tx TxRepository, rec Receipt) error {
	requested := map[string]float64{}
	firstRow := map[string]int{}
	for i, line := range rec.Lines {
		requested[line.BatchCode] += line.Qty
		if _, ok := firstRow[line.BatchCode]; !ok {
			firstRow[line.BatchCode] = i + 1
		}
	}
	batches := make([]string, 0, len(requested))
	for code := range requested {
		batches = append(batches, code)
	}
	sort.Strings(batches)
	for _, code := range batches {
		available, err := tx.AggregateBalance(ctx, rec.Customer, rec.SourceWarehouse, code)
		if err != nil {
			return err
		}
		if requested[code] > available {
			return &TransferShortfallError{
				Row:       firstRow[code],
				BatchCode: code,
				Available: available,
				Requested: requested[code],
			}
		}
	}
	return nil
}

func (s *Service) runSubmitSideEffects(ctx context.Context, evt SubmittedEvent) []string {
	var warnings []string
	if s.integration != nil {
		effects, err := s.integration.HandleReceiptSubmitted(ctx, evt)
		warnings = effects.Warnings
		if err != nil {
			s.logger.Error("receipt side effects failed", slog.String("code", evt.Code), slog.Any("error", err))
			warnings = append(warnings, fmt.Sprintf("downstream processing failed: %v", err))
		}
		if effects.StockEntryRef != "" || effects.JournalRef != "" {
			if err := s.repo.SetSideEffectRefs(ctx, evt.Code, effects.StockEntryRef, effects.JournalRef); err != nil {
				s.logger.Error("store side effect refs", slog.String("code", evt.Code), slog.Any("error", err))
			}
		}
	}
	if evt.Type == TypeCustomerTransfer {
		warnings = append(warnings, s.generateTransferDispatch(ctx, evt)...)
	}
	return warnings
}

// generateTransferDispatch balances a customer transfer by dispatching the
// same quantities from the source customer's receipts. Runs as the system
// actor; failure is surfaced as a warning, not a rollback.
func (s *Service) generateTransferDispatch(ctx context.Context, evt SubmittedEvent) []string {
	if s.dispatches == nil {
		return []string{"customer transfer: no dispatch generator configured"}
	}
	input := dispatch.CreateInput{
		Customer:     evt.SourceCustomer,
		BillingType:  s.cfg.TransferBillingType,
		DispatchDate: dateOnly(s.now()),
		Remarks:      fmt.Sprintf("Auto-generated for customer transfer %s", evt.Code),
	}
	for _, line := range evt.Lines {
		input.Lines = append(input.Lines, dispatch.LineInput{
			GoodsItem:   line.GoodsItem,
			ItemGroup:   line.ItemGroup,
			BatchCode:   line.BatchCode,
			ReceiptCode: line.SourceReceipt,
			Warehouse:   line.Warehouse,
			Qty:         line.Qty,
		})
	}
	draft, err := s.dispatches.CreateDraft(ctx, shared.System, input)
	if err != nil {
		s.logger.Error("auto dispatch draft failed", slog.String("receipt", evt.Code), slog.Any("error", err))
		return []string{fmt.Sprintf("transfer dispatch not created: %v", err)}
	}
	_, warnings, err := s.dispatches.Submit(ctx, shared.System, draft.Code)
	if err != nil {
		s.logger.Error("auto dispatch submit failed", slog.String("receipt", evt.Code),
			slog.String("dispatch", draft.Code), slog.Any("error", err))
		return append(warnings, fmt.Sprintf("transfer dispatch %s not submitted: %v", draft.Code, err))
	}
	if err := s.repo.SetDispatchRef(ctx, evt.Code, draft.Code); err != nil {
		s.logger.Error("store transfer dispatch ref", slog.String("receipt", evt.Code), slog.Any("error", err))
	}
	return warnings
}

// Cancel transitions a submitted receipt to cancelled. Blocked while any
// non-cancelled dispatch, drafts included, still references it; the generated
// stock entry and journal are reversed best-effort afterwards.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, code string) (Receipt, []string, error) {
	var evt CancelledEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.Get(ctx, code)
		if err != nil {
			return err
		}
		if rec.Status != ledger.StatusSubmitted {
			return ErrNotSubmitted
		}
		refs, err := tx.DispatchRefCount(ctx, code)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d non-cancelled dispatches draw from it", ErrHasLiveDispatches, refs)
		}
		if err := tx.SetStatus(ctx, code, ledger.StatusCancelled); err != nil {
			return err
		}
		evt = CancelledEvent{
			Code:          rec.Code,
			Customer:      rec.Customer,
			StockEntryRef: rec.StockEntryRef,
			JournalRef:    rec.JournalRef,
			DispatchRef:   rec.DispatchRef,
		}
		return nil
	})
	if err != nil {
		return Receipt{}, nil, err
	}

	var warnings []string
	if s.integration != nil {
		warnings = s.integration.HandleReceiptCancelled(ctx, evt)
		for _, warning := range warnings {
			s.logger.Warn("receipt cancellation cascade", slog.String("code", code), slog.String("warning", warning))
		}
	}
	s.recordAudit(ctx, actor, "receipt:cancel", code, nil)

	rec, err := s.repo.Get(ctx, code)
	if err != nil {
		return Receipt{}, warnings, err
	}
	return rec, warnings, nil
}

// Get loads a receipt with lines.
func (s *Service) Get(ctx context.Context, code string) (Receipt, error) {
	return s.repo.Get(ctx, code)
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor.Key,
		Action:   action,
		Entity:   "receipt",
		EntityID: entityID,
		Meta:     meta,
	})
}
