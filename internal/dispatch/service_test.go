package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline-erp/frostline/internal/billing"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/internal/rates"
	"github.com/frostline-erp/frostline/internal/shared"
)

type memoryReceipt struct {
	date     time.Time
	received map[string]float64 // batch -> qty
}

type memoryRepo struct {
	seq        int
	dispatches map[string]*Dispatch
	receipts   map[string]memoryReceipt
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		dispatches: map[string]*Dispatch{},
		receipts:   map[string]memoryReceipt{},
	}
}

func (m *memoryRepo) addReceipt(code string, date time.Time, batches map[string]float64) {
	m.receipts[code] = memoryReceipt{date: date, received: batches}
}

func (m *memoryRepo) balance(receiptCode, batchCode, exclude string) float64 {
	rec, ok := m.receipts[receiptCode]
	if !ok {
		return 0
	}
	total := rec.received[batchCode]
	for _, d := range m.dispatches {
		if d.Status != ledger.StatusSubmitted || d.Code == exclude {
			continue
		}
		for _, line := range d.Lines {
			if line.ReceiptCode == receiptCode && line.BatchCode == batchCode {
				total -= line.Qty
			}
		}
	}
	return total
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) Get(ctx context.Context, code string) (Dispatch, error) {
	d, ok := m.dispatches[code]
	if !ok {
		return Dispatch{}, httpx.ErrNotFound
	}
	return *d, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Dispatch, error) {
	var out []Dispatch
	for _, d := range m.dispatches {
		if filter.Customer != "" && d.Customer != filter.Customer {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (m *memoryRepo) SetSideEffectRefs(ctx context.Context, code, stockEntryRef, invoiceRef string) error {
	d, ok := m.dispatches[code]
	if !ok {
		return httpx.ErrNotFound
	}
	d.StockEntryRef = stockEntryRef
	d.InvoiceRef = invoiceRef
	return nil
}

func (m *memoryRepo) BatchBalance(ctx context.Context, receiptCode, batchCode, excludeDispatch string) (float64, error) {
	return m.balance(receiptCode, batchCode, excludeDispatch), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextCode(ctx context.Context, at time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("%s%04d", shared.BuildSeries("FL", "CSD", at), t.repo.seq), nil
}

func (t *memoryTx) Insert(ctx context.Context, d *Dispatch) error {
	copied := *d
	t.repo.dispatches[d.Code] = &copied
	return nil
}

func (t *memoryTx) Get(ctx context.Context, code string) (Dispatch, error) {
	return t.repo.Get(ctx, code)
}

func (t *memoryTx) ReplaceLines(ctx context.Context, code string, lines []Line) error {
	d, ok := t.repo.dispatches[code]
	if !ok {
		return httpx.ErrNotFound
	}
	d.Lines = append([]Line(nil), lines...)
	return nil
}

func (t *memoryTx) UpdateBilling(ctx context.Context, code string, lines []Line, totals billing.Totals) error {
	d, ok := t.repo.dispatches[code]
	if !ok {
		return httpx.ErrNotFound
	}
	d.Lines = append([]Line(nil), lines...)
	d.TotalHandling = totals.Handling
	d.TotalLoading = totals.Loading
	d.TotalGST = totals.GST
	d.GrandTotal = totals.GrandTotal
	return nil
}

func (t *memoryTx) SetStatus(ctx context.Context, code string, status ledger.DocStatus) error {
	d, ok := t.repo.dispatches[code]
	if !ok {
		return httpx.ErrNotFound
	}
	d.Status = status
	return nil
}

func (t *memoryTx) LockAndBalance(ctx context.Context, receiptCode, batchCode, excludeDispatch string) (float64, error) {
	return t.repo.balance(receiptCode, batchCode, excludeDispatch), nil
}

func (t *memoryTx) ReceiptDate(ctx context.Context, receiptCode string) (time.Time, error) {
	rec, ok := t.repo.receipts[receiptCode]
	if !ok {
		return time.Time{}, httpx.ErrNotFound
	}
	return rec.date, nil
}

type staticRates struct {
	resolver *rates.Resolver
}

func (s staticRates) Snapshot(ctx context.Context) (*rates.Resolver, error) {
	return s.resolver, nil
}

type recordingIntegration struct {
	submitted []SubmittedEvent
	cancelled []CancelledEvent
	effects   SideEffects
	err       error
}

func (r *recordingIntegration) HandleDispatchSubmitted(ctx context.Context, evt SubmittedEvent) (SideEffects, error) {
	r.submitted = append(r.submitted, evt)
	return r.effects, r.err
}

func (r *recordingIntegration) HandleDispatchCancelled(ctx context.Context, evt CancelledEvent) []string {
	r.cancelled = append(r.cancelled, evt)
	return nil
}

func newTestService(repo *memoryRepo, integration IntegrationHandler) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := rates.NewResolver([]rates.Rule{
		{ItemGroup: "Jute Bag", BillingType: rates.BillingDaily, HandlingRate: decimal.NewFromInt(2), LoadingRate: decimal.NewFromInt(1)},
	})
	svc := NewService(logger, repo, staticRates{resolver: resolver}, nil, integration, ServiceConfig{
		Company:     "Frostline Cold Storage",
		CompanyAbbr: "FL",
	})
	svc.WithNow(func() time.Time { return time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC) })
	return svc
}

func testInput(qty float64) CreateInput {
	return CreateInput{
		Customer:     "ACME Traders",
		BillingType:  rates.BillingDaily,
		DispatchDate: time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{{
			GoodsItem:   "Potato",
			ItemGroup:   "Jute Bag",
			BatchCode:   "B-001",
			ReceiptCode: "FL-CSR-08-26-0001",
			Warehouse:   "Cold Room 1",
			Qty:         qty,
		}},
	}
}

func seedRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.addReceipt("FL-CSR-08-26-0001", time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), map[string]float64{"B-001": 100})
	return repo
}

func TestDispatchSubmitDrawsDownBalance(t *testing.T) {
	repo := seedRepo()
	integration := &recordingIntegration{}
	svc := newTestService(repo, integration)
	ctx := context.Background()

	d1, err := svc.CreateDraft(ctx, shared.System, testInput(60))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusDraft, d1.Status)

	submitted, warnings, err := svc.Submit(ctx, shared.System, d1.Code)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, ledger.StatusSubmitted, submitted.Status)
	assert.Equal(t, 40.0, repo.balance("FL-CSR-08-26-0001", "B-001", ""))

	require.Len(t, integration.submitted, 1)
	assert.Equal(t, d1.Code, integration.submitted[0].Code)
}

func TestDispatchSubmitRejectsOverdraw(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	d1, err := svc.CreateDraft(ctx, shared.System, testInput(60))
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, d1.Code)
	require.NoError(t, err)

	// Only 40 bags remain; a 50-bag draft must not even reach draft state.
	_, err = svc.CreateDraft(ctx, shared.System, testInput(50))
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 40.0, insufficient.Available)
	assert.Equal(t, 50.0, insufficient.Requested)
}

func TestDispatchCancelRestoresBalance(t *testing.T) {
	repo := seedRepo()
	integration := &recordingIntegration{effects: SideEffects{StockEntryRef: "SE-1", InvoiceRef: "INV-1"}}
	svc := newTestService(repo, integration)
	ctx := context.Background()

	d1, err := svc.CreateDraft(ctx, shared.System, testInput(60))
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, d1.Code)
	require.NoError(t, err)
	assert.Equal(t, 40.0, repo.balance("FL-CSR-08-26-0001", "B-001", ""))

	cancelled, _, err := svc.Cancel(ctx, shared.System, d1.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)
	assert.Equal(t, 100.0, repo.balance("FL-CSR-08-26-0001", "B-001", ""))

	require.Len(t, integration.cancelled, 1)
	assert.Equal(t, "SE-1", integration.cancelled[0].StockEntryRef)
	assert.Equal(t, "INV-1", integration.cancelled[0].InvoiceRef)

	// The previously impossible 50-bag dispatch now goes through.
	d2, err := svc.CreateDraft(ctx, shared.System, testInput(50))
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, d2.Code)
	require.NoError(t, err)
	assert.Equal(t, 50.0, repo.balance("FL-CSR-08-26-0001", "B-001", ""))
}

func TestDispatchQuantityConservation(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	dispatched := 0.0
	for _, qty := range []float64{30, 30, 40} {
		d, err := svc.CreateDraft(ctx, shared.System, testInput(qty))
		require.NoError(t, err)
		_, _, err = svc.Submit(ctx, shared.System, d.Code)
		require.NoError(t, err)
		dispatched += qty
	}
	assert.Equal(t, 100.0-dispatched, repo.balance("FL-CSR-08-26-0001", "B-001", ""))

	_, err := svc.CreateDraft(ctx, shared.System, testInput(1))
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0.0, insufficient.Available)
}

func TestDispatchValidationGate(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	t.Run("future date", func(t *testing.T) {
		input := testInput(10)
		input.DispatchDate = time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrFutureDate)
	})

	t.Run("zero quantity", func(t *testing.T) {
		input := testInput(0)
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("missing receipt", func(t *testing.T) {
		input := testInput(10)
		input.Lines[0].ReceiptCode = ""
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrMissingReceipt)
	})

	t.Run("missing warehouse", func(t *testing.T) {
		input := testInput(10)
		input.Lines[0].Warehouse = ""
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrMissingWarehouse)
	})

	t.Run("no lines", func(t *testing.T) {
		input := testInput(10)
		input.Lines = nil
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrNoLines)
	})
}

func TestDispatchBillingRecomputedOnSubmit(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	input := testInput(10)
	input.GSTApplicable = true
	input.GSTRate = 18
	d, err := svc.CreateDraft(ctx, shared.System, input)
	require.NoError(t, err)

	submitted, _, err := svc.Submit(ctx, shared.System, d.Code)
	require.NoError(t, err)

	// 10 bags at handling 2 and loading 1 from the rate table.
	assert.True(t, submitted.TotalHandling.Equal(decimal.NewFromInt(20)), "handling %s", submitted.TotalHandling)
	assert.True(t, submitted.TotalLoading.Equal(decimal.NewFromInt(10)), "loading %s", submitted.TotalLoading)
	assert.True(t, submitted.TotalGST.Equal(decimal.RequireFromString("5.4")), "gst %s", submitted.TotalGST)
	assert.True(t, submitted.GrandTotal.Equal(decimal.RequireFromString("35.4")), "grand total %s", submitted.GrandTotal)
}

func TestDispatchEditExcludesSelf(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	d1, err := svc.CreateDraft(ctx, shared.System, testInput(60))
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, d1.Code)
	require.NoError(t, err)

	result, err := svc.CheckAvailability(ctx, testInput(90).Lines, d1.Code)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.True(t, result[0].OK)
	assert.Equal(t, 100.0, result[0].Available)
}

func TestDispatchStateTransitions(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	d1, err := svc.CreateDraft(ctx, shared.System, testInput(10))
	require.NoError(t, err)

	// Cancel requires submitted state.
	_, _, err = svc.Cancel(ctx, shared.System, d1.Code)
	require.ErrorIs(t, err, ErrNotSubmitted)

	_, _, err = svc.Submit(ctx, shared.System, d1.Code)
	require.NoError(t, err)

	// Double submit is rejected.
	_, _, err = svc.Submit(ctx, shared.System, d1.Code)
	require.ErrorIs(t, err, ErrNotDraft)

	_, _, err = svc.Cancel(ctx, shared.System, d1.Code)
	require.NoError(t, err)

	// Cancelled documents stay cancelled.
	_, _, err = svc.Submit(ctx, shared.System, d1.Code)
	require.ErrorIs(t, err, ErrNotDraft)
}

func TestDispatchSideEffectFailureDoesNotBlock(t *testing.T) {
	repo := seedRepo()
	integration := &recordingIntegration{err: fmt.Errorf("smtp unreachable")}
	svc := newTestService(repo, integration)
	ctx := context.Background()

	d1, err := svc.CreateDraft(ctx, shared.System, testInput(10))
	require.NoError(t, err)
	submitted, warnings, err := svc.Submit(ctx, shared.System, d1.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSubmitted, submitted.Status)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "downstream processing failed")
}

func TestDispatchSubmitSumsSplitBatchLines(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	// Each line alone fits the 100-bag batch; together they overdraw it. The
	// draft is seeded directly so the submit-time gate is the one under test.
	repo.dispatches["FL-CSD-08-26-0001"] = &Dispatch{
		Code:         "FL-CSD-08-26-0001",
		Customer:     "ACME Traders",
		BillingType:  rates.BillingDaily,
		DispatchDate: time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC),
		Status:       ledger.StatusDraft,
		Lines: []Line{
			{GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001", ReceiptCode: "FL-CSR-08-26-0001", Warehouse: "Cold Room 1", Qty: 60},
			{GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001", ReceiptCode: "FL-CSR-08-26-0001", Warehouse: "Cold Room 1", Qty: 60},
		},
	}

	_, _, err := svc.Submit(ctx, shared.System, "FL-CSD-08-26-0001")
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 100.0, insufficient.Available)
	assert.Equal(t, 120.0, insufficient.Requested)
	assert.Equal(t, "B-001", insufficient.BatchCode)
	assert.Equal(t, 100.0, repo.balance("FL-CSR-08-26-0001", "B-001", ""))
}

func TestDispatchDraftSumsSplitBatchLines(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	input := testInput(60)
	second := input.Lines[0]
	input.Lines = append(input.Lines, second)

	_, err := svc.CreateDraft(ctx, shared.System, input)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 120.0, insufficient.Requested)
}

func TestDispatchMultiBatchLinesAccepted(t *testing.T) {
	repo := newMemoryRepo()
	repo.addReceipt("FL-CSR-08-26-0001", time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		map[string]float64{"B-001": 100, "B-002": 50})
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	input := testInput(60)
	second := input.Lines[0]
	second.BatchCode = "B-002"
	second.Qty = 40
	input.Lines = append(input.Lines, second)

	d1, err := svc.CreateDraft(ctx, shared.System, input)
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, d1.Code)
	require.NoError(t, err)
	assert.Equal(t, 40.0, repo.balance("FL-CSR-08-26-0001", "B-001", ""))
	assert.Equal(t, 10.0, repo.balance("FL-CSR-08-26-0001", "B-002", ""))
}

func TestDispatchValidateSplitBatchLines(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo, &recordingIntegration{})
	ctx := context.Background()

	result, err := svc.CheckAvailability(ctx, []LineInput{
		{GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001", ReceiptCode: "FL-CSR-08-26-0001", Warehouse: "Cold Room 1", Qty: 60},
		{GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001", ReceiptCode: "FL-CSR-08-26-0001", Warehouse: "Cold Room 1", Qty: 60},
	}, "")
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.True(t, result[0].OK)
	assert.Equal(t, 100.0, result[0].Available)
	// The second row sees the pool after the first row's draw.
	assert.False(t, result[1].OK)
	assert.Equal(t, 40.0, result[1].Available)
}
