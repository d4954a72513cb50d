package receipt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline-erp/frostline/internal/batch"
	"github.com/frostline-erp/frostline/internal/dispatch"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/httpx"
	"github.com/frostline-erp/frostline/internal/shared"
)

type memoryBatch struct {
	customer  string
	goodsItem string
}

type memoryRepo struct {
	seq      int
	receipts map[string]*Receipt
	batches  map[string]*memoryBatch
	// dispatched quantities per receipt/batch, standing in for submitted
	// dispatch lines.
	dispatched map[string]map[string]float64
	// draft dispatch references per receipt, with no quantity committed yet.
	draftRefs map[string]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		receipts:   map[string]*Receipt{},
		batches:    map[string]*memoryBatch{},
		dispatched: map[string]map[string]float64{},
		draftRefs:  map[string]int{},
	}
}

func (m *memoryRepo) drawDown(receiptCode, batchCode string, qty float64) {
	if m.dispatched[receiptCode] == nil {
		m.dispatched[receiptCode] = map[string]float64{}
	}
	m.dispatched[receiptCode][batchCode] += qty
}

func (m *memoryRepo) batchBalance(receiptCode, batchCode string) float64 {
	var received float64
	if rec, ok := m.receipts[receiptCode]; ok && rec.Status == ledger.StatusSubmitted {
		for _, line := range rec.Lines {
			if line.BatchCode == batchCode {
				received += line.Qty
			}
		}
	}
	return received - m.dispatched[receiptCode][batchCode]
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) Get(ctx context.Context, code string) (Receipt, error) {
	rec, ok := m.receipts[code]
	if !ok {
		return Receipt{}, httpx.ErrNotFound
	}
	return *rec, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	var out []Receipt
	for _, rec := range m.receipts {
		if filter.Customer != "" && rec.Customer != filter.Customer {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (m *memoryRepo) SetSideEffectRefs(ctx context.Context, code, stockEntryRef, journalRef string) error {
	rec, ok := m.receipts[code]
	if !ok {
		return httpx.ErrNotFound
	}
	rec.StockEntryRef = stockEntryRef
	rec.JournalRef = journalRef
	return nil
}

func (m *memoryRepo) SetDispatchRef(ctx context.Context, code, dispatchRef string) error {
	rec, ok := m.receipts[code]
	if !ok {
		return httpx.ErrNotFound
	}
	rec.DispatchRef = dispatchRef
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) NextCode(ctx context.Context, at time.Time) (string, error) {
	t.repo.seq++
	return fmt.Sprintf("%s%04d", shared.BuildSeries("FL", "CSR", at), t.repo.seq), nil
}

func (t *memoryTx) Insert(ctx context.Context, rec *Receipt) error {
	copied := *rec
	t.repo.receipts[rec.Code] = &copied
	return nil
}

func (t *memoryTx) Get(ctx context.Context, code string) (Receipt, error) {
	return t.repo.Get(ctx, code)
}

func (t *memoryTx) ReplaceLines(ctx context.Context, code string, lines []Line, totalBags float64) error {
	rec, ok := t.repo.receipts[code]
	if !ok {
		return httpx.ErrNotFound
	}
	rec.Lines = append([]Line(nil), lines...)
	rec.TotalBags = totalBags
	return nil
}

func (t *memoryTx) SetStatus(ctx context.Context, code string, status ledger.DocStatus) error {
	rec, ok := t.repo.receipts[code]
	if !ok {
		return httpx.ErrNotFound
	}
	rec.Status = status
	return nil
}

func (t *memoryTx) ClaimBatch(ctx context.Context, code, customer, goodsItem string) error {
	existing, ok := t.repo.batches[code]
	if !ok {
		t.repo.batches[code] = &memoryBatch{customer: customer, goodsItem: goodsItem}
		return nil
	}
	if existing.customer != "" && existing.customer != customer {
		return fmt.Errorf("%w: %s belongs to %s", batch.ErrOwnedByOtherCustomer, code, existing.customer)
	}
	existing.customer = customer
	return nil
}

func (t *memoryTx) ReassignBatch(ctx context.Context, code, fromCustomer, toCustomer string) error {
	existing, ok := t.repo.batches[code]
	if !ok {
		return fmt.Errorf("batch: reassign unknown batch %s", code)
	}
	if existing.customer != "" && existing.customer != fromCustomer {
		return fmt.Errorf("%w: %s belongs to %s", batch.ErrOwnedByOtherCustomer, code, existing.customer)
	}
	existing.customer = toCustomer
	return nil
}

func (t *memoryTx) LockAndBalance(ctx context.Context, receiptCode, batchCode string) (float64, error) {
	return t.repo.batchBalance(receiptCode, batchCode), nil
}

func (t *memoryTx) AggregateBalance(ctx context.Context, customer, warehouse, batchCode string) (float64, error) {
	var balance float64
	for code, rec := range t.repo.receipts {
		if rec.Customer != customer || rec.Status != ledger.StatusSubmitted {
			continue
		}
		for _, line := range rec.Lines {
			if line.Warehouse == warehouse && line.BatchCode == batchCode {
				balance += line.Qty
			}
		}
		balance -= t.repo.dispatched[code][batchCode]
	}
	return balance, nil
}

func (t *memoryTx) DispatchedTotal(ctx context.Context, receiptCode string) (float64, error) {
	var total float64
	for _, qty := range t.repo.dispatched[receiptCode] {
		total += qty
	}
	return total, nil
}

func (t *memoryTx) DispatchRefCount(ctx context.Context, receiptCode string) (int64, error) {
	var refs int64
	for _, qty := range t.repo.dispatched[receiptCode] {
		if qty > 0 {
			refs++
		}
	}
	return refs + int64(t.repo.draftRefs[receiptCode]), nil
}

type fakeDispatcher struct {
	repo      *memoryRepo
	seq       int
	created   []dispatch.CreateInput
	submitted []string
	failLine  bool
}

func (f *fakeDispatcher) CreateDraft(ctx context.Context, actor shared.Actor, input dispatch.CreateInput) (dispatch.Dispatch, error) {
	if f.failLine {
		return dispatch.Dispatch{}, fmt.Errorf("rate snapshot unavailable")
	}
	f.seq++
	f.created = append(f.created, input)
	return dispatch.Dispatch{Code: fmt.Sprintf("FL-CSD-08-26-%04d", f.seq)}, nil
}

func (f *fakeDispatcher) Submit(ctx context.Context, actor shared.Actor, code string) (dispatch.Dispatch, []string, error) {
	f.submitted = append(f.submitted, code)
	input := f.created[len(f.created)-1]
	for _, line := range input.Lines {
		f.repo.drawDown(line.ReceiptCode, line.BatchCode, line.Qty)
	}
	return dispatch.Dispatch{Code: code, Status: ledger.StatusSubmitted}, nil, nil
}

type recordingIntegration struct {
	submitted []SubmittedEvent
	cancelled []CancelledEvent
	effects   SideEffects
	err       error
}

func (r *recordingIntegration) HandleReceiptSubmitted(ctx context.Context, evt SubmittedEvent) (SideEffects, error) {
	r.submitted = append(r.submitted, evt)
	return r.effects, r.err
}

func (r *recordingIntegration) HandleReceiptCancelled(ctx context.Context, evt CancelledEvent) []string {
	r.cancelled = append(r.cancelled, evt)
	return nil
}

func newTestService(repo *memoryRepo, dispatcher DispatchPort, integration IntegrationHandler) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, repo, dispatcher, nil, integration, ServiceConfig{
		Company:     "Frostline Cold Storage",
		CompanyAbbr: "FL",
	})
	svc.WithNow(func() time.Time { return time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC) })
	return svc
}

func newReceiptInput(customer string, qty float64) CreateInput {
	return CreateInput{
		Customer:    customer,
		Type:        TypeNew,
		ReceiptDate: time.Date(2026, time.August, 10, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{{
			GoodsItem: "Potato",
			ItemGroup: "Jute Bag",
			BatchCode: "B-001",
			Warehouse: "Cold Room 1",
			Qty:       qty,
		}},
	}
}

func submitReceipt(t *testing.T, svc *Service, input CreateInput) Receipt {
	t.Helper()
	rec, err := svc.CreateDraft(context.Background(), shared.System, input)
	require.NoError(t, err)
	rec, _, err = svc.Submit(context.Background(), shared.System, rec.Code)
	require.NoError(t, err)
	return rec
}

func TestReceiptTotalBagsRecomputed(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, &recordingIntegration{})

	input := newReceiptInput("ACME Traders", 60)
	input.Lines = append(input.Lines, LineInput{
		GoodsItem: "Onion", ItemGroup: "Net Bag", BatchCode: "B-002", Warehouse: "Cold Room 1", Qty: 40,
	})
	rec, err := svc.CreateDraft(context.Background(), shared.System, input)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.TotalBags)

	input.Lines = input.Lines[:1]
	rec, err = svc.UpdateDraft(context.Background(), shared.System, rec.Code, input)
	require.NoError(t, err)
	assert.Equal(t, 60.0, rec.TotalBags)
}

func TestReceiptSubmitClaimsBatch(t *testing.T) {
	repo := newMemoryRepo()
	integration := &recordingIntegration{}
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, integration)

	rec := submitReceipt(t, svc, newReceiptInput("ACME Traders", 100))
	assert.Equal(t, ledger.StatusSubmitted, rec.Status)
	require.Contains(t, repo.batches, "B-001")
	assert.Equal(t, "ACME Traders", repo.batches["B-001"].customer)

	require.Len(t, integration.submitted, 1)
	assert.Equal(t, 100.0, integration.submitted[0].TotalBags)

	// Receiving the same batch for someone else is rejected.
	other, err := svc.CreateDraft(context.Background(), shared.System, newReceiptInput("Rival Goods", 10))
	require.NoError(t, err)
	_, _, err = svc.Submit(context.Background(), shared.System, other.Code)
	require.ErrorIs(t, err, batch.ErrOwnedByOtherCustomer)
}

func TestReceiptEquivalentUnits(t *testing.T) {
	repo := newMemoryRepo()
	integration := &recordingIntegration{}
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, integration)

	input := newReceiptInput("ACME Traders", 60)
	input.Lines = append(input.Lines, LineInput{
		GoodsItem: "Onion", ItemGroup: "Net Bag", BatchCode: "B-002", Warehouse: "Cold Room 1", Qty: 40,
	})
	submitReceipt(t, svc, input)

	require.Len(t, integration.submitted, 1)
	// 60 jute + 40 net bags counting half each.
	assert.Equal(t, 80.0, integration.submitted[0].EquivalentUnits)
}

func TestReceiptValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, &recordingIntegration{})
	ctx := context.Background()

	t.Run("future date", func(t *testing.T) {
		input := newReceiptInput("ACME Traders", 10)
		input.ReceiptDate = time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrFutureDate)
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := svc.CreateDraft(ctx, shared.System, newReceiptInput("ACME Traders", 0))
		require.ErrorIs(t, err, ErrInvalidQuantity)
	})

	t.Run("missing batch", func(t *testing.T) {
		input := newReceiptInput("ACME Traders", 10)
		input.Lines[0].BatchCode = ""
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrMissingBatch)
	})

	t.Run("customer transfer without source", func(t *testing.T) {
		input := newReceiptInput("ACME Traders", 10)
		input.Type = TypeCustomerTransfer
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrSourceCustomerRequired)
	})

	t.Run("customer transfer onto itself", func(t *testing.T) {
		input := newReceiptInput("ACME Traders", 10)
		input.Type = TypeCustomerTransfer
		input.SourceCustomer = "ACME Traders"
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrSameCustomer)
	})

	t.Run("warehouse transfer without source", func(t *testing.T) {
		input := newReceiptInput("ACME Traders", 10)
		input.Type = TypeWarehouseTransfer
		_, err := svc.CreateDraft(ctx, shared.System, input)
		require.ErrorIs(t, err, ErrSourceWarehouseRequired)
	})
}

func TestCustomerTransferGeneratesDispatch(t *testing.T) {
	repo := newMemoryRepo()
	dispatcher := &fakeDispatcher{repo: repo}
	svc := newTestService(repo, dispatcher, &recordingIntegration{})
	ctx := context.Background()

	source := submitReceipt(t, svc, newReceiptInput("ACME Traders", 100))

	transfer := CreateInput{
		Customer:       "Rival Goods",
		Type:           TypeCustomerTransfer,
		SourceCustomer: "ACME Traders",
		ReceiptDate:    time.Date(2026, time.August, 12, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{{
			GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001",
			Warehouse: "Cold Room 1", SourceReceipt: source.Code, Qty: 40,
		}},
	}
	rec, err := svc.CreateDraft(ctx, shared.System, transfer)
	require.NoError(t, err)
	rec, warnings, err := svc.Submit(ctx, shared.System, rec.Code)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// Batch ownership moved and the source account was drawn down.
	assert.Equal(t, "Rival Goods", repo.batches["B-001"].customer)
	require.Len(t, dispatcher.created, 1)
	assert.Equal(t, "ACME Traders", dispatcher.created[0].Customer)
	assert.Equal(t, 40.0, dispatcher.created[0].Lines[0].Qty)
	require.Len(t, dispatcher.submitted, 1)
	assert.Equal(t, 60.0, repo.batchBalance(source.Code, "B-001"))
	assert.NotEmpty(t, rec.DispatchRef)
}

func TestCustomerTransferShortfallRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, &recordingIntegration{})
	ctx := context.Background()

	source := submitReceipt(t, svc, newReceiptInput("ACME Traders", 30))

	transfer := CreateInput{
		Customer:       "Rival Goods",
		Type:           TypeCustomerTransfer,
		SourceCustomer: "ACME Traders",
		ReceiptDate:    time.Date(2026, time.August, 12, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{{
			GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001",
			Warehouse: "Cold Room 1", SourceReceipt: source.Code, Qty: 50,
		}},
	}
	rec, err := svc.CreateDraft(ctx, shared.System, transfer)
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, rec.Code)

	var shortfall *TransferShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 30.0, shortfall.Available)
	assert.Equal(t, 50.0, shortfall.Requested)

	// Nothing moved.
	assert.Equal(t, "ACME Traders", repo.batches["B-001"].customer)
}

func TestCustomerTransferSplitLinesCheckedTogether(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, &recordingIntegration{})
	ctx := context.Background()

	source := submitReceipt(t, svc, newReceiptInput("ACME Traders", 50))

	transfer := CreateInput{
		Customer:       "Rival Goods",
		Type:           TypeCustomerTransfer,
		SourceCustomer: "ACME Traders",
		ReceiptDate:    time.Date(2026, time.August, 12, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001",
				Warehouse: "Cold Room 1", SourceReceipt: source.Code, Qty: 30},
			{GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001",
				Warehouse: "Cold Room 1", SourceReceipt: source.Code, Qty: 30},
		},
	}
	rec, err := svc.CreateDraft(ctx, shared.System, transfer)
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, rec.Code)

	var shortfall *TransferShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 60.0, shortfall.Requested)
}

func TestWarehouseTransferValidatesSource(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, &recordingIntegration{})
	ctx := context.Background()

	submitReceipt(t, svc, newReceiptInput("ACME Traders", 100))

	transfer := CreateInput{
		Customer:        "ACME Traders",
		Type:            TypeWarehouseTransfer,
		SourceWarehouse: "Cold Room 1",
		ReceiptDate:     time.Date(2026, time.August, 12, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{{
			GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001",
			Warehouse: "Cold Room 2", Qty: 120,
		}},
	}
	rec, err := svc.CreateDraft(ctx, shared.System, transfer)
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, rec.Code)

	var shortfall *TransferShortfallError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 100.0, shortfall.Available)

	transfer.Lines[0].Qty = 80
	rec2, err := svc.CreateDraft(ctx, shared.System, transfer)
	require.NoError(t, err)
	_, _, err = svc.Submit(ctx, shared.System, rec2.Code)
	require.NoError(t, err)
}

func TestReceiptCancelBlockedByDispatches(t *testing.T) {
	repo := newMemoryRepo()
	integration := &recordingIntegration{effects: SideEffects{StockEntryRef: "SE-1"}}
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, integration)
	ctx := context.Background()

	rec := submitReceipt(t, svc, newReceiptInput("ACME Traders", 100))

	repo.drawDown(rec.Code, "B-001", 40)
	_, _, err := svc.Cancel(ctx, shared.System, rec.Code)
	require.ErrorIs(t, err, ErrHasLiveDispatches)

	repo.dispatched[rec.Code]["B-001"] = 0
	cancelled, _, err := svc.Cancel(ctx, shared.System, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)

	require.Len(t, integration.cancelled, 1)
	assert.Equal(t, "SE-1", integration.cancelled[0].StockEntryRef)
}

func TestReceiptCancelBlockedByDraftDispatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &fakeDispatcher{repo: repo}, &recordingIntegration{})
	ctx := context.Background()

	rec := submitReceipt(t, svc, newReceiptInput("ACME Traders", 100))

	// A draft holds no quantity yet but still pins the receipt.
	repo.draftRefs[rec.Code] = 1
	_, _, err := svc.Cancel(ctx, shared.System, rec.Code)
	require.ErrorIs(t, err, ErrHasLiveDispatches)

	repo.draftRefs[rec.Code] = 0
	cancelled, _, err := svc.Cancel(ctx, shared.System, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCancelled, cancelled.Status)
}

func TestCustomerTransferDispatchFailureIsWarning(t *testing.T) {
	repo := newMemoryRepo()
	dispatcher := &fakeDispatcher{repo: repo, failLine: true}
	svc := newTestService(repo, dispatcher, &recordingIntegration{})
	ctx := context.Background()

	source := submitReceipt(t, svc, newReceiptInput("ACME Traders", 100))

	transfer := CreateInput{
		Customer:       "Rival Goods",
		Type:           TypeCustomerTransfer,
		SourceCustomer: "ACME Traders",
		ReceiptDate:    time.Date(2026, time.August, 12, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{{
			GoodsItem: "Potato", ItemGroup: "Jute Bag", BatchCode: "B-001",
			Warehouse: "Cold Room 1", SourceReceipt: source.Code, Qty: 40,
		}},
	}
	rec, err := svc.CreateDraft(ctx, shared.System, transfer)
	require.NoError(t, err)
	rec, warnings, err := svc.Submit(ctx, shared.System, rec.Code)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSubmitted, rec.Status)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "transfer dispatch not created")
}
