package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/frostline-erp/frostline/internal/billing"
	"github.com/frostline-erp/frostline/internal/ledger"
	"github.com/frostline-erp/frostline/internal/platform/cache"
	"github.com/frostline-erp/frostline/internal/warehouse"
)

const dashboardCacheKey = "reports:dashboard"

// Repository is the read surface the reports are built from.
type Repository interface {
	BalanceRows(ctx context.Context, filter ledger.BalanceFilter) ([]ledger.BalanceRow, error)
	ActiveBatchCount(ctx context.Context) (int64, error)
	MonthlyFlows(ctx context.Context, from, to time.Time) ([]ledger.MonthlyFlow, error)
	Warehouses(ctx context.Context) ([]warehouse.Warehouse, error)
}

// Service computes the report projections.
type Service struct {
	logger *slog.Logger
	repo   Repository
	cache  *cache.Store
	group  singleflight.Group
	now    func() time.Time
}

// NewService builds Service. cache may be nil, in which case the dashboard is
// computed on every request.
func NewService(logger *slog.Logger, repo Repository, store *cache.Store) *Service {
	return &Service{logger: logger, repo: repo, cache: store, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func daysSince(now, t time.Time) int {
	days := int(now.Sub(t).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// StockLedger resolves receipt lines with in/out/balance and storage age.
func (s *Service) StockLedger(ctx context.Context, filter Filter) ([]StockLedgerRow, error) {
	rows, err := s.repo.BalanceRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]StockLedgerRow, len(rows))
	for i, row := range rows {
		out[i] = StockLedgerRow{
			ReceiptCode: row.ReceiptCode,
			ReceiptDate: row.ReceiptDate,
			Customer:    row.Customer,
			Warehouse:   row.Warehouse,
			GoodsItem:   row.GoodsItem,
			ItemGroup:   row.ItemGroup,
			BatchCode:   row.BatchCode,
			InQty:       row.InQty,
			OutQty:      row.OutQty,
			Balance:     row.Balance(),
			DaysInStore: daysSince(now, row.ReceiptDate),
		}
	}
	return out, nil
}

// agingBuckets are the day thresholds for the aging report, oldest last.
var agingBuckets = []struct {
	limit int
	label string
}{
	{30, "0-30 days"},
	{60, "31-60 days"},
	{90, "61-90 days"},
}

const agingOverLabel = "90+ days"

func bucketFor(days int) string {
	for _, b := range agingBuckets {
		if days <= b.limit {
			return b.label
		}
	}
	return agingOverLabel
}

// Aging classifies remaining stock into age buckets.
func (s *Service) Aging(ctx context.Context, filter Filter) (AgingReport, error) {
	rows, err := s.StockLedger(ctx, filter)
	if err != nil {
		return AgingReport{}, err
	}
	report := AgingReport{}
	totals := map[string]float64{}
	for _, row := range rows {
		if row.Balance <= 0 {
			continue
		}
		bucket := bucketFor(row.DaysInStore)
		report.Rows = append(report.Rows, AgingRow{StockLedgerRow: row, Bucket: bucket})
		totals[bucket] += row.Balance
	}
	for _, b := range agingBuckets {
		if qty, ok := totals[b.label]; ok {
			report.Summary = append(report.Summary, AgingSummary{Bucket: b.label, Qty: qty})
		}
	}
	if qty, ok := totals[agingOverLabel]; ok {
		report.Summary = append(report.Summary, AgingSummary{Bucket: agingOverLabel, Qty: qty})
	}
	return report, nil
}

// Utilization reports equivalent-unit occupancy per warehouse against its
// declared capacity.
func (s *Service) Utilization(ctx context.Context) ([]UtilizationRow, error) {
	var (
		rows       []ledger.BalanceRow
		warehouses []warehouse.Warehouse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.BalanceRows(gctx, ledger.BalanceFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		warehouses, err = s.repo.Warehouses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	used := map[string]float64{}
	for _, row := range rows {
		if balance := row.Balance(); balance > 0 {
			used[row.Warehouse] += billing.EquivalentUnits(row.ItemGroup, balance)
		}
	}
	out := make([]UtilizationRow, 0, len(warehouses))
	for _, wh := range warehouses {
		row := UtilizationRow{
			Warehouse: wh.Code,
			Capacity:  wh.BagCapacity,
			Used:      used[wh.Code],
		}
		if wh.BagCapacity > 0 {
			row.UtilizationPct = row.Used / wh.BagCapacity * 100
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Warehouse < out[j].Warehouse })
	return out, nil
}

// Trends returns monthly in/out totals over the window, defaulting to the
// trailing twelve months.
func (s *Service) Trends(ctx context.Context, from, to time.Time) ([]TrendPoint, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}
	flows, err := s.repo.MonthlyFlows(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]TrendPoint, len(flows))
	for i, f := range flows {
		out[i] = TrendPoint{Month: f.Month, InQty: f.InQty, OutQty: f.OutQty}
	}
	return out, nil
}

// Dashboard returns the cached summary, computing it at most once per TTL per
// process via singleflight.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	if s.cache != nil {
		var cached Dashboard
		err := s.cache.GetJSON(ctx, dashboardCacheKey, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("dashboard cache read failed", slog.Any("error", err))
		}
	}
	result, err, _ := s.group.Do(dashboardCacheKey, func() (any, error) {
		return s.buildDashboard(ctx)
	})
	if err != nil {
		return Dashboard{}, err
	}
	return result.(Dashboard), nil
}

// RefreshDashboard recomputes the dashboard and overwrites the cache. Used by
// the nightly warmup job.
func (s *Service) RefreshDashboard(ctx context.Context) (Dashboard, error) {
	d, err := s.buildDashboard(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (s *Service) buildDashboard(ctx context.Context) (Dashboard, error) {
	var (
		rows        []ledger.BalanceRow
		batches     int64
		utilization []UtilizationRow
		trends      []TrendPoint
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.BalanceRows(gctx, ledger.BalanceFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		batches, err = s.repo.ActiveBatchCount(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		utilization, err = s.Utilization(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		trends, err = s.Trends(gctx, time.Time{}, time.Time{})
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("reports: dashboard: %w", err)
	}

	var total float64
	for _, row := range rows {
		total += row.Balance()
	}
	d := Dashboard{
		TotalBalance:  total,
		ActiveBatches: batches,
		Utilization:   utilization,
		Trends:        trends,
		GeneratedAt:   s.now().UTC(),
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, dashboardCacheKey, d); err != nil {
			s.logger.Warn("dashboard cache write failed", slog.Any("error", err))
		}
	}
	return d, nil
}
