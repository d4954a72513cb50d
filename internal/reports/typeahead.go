package reports

import (
	"context"
	"fmt"
	"sort"

	"github.com/frostline-erp/frostline/internal/ledger"
)

// BatchOption is a typeahead entry for a customer's batch with a balance
// label, e.g. "B-001 (40 bags)".
type BatchOption struct {
	BatchCode string  `json:"batch_code"`
	Label     string  `json:"label"`
	Balance   float64 `json:"balance"`
}

// Typeahead serves the UI autocomplete projections. Pure reads, no part of the
// correctness surface.
type Typeahead struct {
	q ledger.Querier
}

// NewTypeahead constructs Typeahead over a pool.
func NewTypeahead(q ledger.Querier) *Typeahead {
	return &Typeahead{q: q}
}

// CustomerWarehouses lists warehouses the customer currently holds stock in.
func (t *Typeahead) CustomerWarehouses(ctx context.Context, customer string) ([]string, error) {
	rows, err := ledger.BalanceRows(ctx, t.q, ledger.BalanceFilter{Customer: customer})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		if row.Balance() > 0 && !seen[row.Warehouse] {
			seen[row.Warehouse] = true
			out = append(out, row.Warehouse)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CustomerItems lists distinct goods items the customer has on hand.
func (t *Typeahead) CustomerItems(ctx context.Context, customer string) ([]string, error) {
	rows, err := ledger.BalanceRows(ctx, t.q, ledger.BalanceFilter{Customer: customer})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, row := range rows {
		if row.Balance() > 0 && !seen[row.GoodsItem] {
			seen[row.GoodsItem] = true
			out = append(out, row.GoodsItem)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CustomerBatches lists the customer's batches with remaining balances.
func (t *Typeahead) CustomerBatches(ctx context.Context, customer string) ([]BatchOption, error) {
	rows, err := ledger.BalanceRows(ctx, t.q, ledger.BalanceFilter{Customer: customer})
	if err != nil {
		return nil, err
	}
	balances := map[string]float64{}
	for _, row := range rows {
		balances[row.BatchCode] += row.Balance()
	}
	out := make([]BatchOption, 0, len(balances))
	for code, balance := range balances {
		if balance <= 0 {
			continue
		}
		out = append(out, BatchOption{
			BatchCode: code,
			Label:     fmt.Sprintf("%s (%g bags)", code, balance),
			Balance:   balance,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchCode < out[j].BatchCode })
	return out, nil
}
