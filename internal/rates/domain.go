// Package rates resolves handling and loading rates from the configured rate
// table using a specific-then-generic match.
package rates

import (
	"errors"

	"github.com/shopspring/decimal"
)

// BillingType determines the storage-duration multiplier applied at invoicing.
type BillingType string

const (
	// BillingDaily bills per elapsed day.
	BillingDaily BillingType = "DAILY"
	// BillingMonthly bills per started 30-day block.
	BillingMonthly BillingType = "MONTHLY"
	// BillingSeasonal bills a single season regardless of duration.
	BillingSeasonal BillingType = "SEASONAL"
)

// Valid reports whether the billing type is a known value.
func (b BillingType) Valid() bool {
	switch b {
	case BillingDaily, BillingMonthly, BillingSeasonal:
		return true
	}
	return false
}

// Rule maps (goods item, item group, billing type) to rates. GoodsItem is
// empty for a generic rule covering every item in the group.
type Rule struct {
	ID           int64           `json:"id"`
	GoodsItem    string          `json:"goods_item,omitempty"`
	ItemGroup    string          `json:"item_group"`
	BillingType  BillingType     `json:"billing_type"`
	HandlingRate decimal.Decimal `json:"handling_rate"`
	LoadingRate  decimal.Decimal `json:"loading_rate"`
}

// Rate is a resolved pair of unit rates.
type Rate struct {
	Handling decimal.Decimal `json:"handling"`
	Loading  decimal.Decimal `json:"loading"`
}

// Zero reports whether both rates are zero, i.e. nothing matched.
func (r Rate) Zero() bool {
	return r.Handling.IsZero() && r.Loading.IsZero()
}

// ErrInvalidRule indicates a rule missing its mandatory keys.
var ErrInvalidRule = errors.New("rates: item group and billing type required")
