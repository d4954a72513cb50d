// Package billing computes dispatch charges: per-line handling and loading
// amounts, GST and grand total, plus the invoice-line expansion with the
// storage-duration multiplier. All money values are decimals; computation is
// pure so recomputing over the same inputs always yields identical results.
package billing

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frostline-erp/frostline/internal/rates"
)

// ItemGroupNetBag is the bag type that counts as half a jute-bag equivalent
// for loading charges and capacity reporting.
const ItemGroupNetBag = "Net Bag"

// Line is one dispatch line as seen by the calculator. Rate and LoadingRate
// are taken as-is when set; zero means "resolve from the rate table".
type Line struct {
	GoodsItem     string
	ItemGroup     string
	BatchCode     string
	Qty           float64
	Rate          decimal.Decimal
	LoadingRate   decimal.Decimal
	Amount        decimal.Decimal
	LoadingAmount decimal.Decimal
}

// Totals holds the computed document amounts.
type Totals struct {
	Handling   decimal.Decimal
	Loading    decimal.Decimal
	GST        decimal.Decimal
	GrandTotal decimal.Decimal
}

// Compute fills unset line rates from the resolver, computes line amounts and
// returns document totals. GST applies to handling plus loading when enabled.
func Compute(lines []Line, billingType rates.BillingType, resolver *rates.Resolver, gstApplicable bool, gstRate decimal.Decimal) ([]Line, Totals) {
	out := make([]Line, len(lines))
	var totals Totals

	for i, line := range lines {
		if line.Rate.IsZero() || line.LoadingRate.IsZero() {
			if rate, ok := resolver.Resolve(line.GoodsItem, line.ItemGroup, billingType); ok {
				if line.Rate.IsZero() {
					line.Rate = rate.Handling
				}
				if line.LoadingRate.IsZero() {
					line.LoadingRate = rate.Loading
				}
			}
		}

		qty := decimal.NewFromFloat(line.Qty)
		line.Amount = line.Rate.Mul(qty)
		line.LoadingAmount = line.LoadingRate.Mul(qty)
		totals.Handling = totals.Handling.Add(line.Amount)
		totals.Loading = totals.Loading.Add(line.LoadingAmount)
		out[i] = line
	}

	if gstApplicable {
		taxable := totals.Handling.Add(totals.Loading)
		totals.GST = taxable.Mul(gstRate).Div(decimal.NewFromInt(100))
	}
	totals.GrandTotal = totals.Handling.Add(totals.Loading).Add(totals.GST)
	return out, totals
}

// Duration is the storage-duration multiplier applied to handling charges on
// the invoice. Loading charges are one-time and never scaled by it.
type Duration struct {
	Days       int
	Multiplier int
	Suffix     string
}

// StorageDuration derives the billed duration from receipt to dispatch date.
// Daily bills elapsed days with a minimum of one; Monthly bills started 30-day
// blocks; Seasonal is a flat single season.
func StorageDuration(billingType rates.BillingType, receiptDate, dispatchDate time.Time) Duration {
	days := int(dispatchDate.Sub(receiptDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	switch billingType {
	case rates.BillingMonthly:
		months := int(math.Ceil(float64(days) / 30))
		return Duration{Days: days, Multiplier: months, Suffix: fmt.Sprintf("for %d months (%d days)", months, days)}
	case rates.BillingSeasonal:
		return Duration{Days: days, Multiplier: 1, Suffix: fmt.Sprintf("for season (%d days)", days)}
	default:
		return Duration{Days: days, Multiplier: days, Suffix: fmt.Sprintf("for %d days", days)}
	}
}

// EquivalentUnits converts a bag quantity to jute-bag-equivalent units:
// 2 Net Bags = 1 equivalent unit, every other group counts 1:1.
func EquivalentUnits(itemGroup string, qty float64) float64 {
	if itemGroup == ItemGroupNetBag {
		return qty * 0.5
	}
	return qty
}

// InvoiceLine is a billable row handed to the invoicing collaborator.
type InvoiceLine struct {
	Description string          `json:"description"`
	Qty         float64         `json:"qty"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceLines expands a computed dispatch line into invoice rows: a storage
// charge scaled by the duration multiplier and a one-time loading charge.
// Lines with zero rates produce no rows.
func InvoiceLines(line Line, billingType rates.BillingType, dur Duration) []InvoiceLine {
	var rows []InvoiceLine
	if line.Rate.IsPositive() {
		qty := line.Qty * float64(dur.Multiplier)
		rows = append(rows, InvoiceLine{
			Description: fmt.Sprintf("Storage charges (%s) for %g bags (batch %s) %s", billingType, line.Qty, line.BatchCode, dur.Suffix),
			Qty:         qty,
			Rate:        line.Rate,
			Amount:      line.Rate.Mul(decimal.NewFromFloat(qty)),
		})
	}
	if line.LoadingRate.IsPositive() {
		rows = append(rows, InvoiceLine{
			Description: fmt.Sprintf("Loading/unloading charges for %g bags (batch %s)", line.Qty, line.BatchCode),
			Qty:         line.Qty,
			Rate:        line.LoadingRate,
			Amount:      line.LoadingRate.Mul(decimal.NewFromFloat(line.Qty)),
		})
	}
	return rows
}
