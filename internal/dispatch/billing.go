package dispatch

import (
	"github.com/shopspring/decimal"

	"github.com/frostline-erp/frostline/internal/billing"
	"github.com/frostline-erp/frostline/internal/rates"
)

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, nil
	}
	return decimal.NewFromString(s)
}

func floatToDecimal(f float64) decimal.Decimal {
	if f == 0 {
		return decimal.Decimal{}
	}
	return decimal.NewFromFloat(f)
}

func toBillingLines(lines []Line) []billing.Line {
	out := make([]billing.Line, len(lines))
	for i, line := range lines {
		out[i] = billing.Line{
			GoodsItem:   line.GoodsItem,
			ItemGroup:   line.ItemGroup,
			BatchCode:   line.BatchCode,
			Qty:         line.Qty,
			Rate:        line.Rate,
			LoadingRate: line.LoadingRate,
		}
	}
	return out
}

func mergeComputed(lines []Line, computed []billing.Line) []Line {
	out := make([]Line, len(lines))
	for i, line := range lines {
		line.Rate = computed[i].Rate
		line.LoadingRate = computed[i].LoadingRate
		line.Amount = computed[i].Amount
		line.LoadingAmount = computed[i].LoadingAmount
		out[i] = line
	}
	return out
}

func computeBilling(lines []Line, input CreateInput, resolver *rates.Resolver) ([]Line, billing.Totals) {
	computed, totals := billing.Compute(toBillingLines(lines), input.BillingType, resolver, input.GSTApplicable, floatToDecimal(input.GSTRate))
	return mergeComputed(lines, computed), totals
}

func recomputeBilling(doc Dispatch, resolver *rates.Resolver) ([]Line, billing.Totals) {
	computed, totals := billing.Compute(toBillingLines(doc.Lines), doc.BillingType, resolver, doc.GSTApplicable, doc.GSTRate)
	return mergeComputed(doc.Lines, computed), totals
}
