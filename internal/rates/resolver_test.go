package rates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func rate(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestResolveSpecificBeatsGeneric(t *testing.T) {
	resolver := NewResolver([]Rule{
		{ItemGroup: "Jute Bag", BillingType: BillingDaily, HandlingRate: rate(5), LoadingRate: rate(1)},
		{GoodsItem: "ItemX", ItemGroup: "Jute Bag", BillingType: BillingDaily, HandlingRate: rate(8), LoadingRate: rate(2)},
	})

	got, ok := resolver.Resolve("ItemX", "Jute Bag", BillingDaily)
	require.True(t, ok)
	require.True(t, got.Handling.Equal(rate(8)))
	require.True(t, got.Loading.Equal(rate(2)))

	got, ok = resolver.Resolve("ItemY", "Jute Bag", BillingDaily)
	require.True(t, ok)
	require.True(t, got.Handling.Equal(rate(5)))
	require.True(t, got.Loading.Equal(rate(1)))
}

func TestResolveNoMatchReturnsZero(t *testing.T) {
	resolver := NewResolver([]Rule{
		{ItemGroup: "Jute Bag", BillingType: BillingDaily, HandlingRate: rate(5)},
	})

	got, ok := resolver.Resolve("ItemX", "Net Bag", BillingDaily)
	require.False(t, ok)
	require.True(t, got.Zero())

	// Same group under a different billing type must not match either.
	_, ok = resolver.Resolve("", "Jute Bag", BillingMonthly)
	require.False(t, ok)
}

func TestResolveIsDeterministic(t *testing.T) {
	rules := []Rule{
		{ItemGroup: "Net Bag", BillingType: BillingSeasonal, HandlingRate: rate(12), LoadingRate: rate(3)},
		{GoodsItem: "Potato", ItemGroup: "Net Bag", BillingType: BillingSeasonal, HandlingRate: rate(15)},
	}
	resolver := NewResolver(rules)

	first, _ := resolver.Resolve("Potato", "Net Bag", BillingSeasonal)
	second, _ := resolver.Resolve("Potato", "Net Bag", BillingSeasonal)
	require.True(t, first.Handling.Equal(second.Handling))
	require.True(t, first.Loading.Equal(second.Loading))
}
