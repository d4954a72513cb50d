package rates

// ruleKey identifies one rule slot. An empty item marks the generic rule for
// the (group, billing type) pair.
type ruleKey struct {
	item    string
	group   string
	billing BillingType
}

// Resolver answers rate lookups over a fixed rule snapshot. Build one per
// billing computation so repeated lookups within a document see the same table.
type Resolver struct {
	byKey map[ruleKey]Rate
}

// NewResolver indexes the given rules. Later duplicates win, matching the
// behaviour of a settings table edited top to bottom.
func NewResolver(rules []Rule) *Resolver {
	byKey := make(map[ruleKey]Rate, len(rules))
	for _, rule := range rules {
		key := ruleKey{item: rule.GoodsItem, group: rule.ItemGroup, billing: rule.BillingType}
		byKey[key] = Rate{Handling: rule.HandlingRate, Loading: rule.LoadingRate}
	}
	return &Resolver{byKey: byKey}
}

// Resolve returns the rate for (item, group, billing): an exact item match
// first, then the generic rule for the group, then zero rates. Explicit rates
// entered on a document line take precedence over resolution; callers only
// resolve for lines whose rate fields are unset.
func (r *Resolver) Resolve(goodsItem, itemGroup string, billing BillingType) (Rate, bool) {
	if rate, ok := r.byKey[ruleKey{item: goodsItem, group: itemGroup, billing: billing}]; ok && goodsItem != "" {
		return rate, true
	}
	if rate, ok := r.byKey[ruleKey{item: "", group: itemGroup, billing: billing}]; ok {
		return rate, true
	}
	return Rate{}, false
}
