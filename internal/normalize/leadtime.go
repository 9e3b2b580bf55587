package normalize

import (
	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

type amountRange struct {
	min, max decimal.Decimal // [min, max); a zero max is unbounded
	weeks    int
}

var leadTimeRanges = []amountRange{
	{decimal.Zero, decimal.NewFromInt(50000), 6},
	{decimal.NewFromInt(50000), decimal.NewFromInt(200000), 10},
	{decimal.NewFromInt(200000), decimal.NewFromInt(500000), 16},
	{decimal.NewFromInt(500000), decimal.Zero, 24},
}

// EstimateLeadTime returns the lead time in weeks typical for a project of the
// given amount.
func EstimateLeadTime(amount decimal.Decimal) int {
	for _, r := range leadTimeRanges {
		if amount.LessThan(r.min) {
			continue
		}
		if r.max.IsZero() || amount.LessThan(r.max) {
			return r.weeks
		}
	}
	return constants.FallbackLeadTimeWeeks
}
