package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/mathutil"
)

// Trend labels for Comparison
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

var (
	highRiskCeiling    = decimal.RequireFromString("0.3")
	lowRiskFloor       = decimal.RequireFromString("0.7")
	concentrationLimit = decimal.RequireFromString("0.6")
)

// RiskBucket counts events and their net amount.
type RiskBucket struct {
	Count int
	Net   decimal.Decimal
}

// RiskAnalysis splits the forecast by probability band and measures how much
// of it depends on a single business unit.
type RiskAnalysis struct {
	HighRisk   RiskBucket // probability < 0.3
	MediumRisk RiskBucket // 0.3 <= probability < 0.7
	LowRisk    RiskBucket // probability >= 0.7

	BUDistribution     map[domain.BusinessUnit]decimal.Decimal
	MaxBUConcentration decimal.Decimal
	Concentrated       bool
}

// AnalyzeRisk computes the risk analysis of a set of events.
func AnalyzeRisk(events []domain.BillingEvent) RiskAnalysis {
	ra := RiskAnalysis{BUDistribution: make(map[domain.BusinessUnit]decimal.Decimal)}

	total := decimal.Zero
	for _, ev := range events {
		bucket := &ra.MediumRisk
		switch {
		case ev.Probability.LessThan(highRiskCeiling):
			bucket = &ra.HighRisk
		case !ev.Probability.LessThan(lowRiskFloor):
			bucket = &ra.LowRisk
		}
		bucket.Count++
		bucket.Net = bucket.Net.Add(ev.NetAmount)

		ra.BUDistribution[ev.BU] = ra.BUDistribution[ev.BU].Add(ev.NetAmount)
		total = total.Add(ev.NetAmount)
	}

	maxBU := decimal.Zero
	for _, amount := range ra.BUDistribution {
		maxBU = mathutil.Max(maxBU, amount)
	}
	ra.MaxBUConcentration = mathutil.Ratio(maxBU, total)
	ra.Concentrated = ra.MaxBUConcentration.GreaterThan(concentrationLimit)
	return ra
}

// Comparison contrasts the net total of two runs.
type Comparison struct {
	CurrentTotal     decimal.Decimal
	PreviousTotal    decimal.Decimal
	Difference       decimal.Decimal
	PercentageChange decimal.Decimal
	Trend            string
}

// Compare returns the comparison of current against previous. The percentage
// change is zero when the previous total is not positive.
func Compare(current, previous []domain.BillingEvent) Comparison {
	c := Comparison{
		CurrentTotal:  sumNet(current),
		PreviousTotal: sumNet(previous),
	}
	c.Difference = c.CurrentTotal.Sub(c.PreviousTotal)
	if c.PreviousTotal.IsPositive() {
		c.PercentageChange = mathutil.Round(mathutil.CalculatePercentage(c.Difference, c.PreviousTotal))
	}

	switch {
	case c.Difference.IsPositive():
		c.Trend = TrendUp
	case c.Difference.IsNegative():
		c.Trend = TrendDown
	default:
		c.Trend = TrendStable
	}
	return c
}

// CostOfSale is the non-margin part of an opportunity, booked in the month
// of its last billing event.
type CostOfSale struct {
	OpportunityID   string
	OpportunityName string
	BU              domain.BusinessUnit
	Company         string
	Month           string
	Amount          decimal.Decimal
	GrossMargin     decimal.Decimal
	Cost            decimal.Decimal
}

// CostOfSales lists the cost of sale of every opportunity that carries a gross
// margin and produced at least one event, ordered by month then id.
func CostOfSales(opportunities []domain.Opportunity, events []domain.BillingEvent) []CostOfSale {
	lastMonth := make(map[string]string)
	for _, ev := range events {
		month := datetime.MonthKey(ev.Date)
		if month > lastMonth[ev.OpportunityID] {
			lastMonth[ev.OpportunityID] = month
		}
	}

	var out []CostOfSale
	for _, opp := range opportunities {
		month, ok := lastMonth[opp.ID]
		if !ok || opp.GrossMargin.IsZero() {
			continue
		}
		out = append(out, CostOfSale{
			OpportunityID:   opp.ID,
			OpportunityName: opp.Name,
			BU:              opp.BU,
			Company:         opp.Company,
			Month:           month,
			Amount:          opp.Amount,
			GrossMargin:     opp.GrossMargin,
			Cost:            opp.Amount.Sub(opp.GrossMargin),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].OpportunityID < out[j].OpportunityID
	})
	return out
}

func sumNet(events []domain.BillingEvent) decimal.Decimal {
	total := decimal.Zero
	for _, ev := range events {
		total = total.Add(ev.NetAmount)
	}
	return total
}
