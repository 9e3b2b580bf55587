package output

import (
	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/internal/aggregate"
	"github.com/iwvelando/billing-forecast/internal/forecast"
	"github.com/iwvelando/billing-forecast/pkg/adapters"
	"github.com/iwvelando/billing-forecast/pkg/constants"
)

// Report is the serializable view of a forecast run. Amounts are fixed
// two-decimal strings.
type Report struct {
	RunID      string                 `json:"runId"`
	Generation uint64                 `json:"generation"`
	Mode       string                 `json:"billingMode"`
	Segment    string                 `json:"segment"`
	Today      string                 `json:"today"`
	Summary    SummaryView            `json:"summary"`
	Events     []adapters.EventRecord `json:"events"`
	Table      TableView              `json:"table"`
	Risk       RiskView               `json:"risk"`
	CostOfSale []CostOfSaleView       `json:"costOfSale,omitempty"`
	Issues     []forecast.Issue       `json:"issues,omitempty"`
	Comparison *ComparisonView        `json:"comparison,omitempty"`
}

type SummaryView struct {
	In                int    `json:"in"`
	ExcludedConfirmed int    `json:"excludedConfirmed"`
	ExcludedSegment   int    `json:"excludedSegment"`
	Rejected          int    `json:"rejected"`
	Degenerate        int    `json:"degenerate"`
	Processed         int    `json:"processed"`
	EventCount        int    `json:"eventCount"`
	TotalGross        string `json:"totalGross"`
	TotalNet          string `json:"totalNet"`
}

type RowView struct {
	OpportunityID   string            `json:"opportunityId"`
	OpportunityName string            `json:"opportunityName,omitempty"`
	BU              string            `json:"bu"`
	Client          string            `json:"client,omitempty"`
	Company         string            `json:"company,omitempty"`
	Months          map[string]string `json:"months"`
	Total           string            `json:"total"`
}

type RollupView struct {
	Key    string            `json:"key"`
	Months map[string]string `json:"months"`
	Total  string            `json:"total"`
}

type CumulativeView struct {
	Month      string `json:"month"`
	Net        string `json:"net"`
	Cumulative string `json:"cumulative"`
}

type TableView struct {
	Months      []string          `json:"months"`
	Rows        []RowView         `json:"rows"`
	BUs         []RollupView      `json:"bus"`
	Companies   []RollupView      `json:"companies"`
	MonthTotals map[string]string `json:"monthTotals"`
	Cumulative  []CumulativeView  `json:"cumulative"`
	TotalNet    string            `json:"totalNet"`
	TotalGross  string            `json:"totalGross"`
	Warnings    []string          `json:"warnings,omitempty"`
}

type BucketView struct {
	Count int    `json:"count"`
	Net   string `json:"net"`
}

type RiskView struct {
	HighRisk           BucketView        `json:"highRisk"`
	MediumRisk         BucketView        `json:"mediumRisk"`
	LowRisk            BucketView        `json:"lowRisk"`
	BUDistribution     map[string]string `json:"buDistribution"`
	MaxBUConcentration string            `json:"maxBuConcentration"`
	Concentrated       bool              `json:"concentrated"`
}

type CostOfSaleView struct {
	OpportunityID string `json:"opportunityId"`
	BU            string `json:"bu"`
	Company       string `json:"company,omitempty"`
	Month         string `json:"month"`
	Amount        string `json:"amount"`
	GrossMargin   string `json:"grossMargin"`
	Cost          string `json:"cost"`
}

type ComparisonView struct {
	CurrentTotal     string `json:"currentTotal"`
	PreviousTotal    string `json:"previousTotal"`
	Difference       string `json:"difference"`
	PercentageChange string `json:"percentageChange"`
	Trend            string `json:"trend"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(constants.CurrencyScale)
}

func moneyMap(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = money(v)
	}
	return out
}

func rollups(in []aggregate.Rollup) []RollupView {
	out := make([]RollupView, 0, len(in))
	for _, r := range in {
		out = append(out, RollupView{Key: r.Key, Months: moneyMap(r.Months), Total: money(r.Total)})
	}
	return out
}

// NewReport builds the report of run.
func NewReport(run *forecast.Run) Report {
	s := run.Summary
	rep := Report{
		RunID:      run.ID,
		Generation: run.Generation,
		Mode:       string(run.Mode),
		Segment:    string(run.Segment),
		Today:      run.Today.Format(constants.DateLayout),
		Summary: SummaryView{
			In:                s.In,
			ExcludedConfirmed: s.ExcludedConfirmed,
			ExcludedSegment:   s.ExcludedSegment,
			Rejected:          s.Rejected,
			Degenerate:        s.Degenerate,
			Processed:         s.Processed,
			EventCount:        s.EventCount,
			TotalGross:        money(s.TotalGross),
			TotalNet:          money(s.TotalNet),
		},
		Events: adapters.EventsToRecords(run.Events),
		Issues: run.Issues,
	}
	if rep.Events == nil {
		rep.Events = []adapters.EventRecord{}
	}

	if t := run.Table; t != nil {
		rep.Table = TableView{
			Months:      t.Months,
			BUs:         rollups(t.BUs),
			Companies:   rollups(t.Companies),
			MonthTotals: moneyMap(t.MonthTotals),
			TotalNet:    money(t.TotalNet),
			TotalGross:  money(t.TotalGross),
			Warnings:    t.Warnings,
		}
		for _, r := range t.Rows {
			rep.Table.Rows = append(rep.Table.Rows, RowView{
				OpportunityID:   r.OpportunityID,
				OpportunityName: r.OpportunityName,
				BU:              string(r.BU),
				Client:          r.Client,
				Company:         r.Company,
				Months:          moneyMap(r.Months),
				Total:           money(r.Total),
			})
		}
		for _, c := range t.Cumulative {
			rep.Table.Cumulative = append(rep.Table.Cumulative, CumulativeView{
				Month: c.Month, Net: money(c.Net), Cumulative: money(c.Cumulative),
			})
		}
	}

	risk := aggregate.AnalyzeRisk(run.Events)
	rep.Risk = RiskView{
		HighRisk:           BucketView{Count: risk.HighRisk.Count, Net: money(risk.HighRisk.Net)},
		MediumRisk:         BucketView{Count: risk.MediumRisk.Count, Net: money(risk.MediumRisk.Net)},
		LowRisk:            BucketView{Count: risk.LowRisk.Count, Net: money(risk.LowRisk.Net)},
		BUDistribution:     make(map[string]string, len(risk.BUDistribution)),
		MaxBUConcentration: risk.MaxBUConcentration.StringFixed(4),
		Concentrated:       risk.Concentrated,
	}
	for bu, amount := range risk.BUDistribution {
		rep.Risk.BUDistribution[string(bu)] = money(amount)
	}

	for _, c := range aggregate.CostOfSales(run.Opportunities, run.Events) {
		rep.CostOfSale = append(rep.CostOfSale, CostOfSaleView{
			OpportunityID: c.OpportunityID,
			BU:            string(c.BU),
			Company:       c.Company,
			Month:         c.Month,
			Amount:        money(c.Amount),
			GrossMargin:   money(c.GrossMargin),
			Cost:          money(c.Cost),
		})
	}
	return rep
}

// WithComparison attaches the comparison against a previous run.
func (r Report) WithComparison(c aggregate.Comparison) Report {
	r.Comparison = &ComparisonView{
		CurrentTotal:     money(c.CurrentTotal),
		PreviousTotal:    money(c.PreviousTotal),
		Difference:       money(c.Difference),
		PercentageChange: c.PercentageChange.StringFixed(constants.CurrencyScale),
		Trend:            c.Trend,
	}
	return r
}
