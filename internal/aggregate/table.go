// Package aggregate groups billing events into the monthly reporting table and
// the analyses built on top of it.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// Row is the monthly net amount of one opportunity.
type Row struct {
	OpportunityID   string
	OpportunityName string
	BU              domain.BusinessUnit
	Client          string
	Company         string
	Months          map[string]decimal.Decimal
	Total           decimal.Decimal
}

// Net returns the row value for month, zero when absent.
func (r Row) Net(month string) decimal.Decimal {
	return r.Months[month]
}

// Rollup is a group total by month, keyed by business unit or company.
type Rollup struct {
	Key    string
	Months map[string]decimal.Decimal
	Total  decimal.Decimal
}

// CumulativePoint is one month of the running-sum series.
type CumulativePoint struct {
	Month      string
	Net        decimal.Decimal
	Cumulative decimal.Decimal
}

// Table is the reporting view of one run.
type Table struct {
	// Months is contiguous and chronological from the first to the last
	// event month.
	Months      []string
	Rows        []Row
	BUs         []Rollup
	Companies   []Rollup
	MonthTotals map[string]decimal.Decimal
	Cumulative  []CumulativePoint
	TotalNet    decimal.Decimal
	TotalGross  decimal.Decimal
	// Warnings lists opportunities that were expected but produced no events.
	Warnings []string
}

// Row returns the row of an opportunity.
func (t *Table) Row(opportunityID string) (Row, bool) {
	for _, r := range t.Rows {
		if r.OpportunityID == opportunityID {
			return r, true
		}
	}
	return Row{}, false
}

// Build aggregates events by (opportunity, month). Events of one opportunity in
// the same month are summed. Every entry of expected that has no events is
// reported in Table.Warnings and contributes nothing.
func Build(events []domain.BillingEvent, expected []domain.Opportunity) *Table {
	t := &Table{
		MonthTotals: make(map[string]decimal.Decimal),
		TotalNet:    decimal.Zero,
		TotalGross:  decimal.Zero,
	}

	rows := make(map[string]*Row)
	bus := make(map[string]*Rollup)
	companies := make(map[string]*Rollup)
	var first, last string

	for _, ev := range events {
		month := datetime.MonthKey(ev.Date)
		if first == "" || month < first {
			first = month
		}
		if last == "" || month > last {
			last = month
		}

		row, ok := rows[ev.OpportunityID]
		if !ok {
			row = &Row{
				OpportunityID:   ev.OpportunityID,
				OpportunityName: ev.OpportunityName,
				BU:              ev.BU,
				Client:          ev.Client,
				Company:         ev.Company,
				Months:          make(map[string]decimal.Decimal),
			}
			rows[ev.OpportunityID] = row
		}
		row.Months[month] = row.Months[month].Add(ev.NetAmount)
		row.Total = row.Total.Add(ev.NetAmount)

		addToRollup(bus, string(ev.BU), month, ev.NetAmount)
		addToRollup(companies, ev.Company, month, ev.NetAmount)

		t.MonthTotals[month] = t.MonthTotals[month].Add(ev.NetAmount)
		t.TotalNet = t.TotalNet.Add(ev.NetAmount)
		t.TotalGross = t.TotalGross.Add(ev.GrossAmount)
	}

	t.Months = monthRange(first, last)

	for _, row := range rows {
		t.Rows = append(t.Rows, *row)
	}
	sort.Slice(t.Rows, func(i, j int) bool {
		if t.Rows[i].BU != t.Rows[j].BU {
			return t.Rows[i].BU < t.Rows[j].BU
		}
		return t.Rows[i].OpportunityID < t.Rows[j].OpportunityID
	})
	t.BUs = sortedRollups(bus)
	t.Companies = sortedRollups(companies)

	running := decimal.Zero
	for _, month := range t.Months {
		net := t.MonthTotals[month]
		running = running.Add(net)
		t.Cumulative = append(t.Cumulative, CumulativePoint{Month: month, Net: net, Cumulative: running})
	}

	for _, opp := range expected {
		if _, ok := rows[opp.ID]; !ok {
			t.Warnings = append(t.Warnings, fmt.Sprintf("Opportunity '%s' produced no billing events and is excluded from the table", opp.ID))
		}
	}

	return t
}

func addToRollup(groups map[string]*Rollup, key, month string, amount decimal.Decimal) {
	if key == "" {
		return
	}
	g, ok := groups[key]
	if !ok {
		g = &Rollup{Key: key, Months: make(map[string]decimal.Decimal)}
		groups[key] = g
	}
	g.Months[month] = g.Months[month].Add(amount)
	g.Total = g.Total.Add(amount)
}

func sortedRollups(groups map[string]*Rollup) []Rollup {
	out := make([]Rollup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// monthRange lists every month from first to last inclusive.
func monthRange(first, last string) []string {
	if first == "" {
		return nil
	}
	months := []string{first}
	for current := first; current < last; {
		next, err := datetime.OffsetMonth(current, 1)
		if err != nil {
			break
		}
		months = append(months, next)
		current = next
	}
	return months
}
