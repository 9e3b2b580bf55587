package aggregate

import (
	"reflect"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

func event(id string, bu domain.BusinessUnit, stage domain.Stage, date string, gross, net int64) domain.BillingEvent {
	return domain.BillingEvent{
		OpportunityID: id,
		BU:            bu,
		Company:       "SAPI",
		Stage:         stage,
		Date:          datetime.MustParseTime(datetime.DateLayout, date),
		GrossAmount:   decimal.NewFromInt(gross),
		NetAmount:     decimal.NewFromInt(net),
		Mode:          domain.ModeContable,
	}
}

func TestBuild(t *testing.T) {
	events := []domain.BillingEvent{
		event("OPP-1", domain.BUFCT, domain.StageINICIO, "2025-01-10", 30000, 10800),
		event("OPP-1", domain.BUFCT, domain.StageDR, "2025-01-31", 30000, 10800),
		event("OPP-1", domain.BUFCT, domain.StageFAT, "2025-03-09", 30000, 10800),
		event("OPP-2", domain.BUICT, domain.StageSAT, "2025-01-20", 50000, 10000),
	}

	table := Build(events, nil)

	expectedMonths := []string{"2025-01", "2025-02", "2025-03"}
	if !reflect.DeepEqual(table.Months, expectedMonths) {
		t.Errorf("Build().Months = %v, expected %v", table.Months, expectedMonths)
	}

	row, ok := table.Row("OPP-1")
	if !ok {
		t.Fatalf("Row(OPP-1) not found")
	}
	// Two events in January are summed, not overwritten.
	if got := row.Net("2025-01"); !got.Equal(decimal.NewFromInt(21600)) {
		t.Errorf("OPP-1 January = %s, expected 21600", got)
	}
	if got := row.Net("2025-02"); !got.IsZero() {
		t.Errorf("OPP-1 February = %s, expected 0", got)
	}
	if !row.Total.Equal(decimal.NewFromInt(32400)) {
		t.Errorf("OPP-1 total = %s, expected 32400", row.Total)
	}

	// Rows are ordered by BU then id.
	if table.Rows[0].OpportunityID != "OPP-1" || table.Rows[1].OpportunityID != "OPP-2" {
		t.Errorf("Rows order = %s, %s, expected OPP-1 (FCT), OPP-2 (ICT)", table.Rows[0].OpportunityID, table.Rows[1].OpportunityID)
	}

	tests := []struct {
		name     string
		got      decimal.Decimal
		expected int64
	}{
		{"January total", table.MonthTotals["2025-01"], 31600},
		{"March total", table.MonthTotals["2025-03"], 10800},
		{"Grand net total", table.TotalNet, 42400},
		{"Grand gross total", table.TotalGross, 140000},
		{"FCT rollup", table.BUs[0].Total, 32400},
		{"ICT rollup", table.BUs[1].Total, 10000},
		{"Company rollup", table.Companies[0].Total, 42400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.got.Equal(decimal.NewFromInt(tt.expected)) {
				t.Errorf("%s = %s, expected %d", tt.name, tt.got, tt.expected)
			}
		})
	}

	expectedCumulative := []int64{31600, 31600, 42400}
	if len(table.Cumulative) != len(expectedCumulative) {
		t.Fatalf("Cumulative has %d points, expected %d", len(table.Cumulative), len(expectedCumulative))
	}
	for i, want := range expectedCumulative {
		if !table.Cumulative[i].Cumulative.Equal(decimal.NewFromInt(want)) {
			t.Errorf("Cumulative[%d] = %s, expected %d", i, table.Cumulative[i].Cumulative, want)
		}
	}
	last := table.Cumulative[len(table.Cumulative)-1]
	if !last.Cumulative.Equal(table.TotalNet) {
		t.Errorf("last cumulative %s does not equal grand total %s", last.Cumulative, table.TotalNet)
	}
}

func TestBuildAcrossYearBoundary(t *testing.T) {
	events := []domain.BillingEvent{
		event("OPP-1", domain.BUFCT, domain.StageINICIO, "2025-11-30", 100, 40),
		event("OPP-1", domain.BUFCT, domain.StageSAT, "2026-02-01", 100, 40),
	}

	table := Build(events, nil)
	expected := []string{"2025-11", "2025-12", "2026-01", "2026-02"}
	if !reflect.DeepEqual(table.Months, expected) {
		t.Errorf("Build().Months = %v, expected %v", table.Months, expected)
	}
}

func TestBuildWarnsOnOpportunitiesWithoutEvents(t *testing.T) {
	events := []domain.BillingEvent{
		event("OPP-1", domain.BUFCT, domain.StageINICIO, "2025-01-10", 100, 40),
	}
	expected := []domain.Opportunity{{ID: "OPP-1"}, {ID: "OPP-9"}}

	table := Build(events, expected)

	if len(table.Warnings) != 1 || !strings.Contains(table.Warnings[0], "OPP-9") {
		t.Errorf("Build().Warnings = %v, expected one warning for OPP-9", table.Warnings)
	}
	if _, ok := table.Row("OPP-9"); ok {
		t.Errorf("Row(OPP-9) found, expected exclusion")
	}
}

func TestBuildEmpty(t *testing.T) {
	table := Build(nil, nil)

	if table.Months != nil || table.Rows != nil || table.Cumulative != nil {
		t.Errorf("Build(nil) = %+v, expected an empty table", table)
	}
	if !table.TotalNet.IsZero() {
		t.Errorf("Build(nil).TotalNet = %s, expected 0", table.TotalNet)
	}
}
