package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/internal/app"
	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/internal/forecast"
	"github.com/iwvelando/billing-forecast/internal/normalize"
	"github.com/iwvelando/billing-forecast/pkg/adapters"
	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/output"
	"github.com/iwvelando/billing-forecast/pkg/testutil"
)

const (
	testConfig        = "../test_config.yaml"
	testOpportunities = "../test_opportunities.yaml"
)

// runPipeline loads and forecasts the test inputs exactly as main() does.
func runPipeline(t *testing.T, mutate func(*config.Configuration)) *forecast.Run {
	t.Helper()
	logger := zap.NewNop()

	conf, err := config.LoadConfiguration(testConfig)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if mutate != nil {
		mutate(conf)
	}

	params, err := app.Params(conf)
	if err != nil {
		t.Fatalf("Params() error = %v", err)
	}

	records, err := config.LoadOpportunities(testOpportunities)
	if err != nil {
		t.Fatalf("LoadOpportunities() error = %v", err)
	}
	records, _, err = normalize.New(logger, nil).Backfill(context.Background(), records)
	if err != nil {
		t.Fatalf("Backfill() error = %v", err)
	}
	opps, errs := adapters.RecordsToOpportunities(records)
	if len(errs) != 0 {
		t.Fatalf("RecordsToOpportunities() errors = %v", errs)
	}

	run, err := forecast.NewEngine(logger).Run(context.Background(), opps, params)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return run
}

// TestMainIntegrationBaseline checks the Contable run of the test inputs
// against hand-computed figures.
func TestMainIntegrationBaseline(t *testing.T) {
	run := runPipeline(t, nil)

	s := run.Summary
	if s.In != 5 || s.ExcludedConfirmed != 1 || s.Rejected != 1 || s.Processed != 3 {
		t.Errorf("Summary = %+v, expected 5 in, 1 confirmed, 1 rejected, 3 processed", s)
	}
	if s.EventCount != 9 {
		t.Errorf("EventCount = %d, expected 9", s.EventCount)
	}
	if s.TotalGross.StringFixed(2) != "230000.00" {
		t.Errorf("TotalGross = %s, expected 230000.00", s.TotalGross.StringFixed(2))
	}
	if s.TotalNet.StringFixed(2) != "77040.00" {
		t.Errorf("TotalNet = %s, expected 77040.00", s.TotalNet.StringFixed(2))
	}

	expectedMonths := map[string]string{
		"2025-01": "18800.00",
		"2025-02": "21040.00",
		"2025-03": "31040.00",
		"2025-04": "6160.00",
	}
	if len(run.Table.Months) != len(expectedMonths) {
		t.Errorf("Table.Months = %v, expected 4 months", run.Table.Months)
	}
	for month, expected := range expectedMonths {
		if got := run.Table.MonthTotals[month].StringFixed(2); got != expected {
			t.Errorf("MonthTotals[%s] = %s, expected %s", month, got, expected)
		}
	}

	baselineChecks := []struct {
		id    string
		stage domain.Stage
		date  string
		gross string
		net   string
	}{
		{"OPP-A", domain.StageINICIO, "2025-01-10", "30000.00", "10800.00"},
		{"OPP-A", domain.StageSAT, "2025-04-08", "10000.00", "3600.00"},
		{"OPP-B", domain.StageSAT, "2025-03-29", "50000.00", "10000.00"},
		{"OPP-D", domain.StagePIA, "2025-01-15", "8000.00", "8000.00"},
		{"OPP-D", domain.StageDR, "2025-02-14", "32000.00", "10240.00"},
		{"OPP-D", domain.StageFAT, "2025-03-28", "32000.00", "10240.00"},
		{"OPP-D", domain.StageSAT, "2025-04-27", "8000.00", "2560.00"},
	}
	for _, check := range baselineChecks {
		ev := testutil.FindEvent(run.Events, check.id, check.stage)
		if ev == nil {
			t.Errorf("missing %s %s event", check.id, check.stage)
			continue
		}
		if got := ev.Date.Format(constants.DateLayout); got != check.date {
			t.Errorf("%s %s date = %s, expected %s", check.id, check.stage, got, check.date)
		}
		if got := ev.GrossAmount.StringFixed(2); got != check.gross {
			t.Errorf("%s %s gross = %s, expected %s", check.id, check.stage, got, check.gross)
		}
		if got := ev.NetAmount.StringFixed(2); got != check.net {
			t.Errorf("%s %s net = %s, expected %s", check.id, check.stage, got, check.net)
		}
	}

	rejected := run.IssuesOf(forecast.IssueRejected)
	if len(rejected) != 1 || rejected[0].OpportunityID != "OPP-E" {
		t.Errorf("rejected issues = %+v, expected OPP-E", rejected)
	}
}

func TestGrossConservation(t *testing.T) {
	run := runPipeline(t, nil)

	for _, opp := range run.Opportunities {
		gross := testutil.SumGross(testutil.EventsFor(run.Events, opp.ID))
		if !gross.Equal(opp.Amount) {
			t.Errorf("%s gross = %s, expected %s", opp.ID, gross, opp.Amount)
		}
	}
}

func TestFinancieraRun(t *testing.T) {
	run := runPipeline(t, func(c *config.Configuration) { c.Billing.Mode = "Financiera" })

	if run.Summary.EventCount != 3 {
		t.Errorf("EventCount = %d, expected one event per processed opportunity", run.Summary.EventCount)
	}
	if got := run.Summary.TotalNet.StringFixed(2); got != "71600.00" {
		t.Errorf("TotalNet = %s, expected 71600.00", got)
	}
	for _, ev := range run.Events {
		if ev.Stage != domain.StageSAT || ev.Mode != domain.ModeFinanciera {
			t.Errorf("event %s %s %s, expected Financiera SAT events only", ev.OpportunityID, ev.Stage, ev.Mode)
		}
	}
}

func TestPipelineSegment(t *testing.T) {
	run := runPipeline(t, func(c *config.Configuration) { c.Billing.Segment = "pipeline" })

	if run.Summary.Processed != 1 || run.Summary.ExcludedSegment != 2 {
		t.Errorf("Summary = %+v, expected only OPP-B processed", run.Summary)
	}
	if got := run.Summary.TotalNet.StringFixed(2); got != "10000.00" {
		t.Errorf("TotalNet = %s, expected 10000.00", got)
	}
}

func TestCSVOutputFormat(t *testing.T) {
	run := runPipeline(t, nil)

	var buf bytes.Buffer
	if err := output.Write(&buf, constants.OutputFormatCSV, output.NewReport(run)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CSV output is invalid: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("CSV output has %d records, expected header + 9 events", len(records))
	}
	if records[1][2] != "OPP-A" || records[1][7] != "INICIO" {
		t.Errorf("first CSV row = %v, expected the OPP-A INICIO event", records[1])
	}
}

func TestMarkdownOutputFormat(t *testing.T) {
	run := runPipeline(t, nil)

	var buf bytes.Buffer
	if err := output.Write(&buf, constants.OutputFormatMarkdown, output.NewReport(run)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	for _, expected := range []string{"$77,040.00", "OPP-D", "Cost of sale", "$80,000.00"} {
		if !strings.Contains(out, expected) {
			t.Errorf("markdown output missing %q", expected)
		}
	}
}

func TestComparisonBetweenModes(t *testing.T) {
	contable := runPipeline(t, nil)
	financiera := runPipeline(t, func(c *config.Configuration) { c.Billing.Mode = "Financiera" })

	c := forecast.Compare(financiera, contable)
	if got := c.Difference.StringFixed(2); got != "-5440.00" {
		t.Errorf("Difference = %s, expected -5440.00", got)
	}
	if c.Trend != "down" {
		t.Errorf("Trend = %s, expected down", c.Trend)
	}
}
