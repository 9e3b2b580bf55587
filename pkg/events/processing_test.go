package events

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/rules"
)

var fixedToday = datetime.MustParseTime(datetime.DateLayout, "2025-01-01")

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func scenarioOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:            "OPP-100",
		Name:          "Acme - Line upgrade",
		BU:            domain.BUFCT,
		Amount:        d("100000"),
		CloseDate:     datetime.MustParseTime(datetime.DateLayout, "2025-01-10"),
		LeadTimeWeeks: 4,
		PaymentTerms:  "NET 30",
		Probability:   d("0.60"),
		Client:        "Acme",
	}
}

type expectedEvent struct {
	stage domain.Stage
	date  string
	gross string
	net   string
}

func assertEvents(t *testing.T, got []domain.BillingEvent, expected []expectedEvent, mode domain.BillingMode) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("Process() returned %d events, expected %d", len(got), len(expected))
	}
	for i, e := range expected {
		ev := got[i]
		if ev.Stage != e.stage {
			t.Errorf("event[%d].Stage = %s, expected %s", i, ev.Stage, e.stage)
		}
		if ev.Date.Format(datetime.DateLayout) != e.date {
			t.Errorf("event[%d].Date = %s, expected %s", i, ev.Date.Format(datetime.DateLayout), e.date)
		}
		if !ev.GrossAmount.Equal(d(e.gross)) {
			t.Errorf("event[%d].GrossAmount = %s, expected %s", i, ev.GrossAmount, e.gross)
		}
		if !ev.NetAmount.Equal(d(e.net)) {
			t.Errorf("event[%d].NetAmount = %s, expected %s", i, ev.NetAmount, e.net)
		}
		if ev.Mode != mode {
			t.Errorf("event[%d].Mode = %s, expected %s", i, ev.Mode, mode)
		}
	}
}

func TestProcessContableScenario(t *testing.T) {
	p := NewProcessor(nil, rules.Default(), domain.ModeContable, fixedToday)

	got, err := p.Process(scenarioOpportunity())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	assertEvents(t, got, []expectedEvent{
		{domain.StageINICIO, "2025-01-10", "30000", "10800"},
		{domain.StageDR, "2025-02-09", "30000", "10800"},
		{domain.StageFAT, "2025-03-09", "30000", "10800"},
		{domain.StageSAT, "2025-04-08", "10000", "3600"},
	}, domain.ModeContable)

	totalNet := decimal.Zero
	for _, ev := range got {
		totalNet = totalNet.Add(ev.NetAmount)
	}
	if !totalNet.Equal(d("36000")) {
		t.Errorf("total net = %s, expected 36000", totalNet)
	}
}

func TestProcessFinancieraScenario(t *testing.T) {
	p := NewProcessor(nil, rules.Default(), domain.ModeFinanciera, fixedToday)

	got, err := p.Process(scenarioOpportunity())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	assertEvents(t, got, []expectedEvent{
		{domain.StageSAT, "2025-04-08", "100000", "36000"},
	}, domain.ModeFinanciera)
}

func TestProcessAdvance(t *testing.T) {
	opp := scenarioOpportunity()
	opp.Probability = d("0.5")
	opp.PaidInAdvance = d("20000")

	contable, err := NewProcessor(nil, rules.Default(), domain.ModeContable, fixedToday).Process(opp)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertEvents(t, contable, []expectedEvent{
		{domain.StagePIA, "2025-01-10", "20000", "20000"},
		{domain.StageDR, "2025-02-09", "35000", "7000"},
		{domain.StageFAT, "2025-03-09", "35000", "7000"},
		{domain.StageSAT, "2025-04-08", "10000", "2000"},
	}, domain.ModeContable)

	financiera, err := NewProcessor(nil, rules.Default(), domain.ModeFinanciera, fixedToday).Process(opp)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertEvents(t, financiera, []expectedEvent{
		{domain.StageSAT, "2025-04-08", "100000", "20000"},
	}, domain.ModeFinanciera)
}

func TestProcessLargeAdvance(t *testing.T) {
	tests := []struct {
		name     string
		advance  string
		expected []expectedEvent
	}{
		{
			name:    "Advance above DR and FAT share",
			advance: "95000",
			expected: []expectedEvent{
				{domain.StagePIA, "2025-01-10", "95000", "95000"},
				{domain.StageSAT, "2025-04-08", "5000", "1800"},
			},
		},
		{
			name:    "Fully prepaid",
			advance: "100000",
			expected: []expectedEvent{
				{domain.StagePIA, "2025-01-10", "100000", "100000"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := scenarioOpportunity()
			opp.PaidInAdvance = d(tt.advance)

			contable, err := NewProcessor(nil, rules.Default(), domain.ModeContable, fixedToday).Process(opp)
			if err != nil {
				t.Fatalf("Contable Process() error = %v", err)
			}
			assertEvents(t, contable, tt.expected, domain.ModeContable)

			total := decimal.Zero
			for _, ev := range contable {
				total = total.Add(ev.GrossAmount)
			}
			if !total.Equal(opp.Amount) {
				t.Errorf("Contable gross total = %s, expected %s", total, opp.Amount)
			}

			financiera, err := NewProcessor(nil, rules.Default(), domain.ModeFinanciera, fixedToday).Process(opp)
			if err != nil {
				t.Fatalf("Financiera Process() error = %v", err)
			}
			assertEvents(t, financiera, []expectedEvent{
				{domain.StageSAT, "2025-04-08", "100000", "36000"},
			}, domain.ModeFinanciera)
		})
	}
}

func TestProcessICT(t *testing.T) {
	opp := scenarioOpportunity()
	opp.BU = domain.BUICT
	opp.Amount = d("50000")
	opp.Probability = d("0.8")
	opp.LeadTimeWeeks = 6
	opp.PaidInAdvance = d("10000")

	got, err := NewProcessor(nil, rules.Default(), domain.ModeContable, fixedToday).Process(opp)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertEvents(t, got, []expectedEvent{
		{domain.StagePIA, "2025-01-10", "10000", "10000"},
		{domain.StageSAT, "2025-02-21", "40000", "12800"},
	}, domain.ModeContable)
}

func TestProcessPastCloseDate(t *testing.T) {
	today := datetime.MustParseTime(datetime.DateLayout, "2025-09-18")
	opp := scenarioOpportunity()
	opp.CloseDate = datetime.MustParseTime(datetime.DateLayout, "2025-05-05")

	got, err := NewProcessor(nil, rules.Default(), domain.ModeContable, today).Process(opp)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got[0].Date.Format(datetime.DateLayout) != "2025-09-30" {
		t.Errorf("first event date = %s, expected 2025-09-30", got[0].Date.Format(datetime.DateLayout))
	}
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name     string
		mode     domain.BillingMode
		mutate   func(o *domain.Opportunity)
		expected error
	}{
		{"Confirmed opportunity", domain.ModeContable, func(o *domain.Opportunity) { o.Probability = d("1") }, domain.ErrConfirmedOpportunity},
		{"Advance over amount", domain.ModeContable, func(o *domain.Opportunity) { o.PaidInAdvance = d("100000.01") }, domain.ErrAdvanceExceedsAmount},
		{"Advance over amount in Financiera", domain.ModeFinanciera, func(o *domain.Opportunity) { o.PaidInAdvance = d("100000.01") }, domain.ErrAdvanceExceedsAmount},
		{"Sub-cent advance", domain.ModeContable, func(o *domain.Opportunity) { o.PaidInAdvance = d("100.005") }, domain.ErrSubCentPrecision},
		{"Probability out of range", domain.ModeContable, func(o *domain.Opportunity) { o.Probability = d("1.5") }, domain.ErrProbabilityOutOfRange},
		{"Unknown business unit", domain.ModeFinanciera, func(o *domain.Opportunity) { o.BU = "XYZ" }, domain.ErrUnknownBusinessUnit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := scenarioOpportunity()
			tt.mutate(&opp)
			got, err := NewProcessor(nil, rules.Default(), tt.mode, fixedToday).Process(opp)
			if !errors.Is(err, tt.expected) {
				t.Errorf("Process() error = %v, expected %v", err, tt.expected)
			}
			if got != nil {
				t.Errorf("Process() returned %d events alongside an error", len(got))
			}
		})
	}
}

func TestProcessModeExclusivity(t *testing.T) {
	r := rules.Default()
	opps := []domain.Opportunity{scenarioOpportunity()}

	ict := scenarioOpportunity()
	ict.ID = "OPP-200"
	ict.BU = domain.BUICT
	opps = append(opps, ict)

	prepaid := scenarioOpportunity()
	prepaid.ID = "OPP-300"
	prepaid.PaidInAdvance = d("10000")
	opps = append(opps, prepaid)

	fullyPrepaid := scenarioOpportunity()
	fullyPrepaid.ID = "OPP-400"
	fullyPrepaid.PaidInAdvance = d("100000")
	opps = append(opps, fullyPrepaid)

	contable := NewProcessor(nil, r, domain.ModeContable, fixedToday)
	financiera := NewProcessor(nil, r, domain.ModeFinanciera, fixedToday)

	contableCount, financieraCount := 0, 0
	for _, opp := range opps {
		c, err := contable.Process(opp)
		if err != nil {
			t.Fatalf("Contable Process(%s) error = %v", opp.ID, err)
		}
		f, err := financiera.Process(opp)
		if err != nil {
			t.Fatalf("Financiera Process(%s) error = %v", opp.ID, err)
		}
		contableCount += len(c)
		financieraCount += len(f)
	}

	if financieraCount != len(opps) {
		t.Errorf("Financiera event count = %d, expected %d", financieraCount, len(opps))
	}
	if contableCount != 4+1+4+1 {
		t.Errorf("Contable event count = %d, expected 10", contableCount)
	}
}

func TestProcessUsesLeadTimeClamp(t *testing.T) {
	opp := scenarioOpportunity()
	opp.LeadTimeWeeks = 0

	got, err := NewProcessor(nil, rules.Default(), domain.ModeContable, fixedToday).Process(opp)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	for _, ev := range got {
		if ev.LeadTimeWeeks != 4 || ev.LeadTimeOriginal != 0 {
			t.Errorf("event lead time = %d (original %d), expected 4 (original 0)", ev.LeadTimeWeeks, ev.LeadTimeOriginal)
		}
	}
	if sat := got[len(got)-1]; !sat.Date.Equal(time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("SAT date = %s, expected 2025-04-08", sat.Date.Format(datetime.DateLayout))
	}
}
