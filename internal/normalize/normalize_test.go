package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwvelando/billing-forecast/internal/clienthistory"
	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/pkg/constants"
)

type fakeLookup struct {
	defaults map[string]clienthistory.Defaults
	err      error
	calls    []string
}

func (f *fakeLookup) Lookup(_ context.Context, client string, _ decimal.Decimal) (clienthistory.Defaults, bool, error) {
	f.calls = append(f.calls, client)
	if f.err != nil {
		return clienthistory.Defaults{}, false, f.err
	}
	d, ok := f.defaults[client]
	return d, ok, nil
}

func intPtr(v int) *int { return &v }

func TestExtractClientName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Dash separator", "Acme Industrial - Line upgrade", "Acme Industrial"},
		{"Para separator is title cased", "Automatización de línea para grupo bimbo", "Grupo Bimbo"},
		{"Trailing project word", "Globex Corp Project", "Globex Corp"},
		{"Trailing proyecto word", "Initech Proyecto", "Initech"},
		{"First two words", "Umbrella Corp plant retrofit", "Umbrella Corp"},
		{"Single word", "Hooli", "Hooli"},
		{"Empty", "   ", UnknownClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractClientName(tt.input))
		})
	}
}

func TestClassifyCompany(t *testing.T) {
	assert.Equal(t, constants.CompanyLLC, ClassifyCompany("us-west"))
	assert.Equal(t, constants.CompanySAPI, ClassifyCompany(" MX-North"))
	assert.Equal(t, constants.CompanyUnclassified, ClassifyCompany("BR"))
	assert.Equal(t, constants.CompanyUnclassified, ClassifyCompany(""))
}

func TestEstimateLeadTime(t *testing.T) {
	tests := []struct {
		amount   string
		expected int
	}{
		{"0", 6},
		{"49999.99", 6},
		{"50000", 10},
		{"199999", 10},
		{"200000", 16},
		{"500000", 24},
		{"12000000", 24},
		{"-1", constants.FallbackLeadTimeWeeks},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.expected, EstimateLeadTime(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestBackfill(t *testing.T) {
	lookup := &fakeLookup{defaults: map[string]clienthistory.Defaults{
		"Acme":        {LeadTimeWeeks: 9, PaymentTerms: "NET 45", Projects: 3},
		"Globex Corp": {PaymentTerms: "NET 60", Projects: 1},
	}}
	records := []config.OpportunityRecord{
		{ID: "OPP-1", Name: "Acme - Line upgrade", Amount: 100000, Probability: 0.6, Region: "MX-North"},
		{ID: "OPP-2", Name: "Globex Corp Project", Amount: 250000, Probability: 60, Region: "US-East"},
		{ID: "OPP-3", Name: "Hooli retrofit", Client: "Hooli", Amount: 10000, Probability: 0.2, LeadTimeWeeks: intPtr(5), PaymentTerms: "NET 15", Company: "LLC"},
		{ID: "OPP-4", Name: "Initech - Audit", Amount: 30000, Probability: 0.4},
	}

	out, report, err := New(nil, lookup).Backfill(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// Historical lead time and terms.
	assert.Equal(t, "Acme", out[0].Client)
	require.NotNil(t, out[0].LeadTimeWeeks)
	assert.Equal(t, 9, *out[0].LeadTimeWeeks)
	assert.Equal(t, "NET 45", out[0].PaymentTerms)
	assert.Equal(t, constants.CompanySAPI, out[0].Company)
	assert.Equal(t, Provenance{
		LeadTime:     SourceHistorical,
		PaymentTerms: SourceHistorical,
		Client:       SourceEstimated,
		Company:      SourceEstimated,
		Probability:  SourceOriginal,
	}, report.Provenance[0])

	// History without a lead time falls back to the amount estimate.
	assert.Equal(t, "Globex Corp", out[1].Client)
	assert.Equal(t, 16, *out[1].LeadTimeWeeks)
	assert.Equal(t, "NET 60", out[1].PaymentTerms)
	assert.InDelta(t, 0.6, out[1].Probability, 1e-9)
	assert.Equal(t, SourceEstimated, report.Provenance[1].LeadTime)
	assert.Equal(t, SourceEstimated, report.Provenance[1].Probability)

	// Complete records are untouched.
	assert.Equal(t, records[2], out[2])
	assert.Equal(t, Provenance{
		LeadTime:     SourceOriginal,
		PaymentTerms: SourceOriginal,
		Client:       SourceOriginal,
		Company:      SourceOriginal,
		Probability:  SourceOriginal,
	}, report.Provenance[2])

	// Unknown client: estimate and default.
	assert.Equal(t, 6, *out[3].LeadTimeWeeks)
	assert.Equal(t, constants.DefaultPaymentTerms, out[3].PaymentTerms)
	assert.Equal(t, SourceDefault, report.Provenance[3].PaymentTerms)

	assert.Equal(t, []string{"Acme", "Globex Corp", "Initech"}, lookup.calls)
	assert.Len(t, report.Warnings, 1)
	assert.Equal(t, 2, report.Count(leadTimeOf, SourceEstimated))

	// The input slice is not modified.
	assert.Nil(t, records[0].LeadTimeWeeks)
	assert.Empty(t, records[0].Client)
}

func TestBackfillWithoutLookup(t *testing.T) {
	out, report, err := New(nil, nil).Backfill(context.Background(), []config.OpportunityRecord{
		{ID: "OPP-1", Name: "Acme - Line upgrade", Amount: 600000, Probability: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 24, *out[0].LeadTimeWeeks)
	assert.Equal(t, constants.DefaultPaymentTerms, out[0].PaymentTerms)
	assert.Empty(t, report.Warnings)
}

func TestBackfillLookupFailure(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("database is locked")}

	out, report, err := New(nil, lookup).Backfill(context.Background(), []config.OpportunityRecord{
		{ID: "OPP-1", Name: "Acme - Line upgrade", Amount: 1000, Probability: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, *out[0].LeadTimeWeeks)
	assert.Equal(t, SourceEstimated, report.Provenance[0].LeadTime)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "database is locked")
}

func TestBackfillCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(nil, nil).Backfill(ctx, []config.OpportunityRecord{{ID: "OPP-1"}})
	assert.ErrorIs(t, err, context.Canceled)
}
