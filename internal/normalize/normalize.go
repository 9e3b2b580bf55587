// Package normalize prepares raw opportunity records for the forecast engine:
// it fills missing lead times and payment terms from the client history or
// defaults, derives client and company, and converts percentage probabilities.
package normalize

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/internal/clienthistory"
	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/pkg/constants"
)

// Source tells where a normalized field came from.
type Source string

const (
	SourceOriginal   Source = "original"
	SourceHistorical Source = "historical"
	SourceEstimated  Source = "estimated"
	SourceDefault    Source = "default"
)

// ClientLookup returns the historical defaults of a client.
type ClientLookup interface {
	Lookup(ctx context.Context, client string, amount decimal.Decimal) (clienthistory.Defaults, bool, error)
}

// Provenance records the source of each backfilled field of one record.
type Provenance struct {
	LeadTime     Source `json:"leadTime"`
	PaymentTerms Source `json:"paymentTerms"`
	Client       Source `json:"client"`
	Company      Source `json:"company"`
	Probability  Source `json:"probability"`
}

// Report describes what a Backfill changed.
type Report struct {
	// Provenance is indexed like the returned records.
	Provenance []Provenance
	Warnings   []string
}

// Count returns how many records took field from src.
func (r *Report) Count(field func(Provenance) Source, src Source) int {
	n := 0
	for _, p := range r.Provenance {
		if field(p) == src {
			n++
		}
	}
	return n
}

// Normalizer backfills opportunity records.
type Normalizer struct {
	lookup ClientLookup
	logger *zap.Logger
}

// New creates a Normalizer. lookup may be nil, in which case only estimates
// and defaults are used.
func New(logger *zap.Logger, lookup ClientLookup) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{lookup: lookup, logger: logger}
}

var (
	hundred = decimal.NewFromInt(constants.PercentageMultiplier)
	one     = decimal.NewFromInt(1)
)

// Backfill returns normalized copies of records. Lookup failures are logged
// and reported as warnings; only a cancelled context aborts.
func (n *Normalizer) Backfill(ctx context.Context, records []config.OpportunityRecord) ([]config.OpportunityRecord, *Report, error) {
	out := make([]config.OpportunityRecord, len(records))
	report := &Report{Provenance: make([]Provenance, len(records))}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		prov := Provenance{
			LeadTime:     SourceOriginal,
			PaymentTerms: SourceOriginal,
			Client:       SourceOriginal,
			Company:      SourceOriginal,
			Probability:  SourceOriginal,
		}

		if strings.TrimSpace(rec.Client) == "" {
			rec.Client = ExtractClientName(rec.Name)
			prov.Client = SourceEstimated
		}
		if strings.TrimSpace(rec.Company) == "" {
			rec.Company = ClassifyCompany(rec.Region)
			prov.Company = SourceEstimated
		}

		prob := decimal.NewFromFloat(rec.Probability)
		if prob.GreaterThan(one) && !prob.GreaterThan(hundred) {
			rec.Probability = prob.Div(hundred).InexactFloat64()
			prov.Probability = SourceEstimated
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"Opportunity '%s' probability %s read as a percentage", rec.ID, prob))
		}

		needLead := rec.LeadTimeWeeks == nil
		needTerms := strings.TrimSpace(rec.PaymentTerms) == ""
		if needLead || needTerms {
			amount := decimal.NewFromFloat(rec.Amount)
			defaults, found := n.history(ctx, &rec, amount, report)
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}

			if needLead {
				weeks := defaults.LeadTimeWeeks
				prov.LeadTime = SourceHistorical
				if !found || weeks <= 0 {
					weeks = EstimateLeadTime(amount)
					prov.LeadTime = SourceEstimated
				}
				rec.LeadTimeWeeks = &weeks
			}
			if needTerms {
				rec.PaymentTerms = defaults.PaymentTerms
				prov.PaymentTerms = SourceHistorical
				if !found || rec.PaymentTerms == "" {
					rec.PaymentTerms = constants.DefaultPaymentTerms
					prov.PaymentTerms = SourceDefault
				}
			}
		}

		out[i] = rec
		report.Provenance[i] = prov
	}

	n.logger.Info("opportunities normalized",
		zap.String("op", "normalize.Backfill"),
		zap.Int("records", len(records)),
		zap.Int("leadTimeHistorical", report.Count(leadTimeOf, SourceHistorical)),
		zap.Int("leadTimeEstimated", report.Count(leadTimeOf, SourceEstimated)),
		zap.Int("paymentTermsHistorical", report.Count(paymentTermsOf, SourceHistorical)),
		zap.Int("paymentTermsDefault", report.Count(paymentTermsOf, SourceDefault)),
	)
	return out, report, nil
}

func (n *Normalizer) history(ctx context.Context, rec *config.OpportunityRecord, amount decimal.Decimal, report *Report) (clienthistory.Defaults, bool) {
	if n.lookup == nil {
		return clienthistory.Defaults{}, false
	}
	defaults, found, err := n.lookup.Lookup(ctx, rec.Client, amount)
	if err != nil {
		n.logger.Warn("client history lookup failed",
			zap.String("op", "normalize.Backfill"),
			zap.String("opportunity", rec.ID),
			zap.String("client", rec.Client),
			zap.Error(err),
		)
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"Opportunity '%s' client history unavailable: %v", rec.ID, err))
		return clienthistory.Defaults{}, false
	}
	return defaults, found
}

func leadTimeOf(p Provenance) Source     { return p.LeadTime }
func paymentTermsOf(p Provenance) Source { return p.PaymentTerms }
