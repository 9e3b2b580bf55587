// Package adapters converts between the configuration records read from
// input files and the domain types used by the forecast pipeline.
package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/internal/config"
	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/mathutil"
)

var closeDateLayouts = []string{constants.DateLayout, constants.AltDateLayout}

// ConversionError is a record that could not be turned into an opportunity.
// It matches domain.ErrInvalidOpportunity with errors.Is.
type ConversionError struct {
	ID  string
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", domain.ErrInvalidOpportunity, e.ID, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	return []error{domain.ErrInvalidOpportunity, e.Err}
}

// RecordToOpportunity converts a single record. Missing optional numbers
// become zero; the result still needs validation. Failures are returned as
// *ConversionError.
func RecordToOpportunity(rec config.OpportunityRecord) (domain.Opportunity, error) {
	closeDate, err := parseCloseDate(rec.CloseDate)
	if err != nil {
		return domain.Opportunity{}, &ConversionError{ID: strings.TrimSpace(rec.ID), Err: err}
	}

	opp := domain.Opportunity{
		ID:           strings.TrimSpace(rec.ID),
		Name:         strings.TrimSpace(rec.Name),
		BU:           domain.ParseBusinessUnit(rec.BU),
		Amount:       mathutil.FromFloat(rec.Amount),
		CloseDate:    closeDate,
		PaymentTerms: strings.TrimSpace(rec.PaymentTerms),
		Probability:  mathutil.FromFloat(rec.Probability),
		Client:       strings.TrimSpace(rec.Client),
		Region:       strings.TrimSpace(rec.Region),
		Company:      strings.TrimSpace(rec.Company),
	}
	if rec.LeadTimeWeeks != nil {
		opp.LeadTimeWeeks = *rec.LeadTimeWeeks
	}
	if rec.PaidInAdvance != nil {
		opp.PaidInAdvance = mathutil.FromFloat(*rec.PaidInAdvance)
	}
	if rec.GrossMargin != nil {
		opp.GrossMargin = mathutil.FromFloat(*rec.GrossMargin)
	}
	return opp, nil
}

// RecordsToOpportunities converts every record it can. Records that fail
// conversion are reported in the returned error slice and skipped.
func RecordsToOpportunities(records []config.OpportunityRecord) ([]domain.Opportunity, []error) {
	if records == nil {
		return nil, nil
	}

	opps := make([]domain.Opportunity, 0, len(records))
	var errs []error
	for _, rec := range records {
		opp, err := RecordToOpportunity(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		opps = append(opps, opp)
	}
	return opps, errs
}

// OpportunityToRecord renders an opportunity back into its record form.
func OpportunityToRecord(opp domain.Opportunity) config.OpportunityRecord {
	lead := opp.LeadTimeWeeks
	rec := config.OpportunityRecord{
		ID:            opp.ID,
		Name:          opp.Name,
		BU:            string(opp.BU),
		Amount:        opp.Amount.InexactFloat64(),
		LeadTimeWeeks: &lead,
		PaymentTerms:  opp.PaymentTerms,
		Probability:   opp.Probability.InexactFloat64(),
		Client:        opp.Client,
		Region:        opp.Region,
		Company:       opp.Company,
	}
	if !opp.CloseDate.IsZero() {
		rec.CloseDate = opp.CloseDate.Format(constants.DateLayout)
	}
	if opp.HasAdvance() {
		advance := opp.PaidInAdvance.InexactFloat64()
		rec.PaidInAdvance = &advance
	}
	if !opp.GrossMargin.Equal(decimal.Zero) {
		margin := opp.GrossMargin.InexactFloat64()
		rec.GrossMargin = &margin
	}
	return rec
}

func parseCloseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	for _, layout := range closeDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("close date %q does not match %s", value, strings.Join(closeDateLayouts, " or "))
}
