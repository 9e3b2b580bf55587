// Package testutil provides common utility functions for testing.
package testutil

import (
	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// OpportunityBuilder builds test opportunities. The zero configuration is the
// reference FCT deal: 100000 closing 2025-01-10, 4 weeks lead time, 60%.
type OpportunityBuilder struct {
	opp domain.Opportunity
}

// NewOpportunity starts a builder for an opportunity with the given id.
func NewOpportunity(id string) *OpportunityBuilder {
	return &OpportunityBuilder{opp: domain.Opportunity{
		ID:            id,
		Name:          id,
		BU:            domain.BUFCT,
		Amount:        decimal.NewFromInt(100000),
		CloseDate:     datetime.MustParseTime(constants.DateLayout, "2025-01-10"),
		LeadTimeWeeks: 4,
		PaymentTerms:  constants.DefaultPaymentTerms,
		Probability:   decimal.RequireFromString("0.60"),
		Client:        "Acme",
	}}
}

func (b *OpportunityBuilder) WithBU(bu domain.BusinessUnit) *OpportunityBuilder {
	b.opp.BU = bu
	return b
}

func (b *OpportunityBuilder) WithAmount(amount string) *OpportunityBuilder {
	b.opp.Amount = decimal.RequireFromString(amount)
	return b
}

// WithCloseDate takes a 2006-01-02 date.
func (b *OpportunityBuilder) WithCloseDate(date string) *OpportunityBuilder {
	b.opp.CloseDate = datetime.MustParseTime(constants.DateLayout, date)
	return b
}

func (b *OpportunityBuilder) WithLeadTime(weeks int) *OpportunityBuilder {
	b.opp.LeadTimeWeeks = weeks
	return b
}

func (b *OpportunityBuilder) WithProbability(p string) *OpportunityBuilder {
	b.opp.Probability = decimal.RequireFromString(p)
	return b
}

func (b *OpportunityBuilder) WithAdvance(amount string) *OpportunityBuilder {
	b.opp.PaidInAdvance = decimal.RequireFromString(amount)
	return b
}

func (b *OpportunityBuilder) WithGrossMargin(amount string) *OpportunityBuilder {
	b.opp.GrossMargin = decimal.RequireFromString(amount)
	return b
}

func (b *OpportunityBuilder) WithCompany(company string) *OpportunityBuilder {
	b.opp.Company = company
	return b
}

// Build returns a copy of the configured opportunity.
func (b *OpportunityBuilder) Build() domain.Opportunity {
	return b.opp
}

// FindEvent finds the event of an opportunity at a stage.
// Returns a pointer into events if found, nil otherwise.
func FindEvent(events []domain.BillingEvent, opportunityID string, stage domain.Stage) *domain.BillingEvent {
	for i := range events {
		if events[i].OpportunityID == opportunityID && events[i].Stage == stage {
			return &events[i]
		}
	}
	return nil
}

// EventsFor returns the events of one opportunity in their original order.
func EventsFor(events []domain.BillingEvent, opportunityID string) []domain.BillingEvent {
	var out []domain.BillingEvent
	for _, ev := range events {
		if ev.OpportunityID == opportunityID {
			out = append(out, ev)
		}
	}
	return out
}

// SumNet adds the net amounts of events.
func SumNet(events []domain.BillingEvent) decimal.Decimal {
	total := decimal.Zero
	for _, ev := range events {
		total = total.Add(ev.NetAmount)
	}
	return total
}

// SumGross adds the gross amounts of events.
func SumGross(events []domain.BillingEvent) decimal.Decimal {
	total := decimal.Zero
	for _, ev := range events {
		total = total.Add(ev.GrossAmount)
	}
	return total
}
