package clienthistory

import (
	"context"
	"fmt"

	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// ProjectFromOpportunity converts a won opportunity into a history entry.
func ProjectFromOpportunity(opp domain.Opportunity) Project {
	return Project{
		ClientName:    opp.Client,
		ProjectName:   opp.Name,
		BU:            string(opp.BU),
		Amount:        opp.Amount,
		CloseDate:     opp.CloseDate,
		LeadTimeWeeks: opp.LeadTimeWeeks,
		PaymentTerms:  opp.PaymentTerms,
		Probability:   opp.Probability,
		PaidInAdvance: opp.PaidInAdvance,
	}
}

// RecordConfirmed stores every confirmed opportunity of opps and returns how
// many were recorded. Opportunities without a client are skipped.
func RecordConfirmed(ctx context.Context, store Store, opps []domain.Opportunity) (int, error) {
	recorded := 0
	for _, opp := range opps {
		if !opp.IsConfirmed() || opp.Client == "" {
			continue
		}
		if err := store.Record(ctx, ProjectFromOpportunity(opp)); err != nil {
			return recorded, fmt.Errorf("failed to record %s: %w", opp.ID, err)
		}
		recorded++
	}
	return recorded, nil
}
