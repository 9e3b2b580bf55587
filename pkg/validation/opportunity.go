package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/mathutil"
	"github.com/iwvelando/billing-forecast/pkg/rules"
)

var (
	smallAdvanceLimit = decimal.NewFromInt(100)
	smallAdvanceFloor = decimal.NewFromInt(1000)
	one               = decimal.NewFromInt(1)
)

// ValidateOpportunity checks the input invariants of a normalized opportunity.
// The returned error wraps one of the domain sentinels, all of which wrap
// domain.ErrInvalidOpportunity.
func ValidateOpportunity(r rules.BusinessRules, opp domain.Opportunity) error {
	if strings.TrimSpace(opp.ID) == "" {
		return fmt.Errorf("%w (name %q)", domain.ErrMissingID, opp.Name)
	}
	if opp.CloseDate.IsZero() {
		return fmt.Errorf("%w: %s", domain.ErrMissingCloseDate, opp.ID)
	}
	if !opp.Amount.IsPositive() {
		return fmt.Errorf("%w: %s has amount %s", domain.ErrNonPositiveAmount, opp.ID, opp.Amount)
	}
	if opp.Probability.IsNegative() || opp.Probability.GreaterThan(one) {
		return fmt.Errorf("%w: %s has probability %s", domain.ErrProbabilityOutOfRange, opp.ID, opp.Probability)
	}
	if opp.LeadTimeWeeks < 0 {
		return fmt.Errorf("%w: %s has lead time %d", domain.ErrNegativeLeadTime, opp.ID, opp.LeadTimeWeeks)
	}
	if opp.PaidInAdvance.IsNegative() {
		return fmt.Errorf("%w: %s has paid in advance %s", domain.ErrNegativeAdvance, opp.ID, opp.PaidInAdvance)
	}
	if opp.PaidInAdvance.GreaterThan(opp.Amount) {
		return fmt.Errorf("%w: %s has paid in advance %s over amount %s", domain.ErrAdvanceExceedsAmount, opp.ID, opp.PaidInAdvance, opp.Amount)
	}
	if !mathutil.IsCentPrecise(opp.Amount) || !mathutil.IsCentPrecise(opp.PaidInAdvance) {
		return fmt.Errorf("%w: %s has amount %s and paid in advance %s", domain.ErrSubCentPrecision, opp.ID, opp.Amount, opp.PaidInAdvance)
	}
	if !r.IsValidBU(opp.BU) {
		return fmt.Errorf("%w: %s has business unit %q", domain.ErrUnknownBusinessUnit, opp.ID, opp.BU)
	}
	return nil
}

// DataQualityWarnings returns non-fatal observations about an opportunity that
// a reviewer should look at before trusting its forecast.
func DataQualityWarnings(r rules.BusinessRules, opp domain.Opportunity) []string {
	var warnings []string

	// A tiny absolute advance on a large deal is more likely a percentage that
	// was entered in the wrong column.
	if opp.HasAdvance() && !opp.PaidInAdvance.GreaterThan(smallAdvanceLimit) && opp.Amount.GreaterThan(smallAdvanceFloor) {
		warnings = append(warnings, fmt.Sprintf("Opportunity '%s' paid in advance %s looks like a percentage of amount %s",
			opp.ID, opp.PaidInAdvance, opp.Amount))
	}

	if opp.LeadTimeWeeks < r.MinLeadTimeWeeks {
		warnings = append(warnings, fmt.Sprintf("Opportunity '%s' lead time %d weeks is below the minimum of %d and will be raised",
			opp.ID, opp.LeadTimeWeeks, r.MinLeadTimeWeeks))
	}

	if strings.TrimSpace(opp.PaymentTerms) == "" {
		warnings = append(warnings, fmt.Sprintf("Opportunity '%s' has no payment terms", opp.ID))
	}

	return warnings
}
