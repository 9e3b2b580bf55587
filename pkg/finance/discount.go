package finance

import (
	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/mathutil"
	"github.com/iwvelando/billing-forecast/pkg/rules"
)

// Discount converts a gross slice into its risk-adjusted net amount:
// gross * probability * penalty, rounded to cents. PIA slices are firm
// pre-payments and are returned unchanged.
func Discount(r rules.BusinessRules, gross, probability decimal.Decimal, stage domain.Stage) decimal.Decimal {
	if stage == domain.StagePIA {
		return gross
	}
	return mathutil.Round(gross.Mul(probability).Mul(r.PenaltyFor(probability)))
}
