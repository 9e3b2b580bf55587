// Package rules holds the BusinessRules snapshot that parameterizes a forecast
// run.
package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// ErrInvalidRules is fatal for a run: no events are produced.
var ErrInvalidRules = errors.New("invalid business rules")

var (
	hundred       = decimal.NewFromInt(constants.PercentageMultiplier)
	penaltyPivot  = decimal.RequireFromString(constants.PenaltyProbabilityPivot)
	splitStages   = []domain.Stage{domain.StageINICIO, domain.StageDR, domain.StageFAT, domain.StageSAT}
	defaultSplits = map[domain.Stage]int64{
		domain.StageINICIO: 30,
		domain.StageDR:     30,
		domain.StageFAT:    30,
		domain.StageSAT:    10,
	}
)

// BusinessRules is read-only for the duration of a run. Use Clone before
// changing a copy that may be shared.
type BusinessRules struct {
	MinLeadTimeWeeks     int
	PenaltyFactorDefault decimal.Decimal
	PenaltyFactorAt60    decimal.Decimal
	// StageSplitNoPIA holds percentages (30 means 30%) for the four-stage
	// schedule without an advance payment.
	StageSplitNoPIA map[domain.Stage]decimal.Decimal
	ValidBUs        []domain.BusinessUnit
	// FourStageBUs use the INICIO/DR/FAT/SAT schedule. Every other valid BU
	// uses the single SAT (or PIA + SAT) schedule.
	FourStageBUs []domain.BusinessUnit
}

// Default returns the standard rule set.
func Default() BusinessRules {
	split := make(map[domain.Stage]decimal.Decimal, len(defaultSplits))
	for stage, pct := range defaultSplits {
		split[stage] = decimal.NewFromInt(pct)
	}
	return BusinessRules{
		MinLeadTimeWeeks:     constants.DefaultMinLeadTimeWeeks,
		PenaltyFactorDefault: decimal.RequireFromString(constants.DefaultPenaltyFactor),
		PenaltyFactorAt60:    decimal.RequireFromString(constants.DefaultPenaltyFactorAt60),
		StageSplitNoPIA:      split,
		ValidBUs:             []domain.BusinessUnit{domain.BUICT, domain.BUFCT, domain.BUIAT, domain.BUREP, domain.BUSWD},
		FourStageBUs:         []domain.BusinessUnit{domain.BUFCT, domain.BUIAT, domain.BUREP, domain.BUSWD},
	}
}

// Clone returns a deep copy.
func (r BusinessRules) Clone() BusinessRules {
	out := r
	out.StageSplitNoPIA = make(map[domain.Stage]decimal.Decimal, len(r.StageSplitNoPIA))
	for k, v := range r.StageSplitNoPIA {
		out.StageSplitNoPIA[k] = v
	}
	out.ValidBUs = append([]domain.BusinessUnit(nil), r.ValidBUs...)
	out.FourStageBUs = append([]domain.BusinessUnit(nil), r.FourStageBUs...)
	return out
}

// Validate checks every configuration invariant. The returned error wraps
// ErrInvalidRules.
func (r BusinessRules) Validate() error {
	if r.MinLeadTimeWeeks < 1 {
		return fmt.Errorf("%w: min lead time must be at least 1 week, got %d", ErrInvalidRules, r.MinLeadTimeWeeks)
	}
	factors := []struct {
		name  string
		value decimal.Decimal
	}{
		{"penalty_factor_default", r.PenaltyFactorDefault},
		{"penalty_factor_at_60pct", r.PenaltyFactorAt60},
	}
	for _, f := range factors {
		if f.value.IsNegative() || f.value.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: %s must be within [0, 1], got %s", ErrInvalidRules, f.name, f.value)
		}
	}

	if len(r.StageSplitNoPIA) != len(splitStages) {
		return fmt.Errorf("%w: stage split must define exactly %v", ErrInvalidRules, splitStages)
	}
	total := decimal.Zero
	for _, stage := range splitStages {
		pct, ok := r.StageSplitNoPIA[stage]
		if !ok {
			return fmt.Errorf("%w: stage split is missing %s", ErrInvalidRules, stage)
		}
		if pct.IsNegative() {
			return fmt.Errorf("%w: stage split for %s is negative", ErrInvalidRules, stage)
		}
		total = total.Add(pct)
	}
	if !total.Equal(hundred) {
		return fmt.Errorf("%w: stage split sums to %s%%, expected 100%%", ErrInvalidRules, total)
	}

	if len(r.ValidBUs) == 0 {
		return fmt.Errorf("%w: no valid business units configured", ErrInvalidRules)
	}
	for _, bu := range r.FourStageBUs {
		if !r.IsValidBU(bu) {
			return fmt.Errorf("%w: four-stage business unit %s is not a valid business unit", ErrInvalidRules, bu)
		}
	}
	return nil
}

// IsValidBU reports whether bu is accepted by the engine.
func (r BusinessRules) IsValidBU(bu domain.BusinessUnit) bool {
	for _, valid := range r.ValidBUs {
		if valid == bu {
			return true
		}
	}
	return false
}

// IsFourStage reports whether bu follows the INICIO/DR/FAT/SAT schedule.
func (r BusinessRules) IsFourStage(bu domain.BusinessUnit) bool {
	for _, four := range r.FourStageBUs {
		if four == bu {
			return true
		}
	}
	return false
}

// ClampLeadTime raises weeks to the configured minimum.
func (r BusinessRules) ClampLeadTime(weeks int) int {
	if weeks < r.MinLeadTimeWeeks {
		return r.MinLeadTimeWeeks
	}
	return weeks
}

// PenaltyFor returns the penalty factor for a probability. Only an exact 0.60
// selects the 60% factor.
func (r BusinessRules) PenaltyFor(probability decimal.Decimal) decimal.Decimal {
	if probability.Equal(penaltyPivot) {
		return r.PenaltyFactorAt60
	}
	return r.PenaltyFactorDefault
}

// SplitFraction returns the no-PIA share of stage as a 0-1 fraction.
func (r BusinessRules) SplitFraction(stage domain.Stage) decimal.Decimal {
	return r.StageSplitNoPIA[stage].Div(hundred)
}

// SplitStages returns the stages of the four-stage split in schedule order.
func SplitStages() []domain.Stage {
	return append([]domain.Stage(nil), splitStages...)
}

// SortedBUs returns the valid business units in lexical order.
func (r BusinessRules) SortedBUs() []domain.BusinessUnit {
	out := append([]domain.BusinessUnit(nil), r.ValidBUs...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
