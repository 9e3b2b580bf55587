// Package finance splits opportunity amounts across billing milestones and
// applies the probability risk discount.
package finance

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/mathutil"
	"github.com/iwvelando/billing-forecast/pkg/rules"
	"github.com/iwvelando/billing-forecast/pkg/schedule"
)

var two = decimal.NewFromInt(2)

// Slice is the gross amount allocated to one stage.
type Slice struct {
	Stage domain.Stage
	Gross decimal.Decimal
}

// Allocation is the per-stage split of one opportunity, in schedule order.
// Zero-amount stages are omitted.
type Allocation []Slice

// Total sums the gross amounts.
func (a Allocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a {
		total = total.Add(s.Gross)
	}
	return total
}

// GrossOf returns the amount allocated to stage.
func (a Allocation) GrossOf(stage domain.Stage) (decimal.Decimal, bool) {
	for _, s := range a {
		if s.Stage == stage {
			return s.Gross, true
		}
	}
	return decimal.Zero, false
}

// Allocate splits amount across the stages of sched so that the slices sum to
// amount exactly. A PIA stage receives advance verbatim; every other slice is
// rounded to cents and the last non-zero stage absorbs the residual. With an
// advance on a four-stage unit SAT keeps its share only up to what the advance
// leaves over, so a fully prepaid deal bills as a single PIA event.
func Allocate(r rules.BusinessRules, bu domain.BusinessUnit, amount, advance decimal.Decimal, sched schedule.Schedule) (Allocation, error) {
	if !mathutil.IsPositive(amount) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNonPositiveAmount, amount)
	}
	if advance.IsNegative() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNegativeAdvance, advance)
	}
	if advance.GreaterThan(amount) {
		return nil, fmt.Errorf("%w: %s > %s", domain.ErrAdvanceExceedsAmount, advance, amount)
	}
	if !mathutil.IsCentPrecise(amount) || !mathutil.IsCentPrecise(advance) {
		return nil, fmt.Errorf("%w: amount %s, paid in advance %s", domain.ErrSubCentPrecision, amount, advance)
	}
	if len(sched) == 0 {
		return nil, domain.ErrDegenerateSchedule
	}

	hasPIA := sched[0].Stage == domain.StagePIA
	if hasPIA != mathutil.IsPositive(advance) {
		return nil, fmt.Errorf("advance payment of %s does not match schedule stages %v", advance, sched.Stages())
	}

	shares := make([]decimal.Decimal, len(sched))
	switch {
	case r.IsFourStage(bu) && !hasPIA:
		for i, m := range sched {
			shares[i] = amount.Mul(r.SplitFraction(m.Stage))
		}
	case r.IsFourStage(bu):
		left := amount.Sub(advance)
		satShare := mathutil.Min(mathutil.Round(amount.Mul(r.SplitFraction(domain.StageSAT))), left)
		remainder := left.Sub(satShare)
		for i, m := range sched {
			switch m.Stage {
			case domain.StagePIA:
				shares[i] = advance
			case domain.StageSAT:
				shares[i] = satShare
			default:
				shares[i] = remainder.Div(two)
			}
		}
	default:
		for i, m := range sched {
			if m.Stage == domain.StagePIA {
				shares[i] = advance
			} else {
				shares[i] = amount.Sub(advance)
			}
		}
	}

	return settle(sched, shares, amount), nil
}

// settle rounds the shares and hands the rounding residual to the last
// non-zero stage.
func settle(sched schedule.Schedule, shares []decimal.Decimal, amount decimal.Decimal) Allocation {
	last := -1
	for i, share := range shares {
		if !share.IsZero() {
			last = i
		}
	}

	alloc := make(Allocation, 0, len(sched))
	assigned := decimal.Zero
	for i, m := range sched {
		if i == last {
			continue
		}
		gross := shares[i]
		if m.Stage != domain.StagePIA {
			gross = mathutil.Round(gross)
		}
		assigned = assigned.Add(gross)
		shares[i] = gross
	}
	if last >= 0 {
		shares[last] = amount.Sub(assigned)
	}

	for i, m := range sched {
		if shares[i].IsZero() {
			continue
		}
		alloc = append(alloc, Slice{Stage: m.Stage, Gross: shares[i]})
	}
	return alloc
}
