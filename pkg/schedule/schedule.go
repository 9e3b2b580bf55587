// Package schedule derives the dated billing milestones of an opportunity.
package schedule

import (
	"fmt"
	"time"

	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/rules"
)

// Milestone is one dated stage of a schedule.
type Milestone struct {
	Stage domain.Stage
	Date  time.Time
}

// Schedule is an ordered list of milestones with strictly increasing dates.
type Schedule []Milestone

// Stages returns the stage tags in order.
func (s Schedule) Stages() []domain.Stage {
	stages := make([]domain.Stage, len(s))
	for i, m := range s {
		stages[i] = m.Stage
	}
	return stages
}

// DateOf returns the date of stage, if scheduled.
func (s Schedule) DateOf(stage domain.Stage) (time.Time, bool) {
	for _, m := range s {
		if m.Stage == stage {
			return m.Date, true
		}
	}
	return time.Time{}, false
}

// Terminal returns the last milestone. The schedule must not be empty.
func (s Schedule) Terminal() Milestone {
	return s[len(s)-1]
}

// Build computes the milestones for a business unit starting at an already
// adjusted close date. leadTimeWeeks is clamped to the configured minimum.
//
// Four-stage units produce INICIO (or PIA), DR, FAT and SAT. Every other valid
// unit produces SAT, preceded by PIA when an advance payment exists.
func Build(r rules.BusinessRules, bu domain.BusinessUnit, adjustedClose time.Time, leadTimeWeeks int, withAdvance bool) (Schedule, error) {
	if !r.IsValidBU(bu) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownBusinessUnit, bu)
	}

	start := datetime.Date(adjustedClose)
	lead := r.ClampLeadTime(leadTimeWeeks)

	if r.IsFourStage(bu) {
		first := domain.StageINICIO
		if withAdvance {
			first = domain.StagePIA
		}
		dr := datetime.AddDays(start, constants.DROffsetDays)
		fat := datetime.AddWeeks(dr, lead)
		sat := datetime.AddDays(fat, constants.SATOffsetDays)
		return Schedule{
			{Stage: first, Date: start},
			{Stage: domain.StageDR, Date: dr},
			{Stage: domain.StageFAT, Date: fat},
			{Stage: domain.StageSAT, Date: sat},
		}, nil
	}

	sat := Milestone{Stage: domain.StageSAT, Date: datetime.AddWeeks(start, lead)}
	if withAdvance {
		return Schedule{{Stage: domain.StagePIA, Date: start}, sat}, nil
	}
	return Schedule{sat}, nil
}
