package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// Settings is the user-editable form of BusinessRules as it appears in
// configuration files and API payloads. Unset fields keep the base value.
type Settings struct {
	MinLeadTimeWeeks     *int               `yaml:"minLeadTimeWeeks,omitempty" json:"minLeadTimeWeeks,omitempty" mapstructure:"minLeadTimeWeeks"`
	PenaltyFactorDefault *float64           `yaml:"penaltyFactorDefault,omitempty" json:"penaltyFactorDefault,omitempty" mapstructure:"penaltyFactorDefault"`
	PenaltyFactorAt60    *float64           `yaml:"penaltyFactorAt60,omitempty" json:"penaltyFactorAt60,omitempty" mapstructure:"penaltyFactorAt60"`
	StageSplitNoPIA      map[string]float64 `yaml:"stageSplitNoPIA,omitempty" json:"stageSplitNoPIA,omitempty" mapstructure:"stageSplitNoPIA"`
	ValidBUs             []string           `yaml:"validBUs,omitempty" json:"validBUs,omitempty" mapstructure:"validBUs"`
	FourStageBUs         []string           `yaml:"fourStageBUs,omitempty" json:"fourStageBUs,omitempty" mapstructure:"fourStageBUs"`
}

// Apply overlays the settings on base and returns the result. It does not call
// Validate.
func (s Settings) Apply(base BusinessRules) (BusinessRules, error) {
	out := base.Clone()

	if s.MinLeadTimeWeeks != nil {
		out.MinLeadTimeWeeks = *s.MinLeadTimeWeeks
	}
	if s.PenaltyFactorDefault != nil {
		out.PenaltyFactorDefault = decimal.NewFromFloat(*s.PenaltyFactorDefault)
	}
	if s.PenaltyFactorAt60 != nil {
		out.PenaltyFactorAt60 = decimal.NewFromFloat(*s.PenaltyFactorAt60)
	}

	if s.StageSplitNoPIA != nil {
		split := make(map[domain.Stage]decimal.Decimal, len(s.StageSplitNoPIA))
		for name, pct := range s.StageSplitNoPIA {
			stage, err := domain.ParseStage(name)
			if err != nil {
				return BusinessRules{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
			}
			split[stage] = decimal.NewFromFloat(pct)
		}
		out.StageSplitNoPIA = split
	}

	if s.ValidBUs != nil {
		out.ValidBUs = parseBUs(s.ValidBUs)
	}
	if s.FourStageBUs != nil {
		out.FourStageBUs = parseBUs(s.FourStageBUs)
	}

	return out, nil
}

// SettingsFrom renders r in its editable form.
func SettingsFrom(r BusinessRules) Settings {
	minLead := r.MinLeadTimeWeeks
	penaltyDefault := r.PenaltyFactorDefault.InexactFloat64()
	penaltyAt60 := r.PenaltyFactorAt60.InexactFloat64()

	split := make(map[string]float64, len(r.StageSplitNoPIA))
	for stage, pct := range r.StageSplitNoPIA {
		split[string(stage)] = pct.InexactFloat64()
	}

	s := Settings{
		MinLeadTimeWeeks:     &minLead,
		PenaltyFactorDefault: &penaltyDefault,
		PenaltyFactorAt60:    &penaltyAt60,
		StageSplitNoPIA:      split,
	}
	for _, bu := range r.ValidBUs {
		s.ValidBUs = append(s.ValidBUs, string(bu))
	}
	for _, bu := range r.FourStageBUs {
		s.FourStageBUs = append(s.FourStageBUs, string(bu))
	}
	return s
}

func parseBUs(raw []string) []domain.BusinessUnit {
	out := make([]domain.BusinessUnit, 0, len(raw))
	for _, s := range raw {
		if bu := domain.ParseBusinessUnit(s); bu != "" {
			out = append(out, bu)
		}
	}
	return out
}
