// Package domain defines the opportunity and billing event records shared by
// every stage of the forecast pipeline.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BusinessUnit selects which staging rule set applies to an opportunity.
type BusinessUnit string

const (
	BUICT BusinessUnit = "ICT"
	BUFCT BusinessUnit = "FCT"
	BUIAT BusinessUnit = "IAT"
	BUREP BusinessUnit = "REP"
	BUSWD BusinessUnit = "SWD"
)

// ParseBusinessUnit normalizes a raw business unit label.
func ParseBusinessUnit(s string) BusinessUnit {
	return BusinessUnit(strings.ToUpper(strings.TrimSpace(s)))
}

// Stage is a billing milestone tag.
type Stage string

const (
	StagePIA    Stage = "PIA"
	StageINICIO Stage = "INICIO"
	StageDR     Stage = "DR"
	StageFAT    Stage = "FAT"
	StageSAT    Stage = "SAT"
)

// stageOrder is the canonical milestone order used when sorting events that
// share a date.
var stageOrder = map[Stage]int{
	StagePIA:    0,
	StageINICIO: 1,
	StageDR:     2,
	StageFAT:    3,
	StageSAT:    4,
}

// ParseStage converts a stage label (any case) into a Stage.
func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := stageOrder[stage]; !ok {
		return "", fmt.Errorf("unknown billing stage %q", s)
	}
	return stage, nil
}

// Order returns the position of the stage in the milestone sequence.
func (s Stage) Order() int {
	if o, ok := stageOrder[s]; ok {
		return o
	}
	return len(stageOrder)
}

// BillingMode is the output shape selected once per run.
type BillingMode string

const (
	// ModeContable emits one event per milestone.
	ModeContable BillingMode = "Contable"
	// ModeFinanciera emits a single consolidated event per opportunity.
	ModeFinanciera BillingMode = "Financiera"
)

// ParseBillingMode accepts either mode name regardless of case. An empty string
// selects Contable.
func ParseBillingMode(s string) (BillingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contable":
		return ModeContable, nil
	case "financiera":
		return ModeFinanciera, nil
	default:
		return "", fmt.Errorf("expected billing mode of %s or %s, got %s", ModeContable, ModeFinanciera, s)
	}
}

// Opportunity is a normalized sales opportunity. It is treated as immutable
// once it reaches the engine.
type Opportunity struct {
	ID            string
	Name          string
	BU            BusinessUnit
	Amount        decimal.Decimal
	CloseDate     time.Time
	LeadTimeWeeks int
	PaymentTerms  string
	// Probability is a 0-1 fraction.
	Probability decimal.Decimal
	// PaidInAdvance is zero when the opportunity has no advance payment.
	PaidInAdvance decimal.Decimal
	Client        string
	Region        string
	Company       string
	GrossMargin   decimal.Decimal
}

// HasAdvance reports whether a paid-in-advance amount is present.
func (o Opportunity) HasAdvance() bool {
	return o.PaidInAdvance.GreaterThan(decimal.Zero)
}

// IsConfirmed reports whether the opportunity is fully won and therefore not
// part of the forecast.
func (o Opportunity) IsConfirmed() bool {
	return o.Probability.Equal(decimal.NewFromInt(1))
}

// BillingEvent is a single dated, amount-bearing output of the engine.
type BillingEvent struct {
	OpportunityID    string
	OpportunityName  string
	BU               BusinessUnit
	Client           string
	Company          string
	Stage            Stage
	Date             time.Time
	GrossAmount      decimal.Decimal
	NetAmount        decimal.Decimal
	Mode             BillingMode
	Probability      decimal.Decimal
	LeadTimeWeeks    int
	LeadTimeOriginal int
}
