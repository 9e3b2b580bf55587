// Package events turns a single opportunity into its billing events for the
// selected billing mode.
package events

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/pkg/datetime"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/finance"
	"github.com/iwvelando/billing-forecast/pkg/rules"
	"github.com/iwvelando/billing-forecast/pkg/schedule"
	"github.com/iwvelando/billing-forecast/pkg/validation"
)

// Processor generates billing events. It holds only read-only state and is
// safe for concurrent use.
type Processor struct {
	rules  rules.BusinessRules
	mode   domain.BillingMode
	today  time.Time
	logger *zap.Logger
}

// NewProcessor creates a new event processor for one run. If logger is nil, a
// no-op logger is used.
func NewProcessor(logger *zap.Logger, r rules.BusinessRules, mode domain.BillingMode, today time.Time) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		rules:  r,
		mode:   mode,
		today:  datetime.Date(today),
		logger: logger,
	}
}

// Mode returns the billing mode the processor emits.
func (p *Processor) Mode() domain.BillingMode {
	return p.mode
}

// Process returns the billing events of opp. Input errors wrap
// domain.ErrInvalidOpportunity; an opportunity yielding no events returns
// domain.ErrDegenerateSchedule.
func (p *Processor) Process(opp domain.Opportunity) ([]domain.BillingEvent, error) {
	if opp.IsConfirmed() {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmedOpportunity, opp.ID)
	}
	if err := validation.ValidateOpportunity(p.rules, opp); err != nil {
		return nil, err
	}

	adjusted := datetime.AdjustCloseDate(opp.CloseDate, p.today)
	if !adjusted.Equal(datetime.Date(opp.CloseDate)) {
		p.logger.Debug("close date moved to end of current month",
			zap.String("op", "events.Process"),
			zap.String("opportunity", opp.ID),
			zap.String("closeDate", opp.CloseDate.Format(datetime.DateLayout)),
			zap.String("adjusted", adjusted.Format(datetime.DateLayout)),
		)
	}

	var (
		out []domain.BillingEvent
		err error
	)
	switch p.mode {
	case domain.ModeFinanciera:
		out, err = p.financiera(opp, adjusted)
	case domain.ModeContable:
		out, err = p.contable(opp, adjusted)
	default:
		return nil, fmt.Errorf("unsupported billing mode %q", p.mode)
	}
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrDegenerateSchedule, opp.ID)
	}
	return out, nil
}

// contable emits one event per allocated stage.
func (p *Processor) contable(opp domain.Opportunity, adjusted time.Time) ([]domain.BillingEvent, error) {
	sched, err := schedule.Build(p.rules, opp.BU, adjusted, opp.LeadTimeWeeks, opp.HasAdvance())
	if err != nil {
		return nil, err
	}

	alloc, err := finance.Allocate(p.rules, opp.BU, opp.Amount, opp.PaidInAdvance, sched)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opp.ID, err)
	}

	out := make([]domain.BillingEvent, 0, len(alloc))
	for _, slice := range alloc {
		date, _ := sched.DateOf(slice.Stage)
		out = append(out, p.newEvent(opp, slice.Stage, date, slice.Gross))
	}
	return out, nil
}

// financiera emits a single event for the full amount on the terminal date of
// the schedule computed without an advance payment.
func (p *Processor) financiera(opp domain.Opportunity, adjusted time.Time) ([]domain.BillingEvent, error) {
	sched, err := schedule.Build(p.rules, opp.BU, adjusted, opp.LeadTimeWeeks, false)
	if err != nil {
		return nil, err
	}
	if len(sched) == 0 {
		return nil, nil
	}

	terminal := sched.Terminal()
	return []domain.BillingEvent{p.newEvent(opp, terminal.Stage, terminal.Date, opp.Amount)}, nil
}

func (p *Processor) newEvent(opp domain.Opportunity, stage domain.Stage, date time.Time, gross decimal.Decimal) domain.BillingEvent {
	return domain.BillingEvent{
		OpportunityID:    opp.ID,
		OpportunityName:  opp.Name,
		BU:               opp.BU,
		Client:           opp.Client,
		Company:          opp.Company,
		Stage:            stage,
		Date:             date,
		GrossAmount:      gross,
		NetAmount:        finance.Discount(p.rules, gross, opp.Probability, stage),
		Mode:             p.mode,
		Probability:      opp.Probability,
		LeadTimeWeeks:    p.rules.ClampLeadTime(opp.LeadTimeWeeks),
		LeadTimeOriginal: opp.LeadTimeWeeks,
	}
}
