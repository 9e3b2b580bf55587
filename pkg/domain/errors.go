package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidOpportunity is the root of every per-opportunity input error. An
// opportunity failing with it is excluded from the run; the run continues.
var ErrInvalidOpportunity = errors.New("invalid opportunity")

var (
	ErrMissingID             = fmt.Errorf("%w: missing id", ErrInvalidOpportunity)
	ErrDuplicateID           = fmt.Errorf("%w: duplicate id", ErrInvalidOpportunity)
	ErrMissingCloseDate      = fmt.Errorf("%w: missing close date", ErrInvalidOpportunity)
	ErrNonPositiveAmount     = fmt.Errorf("%w: amount must be positive", ErrInvalidOpportunity)
	ErrProbabilityOutOfRange = fmt.Errorf("%w: probability outside [0, 1]", ErrInvalidOpportunity)
	ErrNegativeLeadTime      = fmt.Errorf("%w: negative lead time", ErrInvalidOpportunity)
	ErrNegativeAdvance       = fmt.Errorf("%w: negative paid in advance", ErrInvalidOpportunity)
	ErrAdvanceExceedsAmount  = fmt.Errorf("%w: paid in advance exceeds amount", ErrInvalidOpportunity)
	ErrSubCentPrecision      = fmt.Errorf("%w: amount finer than one cent", ErrInvalidOpportunity)
	ErrUnknownBusinessUnit   = fmt.Errorf("%w: unknown business unit", ErrInvalidOpportunity)
)

// ErrDegenerateSchedule marks an otherwise valid opportunity that produced no
// billing events.
var ErrDegenerateSchedule = errors.New("degenerate schedule")

// ErrConfirmedOpportunity is returned when a fully confirmed opportunity
// (probability 1.0) reaches event generation.
var ErrConfirmedOpportunity = errors.New("confirmed opportunity is not forecast")
