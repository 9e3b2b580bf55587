package forecast

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/internal/aggregate"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// Session keeps the latest run. Every call to Run replaces it with a new
// generation; results of different runs are never merged.
type Session struct {
	engine *Engine
	logger *zap.Logger

	mu         sync.Mutex
	generation uint64
	current    *Run
}

// NewSession creates a session on top of engine.
func NewSession(logger *zap.Logger, engine *Engine) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = NewEngine(logger)
	}
	return &Session{engine: engine, logger: logger}
}

// Run computes a fresh run and makes it current. The run it replaced is
// returned for comparison only, nil on the first run. On error the current run
// is left untouched.
func (s *Session) Run(ctx context.Context, opps []domain.Opportunity, p Params) (current, previous *Run, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.engine.Run(ctx, opps, p)
	if err != nil {
		return nil, nil, err
	}

	s.generation++
	run.Generation = s.generation
	previous, s.current = s.current, run

	if previous != nil && previous.Mode != run.Mode {
		s.logger.Info("billing mode changed, previous results discarded",
			zap.String("op", "forecast.Session.Run"),
			zap.String("from", string(previous.Mode)),
			zap.String("to", string(run.Mode)),
			zap.Uint64("generation", run.Generation),
		)
	}
	return run, previous, nil
}

// Current returns the latest run, nil before the first one.
func (s *Session) Current() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Generation returns the number of completed runs.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Compare contrasts two runs by their net totals. A nil previous run counts
// as empty.
func Compare(current, previous *Run) aggregate.Comparison {
	var cur, prev []domain.BillingEvent
	if current != nil {
		cur = current.Events
	}
	if previous != nil {
		prev = previous.Events
	}
	return aggregate.Compare(cur, prev)
}
