// Package forecast runs the billing forecast for a batch of opportunities and
// collects the events, the aggregated table and the per-opportunity issues
// into a single Run.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iwvelando/billing-forecast/internal/aggregate"
	"github.com/iwvelando/billing-forecast/pkg/adapters"
	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/domain"
	"github.com/iwvelando/billing-forecast/pkg/events"
	"github.com/iwvelando/billing-forecast/pkg/rules"
	"github.com/iwvelando/billing-forecast/pkg/validation"
)

// IssueKind classifies a per-opportunity problem.
type IssueKind string

const (
	// IssueRejected marks an opportunity excluded because of invalid input.
	IssueRejected IssueKind = "rejected"
	// IssueDegenerate marks a valid opportunity that produced no events.
	IssueDegenerate IssueKind = "degenerate"
	// IssueDataQuality is a warning; the opportunity is still forecast.
	IssueDataQuality IssueKind = "data-quality"
)

// Issue is one entry of the run quality report.
type Issue struct {
	OpportunityID string    `json:"opportunityId"`
	Kind          IssueKind `json:"kind"`
	Message       string    `json:"message"`
	Err           error     `json:"-"`
}

// Params are the immutable inputs of one run.
type Params struct {
	Rules   rules.BusinessRules
	Mode    domain.BillingMode
	Segment domain.Segment
	// Today is the reference date for close-date adjustment. Zero means now.
	Today   time.Time
	Workers int
	// Unreadable are input records that never became opportunities. They
	// count towards Summary.In and are reported as rejected.
	Unreadable []Issue
}

// RejectedInputs turns record conversion failures into rejected issues for
// Params.Unreadable.
func RejectedInputs(errs []error) []Issue {
	issues := make([]Issue, 0, len(errs))
	for _, err := range errs {
		issue := Issue{Kind: IssueRejected, Message: err.Error(), Err: err}
		var convErr *adapters.ConversionError
		if errors.As(err, &convErr) {
			issue.OpportunityID = convErr.ID
		}
		issues = append(issues, issue)
	}
	return issues
}

// Summary holds the run-level counts and totals.
type Summary struct {
	In                int             `json:"in"`
	ExcludedConfirmed int             `json:"excludedConfirmed"`
	ExcludedSegment   int             `json:"excludedSegment"`
	Rejected          int             `json:"rejected"`
	Degenerate        int             `json:"degenerate"`
	Processed         int             `json:"processed"`
	EventCount        int             `json:"eventCount"`
	TotalGross        decimal.Decimal `json:"totalGross"`
	TotalNet          decimal.Decimal `json:"totalNet"`
}

// Run is the complete, immutable result of one forecast run.
type Run struct {
	ID         string
	Generation uint64
	Mode       domain.BillingMode
	Segment    domain.Segment
	Today      time.Time
	Rules      rules.BusinessRules
	// Opportunities are the inputs that reached event generation.
	Opportunities []domain.Opportunity
	Events        []domain.BillingEvent
	Table         *aggregate.Table
	Summary       Summary
	Issues        []Issue
}

// IssuesOf returns the issues of a given kind.
func (r *Run) IssuesOf(kind IssueKind) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			out = append(out, issue)
		}
	}
	return out
}

// Engine computes forecast runs. It keeps no state between runs.
type Engine struct {
	logger *zap.Logger
	tracer trace.Tracer
}

// NewEngine creates an engine. If logger is nil, a no-op logger is used.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		tracer: otel.Tracer(constants.TracerName),
	}
}

type outcome struct {
	events []domain.BillingEvent
	err    error
}

// Run forecasts opps with the given parameters. Invalid business rules or an
// unknown billing mode abort the run before any event is produced; every other
// problem is reported per opportunity in Run.Issues.
func (e *Engine) Run(ctx context.Context, opps []domain.Opportunity, p Params) (*Run, error) {
	ctx, span := e.tracer.Start(ctx, "forecast.Run")
	defer span.End()

	if err := p.Rules.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid business rules")
		return nil, fmt.Errorf("forecast run aborted: %w", err)
	}
	if p.Mode != domain.ModeContable && p.Mode != domain.ModeFinanciera {
		return nil, fmt.Errorf("forecast run aborted: unsupported billing mode %q", p.Mode)
	}
	if p.Segment == "" {
		p.Segment = domain.SegmentAll
	}
	if p.Today.IsZero() {
		p.Today = time.Now()
	}
	if p.Workers < 1 {
		p.Workers = 1
	}

	run := &Run{
		ID:      uuid.NewString(),
		Mode:    p.Mode,
		Segment: p.Segment,
		Today:   p.Today,
		Rules:   p.Rules.Clone(),
	}
	run.Summary.In = len(opps) + len(p.Unreadable)
	logger := e.logger.With(zap.String("run", run.ID))

	for _, issue := range p.Unreadable {
		run.Summary.Rejected++
		e.report(logger, run, issue.OpportunityID, IssueRejected, issue.Err)
	}

	candidates := e.selectCandidates(logger, run, opps)

	proc := events.NewProcessor(logger, run.Rules, run.Mode, run.Today)
	results := make([]outcome, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i, opp := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			evs, err := proc.Process(opp)
			results[i] = outcome{events: evs, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("forecast run interrupted: %w", err)
	}

	var forecastable []domain.Opportunity
	for i, opp := range candidates {
		res := results[i]
		if res.err != nil {
			if errors.Is(res.err, domain.ErrDegenerateSchedule) {
				run.Summary.Degenerate++
				forecastable = append(forecastable, opp)
				e.report(logger, run, opp.ID, IssueDegenerate, res.err)
			} else {
				run.Summary.Rejected++
				e.report(logger, run, opp.ID, IssueRejected, res.err)
			}
			continue
		}

		run.Summary.Processed++
		forecastable = append(forecastable, opp)
		run.Events = append(run.Events, res.events...)
		for _, w := range validation.DataQualityWarnings(run.Rules, opp) {
			run.Issues = append(run.Issues, Issue{OpportunityID: opp.ID, Kind: IssueDataQuality, Message: w})
		}
	}

	sortEvents(run.Events)
	run.Opportunities = forecastable
	run.Table = aggregate.Build(run.Events, forecastable)
	for _, w := range run.Table.Warnings {
		logger.Warn(w, zap.String("op", "forecast.Run"))
	}

	run.Summary.EventCount = len(run.Events)
	run.Summary.TotalGross = run.Table.TotalGross
	run.Summary.TotalNet = run.Table.TotalNet

	span.SetAttributes(
		attribute.String("run.id", run.ID),
		attribute.String("run.mode", string(run.Mode)),
		attribute.String("run.segment", string(run.Segment)),
		attribute.Int("run.opportunities.in", run.Summary.In),
		attribute.Int("run.opportunities.processed", run.Summary.Processed),
		attribute.Int("run.opportunities.rejected", run.Summary.Rejected),
		attribute.Int("run.events", run.Summary.EventCount),
	)

	logger.Info("forecast run complete",
		zap.String("op", "forecast.Run"),
		zap.String("mode", string(run.Mode)),
		zap.Int("in", run.Summary.In),
		zap.Int("processed", run.Summary.Processed),
		zap.Int("excludedConfirmed", run.Summary.ExcludedConfirmed),
		zap.Int("rejected", run.Summary.Rejected),
		zap.Int("events", run.Summary.EventCount),
		zap.String("totalNet", run.Summary.TotalNet.StringFixed(constants.CurrencyScale)),
	)
	return run, nil
}

// selectCandidates drops confirmed, out-of-segment and duplicate opportunities.
// The first opportunity with a given id wins.
func (e *Engine) selectCandidates(logger *zap.Logger, run *Run, opps []domain.Opportunity) []domain.Opportunity {
	seen := make(map[string]struct{}, len(opps))
	candidates := make([]domain.Opportunity, 0, len(opps))
	for _, opp := range opps {
		if opp.ID != "" {
			if _, dup := seen[opp.ID]; dup {
				run.Summary.Rejected++
				e.report(logger, run, opp.ID, IssueRejected, fmt.Errorf("%w: %s", domain.ErrDuplicateID, opp.ID))
				continue
			}
			seen[opp.ID] = struct{}{}
		}
		if opp.IsConfirmed() {
			run.Summary.ExcludedConfirmed++
			logger.Debug("skipping confirmed opportunity",
				zap.String("op", "forecast.Run"),
				zap.String("opportunity", opp.ID),
			)
			continue
		}
		if !run.Segment.Includes(opp) {
			run.Summary.ExcludedSegment++
			continue
		}
		candidates = append(candidates, opp)
	}
	return candidates
}

func (e *Engine) report(logger *zap.Logger, run *Run, id string, kind IssueKind, err error) {
	run.Issues = append(run.Issues, Issue{OpportunityID: id, Kind: kind, Message: err.Error(), Err: err})
	logger.Warn("opportunity excluded from forecast",
		zap.String("op", "forecast.Run"),
		zap.String("opportunity", id),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}

// sortEvents orders events by date, then opportunity id, then stage.
func sortEvents(evs []domain.BillingEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.OpportunityID != b.OpportunityID {
			return a.OpportunityID < b.OpportunityID
		}
		return a.Stage.Order() < b.Stage.Order()
	})
}
