package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

// Segment filters which opportunities enter a run.
type Segment string

const (
	SegmentAll      Segment = constants.SegmentAll
	SegmentPipeline Segment = constants.SegmentPipeline
)

var pipelineCeiling = decimal.RequireFromString(constants.PenaltyProbabilityPivot)

// ParseSegment accepts a segment name regardless of case. An empty string
// selects SegmentAll.
func ParseSegment(s string) (Segment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", constants.SegmentAll:
		return SegmentAll, nil
	case constants.SegmentPipeline:
		return SegmentPipeline, nil
	default:
		return "", fmt.Errorf("expected segment of %s or %s, got %s", SegmentAll, SegmentPipeline, s)
	}
}

// Includes reports whether opp belongs to the segment.
func (s Segment) Includes(opp Opportunity) bool {
	if s == SegmentPipeline {
		return opp.Probability.LessThan(pipelineCeiling)
	}
	return true
}
