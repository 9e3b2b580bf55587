// Package clienthistory stores past projects per client and answers the
// lead time and payment terms a new opportunity of that client should default
// to.
package clienthistory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

// ErrMissingClient is returned when a project is recorded without a client.
var ErrMissingClient = errors.New("client name is required")

var (
	similarLow  = decimal.RequireFromString("0.5")
	similarHigh = decimal.RequireFromString("1.5")
)

// Defaults are the values derived from a client's history.
type Defaults struct {
	// LeadTimeWeeks is zero when no project carries a lead time.
	LeadTimeWeeks int    `json:"leadTimeWeeks"`
	PaymentTerms  string `json:"paymentTerms"`
	Projects      int    `json:"projects"`
}

// Project is one historical project of a client.
type Project struct {
	ClientName    string          `json:"clientName"`
	ProjectName   string          `json:"projectName"`
	BU            string          `json:"bu"`
	Amount        decimal.Decimal `json:"amount"`
	CloseDate     time.Time       `json:"closeDate"`
	LeadTimeWeeks int             `json:"leadTimeWeeks"`
	PaymentTerms  string          `json:"paymentTerms"`
	Probability   decimal.Decimal `json:"probability"`
	PaidInAdvance decimal.Decimal `json:"paidInAdvance"`
}

// Stats summarizes a store.
type Stats struct {
	Clients  int `json:"clients"`
	Projects int `json:"projects"`
}

// Store is a historical client store. Recording a project with the same
// client, name and close date replaces the earlier one.
type Store interface {
	// Lookup returns the defaults of client. When amount is positive the lead
	// time only averages projects within +-50% of it. The bool is false when
	// the history has nothing to offer.
	Lookup(ctx context.Context, client string, amount decimal.Decimal) (Defaults, bool, error)
	Record(ctx context.Context, p Project) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open opens the store selected by backend. The "none" backend returns a nil
// Store and no error.
func Open(logger *zap.Logger, backend, path string) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", constants.ClientHistoryNone:
		return nil, nil
	case constants.ClientHistorySQLite:
		return OpenSQLStore(logger, path)
	case constants.ClientHistoryBolt:
		return OpenBoltStore(logger, path)
	default:
		return nil, fmt.Errorf("unknown client history backend %q", backend)
	}
}

func (p Project) validate() error {
	if strings.TrimSpace(p.ClientName) == "" {
		return fmt.Errorf("%w: project %q", ErrMissingClient, p.ProjectName)
	}
	return nil
}

func similarRange(amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return amount.Mul(similarLow), amount.Mul(similarHigh)
}

func roundWeeks(avg float64) int {
	return int(math.Round(avg))
}

// summarize derives defaults from an in-memory project list.
func summarize(projects []Project, amount decimal.Decimal) (Defaults, bool) {
	if len(projects) == 0 {
		return Defaults{}, false
	}
	d := Defaults{Projects: len(projects)}

	lo, hi := similarRange(amount)
	var sum, n int
	for _, p := range projects {
		if p.LeadTimeWeeks <= 0 {
			continue
		}
		if amount.IsPositive() && (p.Amount.LessThan(lo) || p.Amount.GreaterThan(hi)) {
			continue
		}
		sum += p.LeadTimeWeeks
		n++
	}
	if n > 0 {
		d.LeadTimeWeeks = roundWeeks(float64(sum) / float64(n))
	}

	type termCount struct {
		terms  string
		count  int
		latest time.Time
	}
	counts := make(map[string]*termCount)
	for _, p := range projects {
		if p.PaymentTerms == "" {
			continue
		}
		tc, ok := counts[p.PaymentTerms]
		if !ok {
			tc = &termCount{terms: p.PaymentTerms}
			counts[p.PaymentTerms] = tc
		}
		tc.count++
		if p.CloseDate.After(tc.latest) {
			tc.latest = p.CloseDate
		}
	}
	ranked := make([]*termCount, 0, len(counts))
	for _, tc := range counts {
		ranked = append(ranked, tc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		if !ranked[i].latest.Equal(ranked[j].latest) {
			return ranked[i].latest.After(ranked[j].latest)
		}
		return ranked[i].terms < ranked[j].terms
	})
	if len(ranked) > 0 {
		d.PaymentTerms = ranked[0].terms
	}

	return d, d.LeadTimeWeeks > 0 || d.PaymentTerms != ""
}
