package adapters

import (
	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/domain"
)

// EventRecord is the export form of a BillingEvent: dates as strings and
// amounts as fixed two-decimal strings.
type EventRecord struct {
	OpportunityID    string `json:"opportunityId" yaml:"opportunityId"`
	OpportunityName  string `json:"opportunityName,omitempty" yaml:"opportunityName,omitempty"`
	BU               string `json:"bu" yaml:"bu"`
	Client           string `json:"client,omitempty" yaml:"client,omitempty"`
	Company          string `json:"company,omitempty" yaml:"company,omitempty"`
	Stage            string `json:"stage" yaml:"stage"`
	Date             string `json:"date" yaml:"date"`
	Month            string `json:"month" yaml:"month"`
	GrossAmount      string `json:"grossAmount" yaml:"grossAmount"`
	NetAmount        string `json:"netAmount" yaml:"netAmount"`
	BillingMode      string `json:"billingMode" yaml:"billingMode"`
	Probability      string `json:"probability" yaml:"probability"`
	LeadTimeWeeks    int    `json:"leadTimeWeeks" yaml:"leadTimeWeeks"`
	LeadTimeOriginal int    `json:"leadTimeOriginal" yaml:"leadTimeOriginal"`
}

// EventToRecord converts a BillingEvent for export.
func EventToRecord(ev domain.BillingEvent) EventRecord {
	return EventRecord{
		OpportunityID:    ev.OpportunityID,
		OpportunityName:  ev.OpportunityName,
		BU:               string(ev.BU),
		Client:           ev.Client,
		Company:          ev.Company,
		Stage:            string(ev.Stage),
		Date:             ev.Date.Format(constants.DateLayout),
		Month:            ev.Date.Format(constants.MonthLayout),
		GrossAmount:      ev.GrossAmount.StringFixed(constants.CurrencyScale),
		NetAmount:        ev.NetAmount.StringFixed(constants.CurrencyScale),
		BillingMode:      string(ev.Mode),
		Probability:      ev.Probability.String(),
		LeadTimeWeeks:    ev.LeadTimeWeeks,
		LeadTimeOriginal: ev.LeadTimeOriginal,
	}
}

// EventsToRecords converts a slice of events, preserving order.
func EventsToRecords(events []domain.BillingEvent) []EventRecord {
	if events == nil {
		return nil
	}
	out := make([]EventRecord, 0, len(events))
	for _, ev := range events {
		out = append(out, EventToRecord(ev))
	}
	return out
}
