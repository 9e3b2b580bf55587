// Package output provides utilities for formatting and displaying forecast results.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/iwvelando/billing-forecast/pkg/constants"
	"github.com/iwvelando/billing-forecast/pkg/format"
)

// Write renders rep in the named output format.
func Write(w io.Writer, outputFormat string, rep Report) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, rep)
	case constants.OutputFormatCSV:
		return CsvFormat(w, rep)
	case constants.OutputFormatJSON:
		return JSONFormat(w, rep)
	case constants.OutputFormatMarkdown:
		return MarkdownFormat(w, rep)
	case constants.OutputFormatHTML:
		return HTMLFormat(w, rep)
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PrettyFormat outputs a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, rep Report) error {
	p := message.NewPrinter(language.English)
	amount := func(s string) string {
		return p.Sprintf("$%.2f", parseAmount(s).InexactFloat64())
	}
	s := rep.Summary

	var b strings.Builder
	fmt.Fprintf(&b, "--- Forecast run %s (%s, segment %s, generation %d) ---\n", rep.RunID, rep.Mode, rep.Segment, rep.Generation)
	p.Fprintf(&b, "Opportunities: %d in, %d processed, %d confirmed excluded, %d outside segment, %d rejected, %d degenerate\n",
		s.In, s.Processed, s.ExcludedConfirmed, s.ExcludedSegment, s.Rejected, s.Degenerate)
	fmt.Fprintf(&b, "Total gross: %s | Total net: %s\n\n", amount(s.TotalGross), amount(s.TotalNet))

	fmt.Fprintf(&b, "Date       | Opportunity | BU  | Stage  | Gross | Net\n")
	fmt.Fprintf(&b, "__________ | ___________ | ___ | ______ | _____ | ___\n")
	for _, ev := range rep.Events {
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s | %s\n",
			ev.Date, ev.OpportunityID, ev.BU, ev.Stage, amount(ev.GrossAmount), amount(ev.NetAmount))
	}

	if len(rep.Table.Cumulative) > 0 {
		fmt.Fprintf(&b, "\nMonth   | Net | Cumulative\n")
		fmt.Fprintf(&b, "_____   | ___ | __________\n")
		for _, c := range rep.Table.Cumulative {
			fmt.Fprintf(&b, "%s | %s | %s\n", c.Month, amount(c.Net), amount(c.Cumulative))
		}
	}

	if len(rep.Table.BUs) > 0 {
		fmt.Fprintf(&b, "\nBU  | Net\n")
		fmt.Fprintf(&b, "___ | ___\n")
		for _, bu := range rep.Table.BUs {
			fmt.Fprintf(&b, "%s | %s\n", bu.Key, amount(bu.Total))
		}
	}

	if rep.Comparison != nil {
		c := rep.Comparison
		fmt.Fprintf(&b, "\nCompared to previous run: %s -> %s (%s%%, %s)\n",
			amount(c.PreviousTotal), amount(c.CurrentTotal), c.PercentageChange, c.Trend)
	}

	if len(rep.Issues) > 0 || len(rep.Table.Warnings) > 0 {
		fmt.Fprintf(&b, "\nIssues:\n")
		for _, issue := range rep.Issues {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", issue.Kind, issue.OpportunityID, issue.Message)
		}
		for _, warning := range rep.Table.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

var csvHeader = []string{
	"date", "month", "opportunity_id", "opportunity_name", "bu", "client", "company",
	"stage", "gross_amount", "net_amount", "billing_mode", "probability", "lead_time_weeks", "lead_time_original",
}

// CsvFormat outputs the billing events in comma-separated value format.
func CsvFormat(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, ev := range rep.Events {
		err := cw.Write([]string{
			ev.Date, ev.Month, ev.OpportunityID, ev.OpportunityName, ev.BU, ev.Client, ev.Company,
			ev.Stage, ev.GrossAmount, ev.NetAmount, ev.BillingMode, ev.Probability,
			fmt.Sprint(ev.LeadTimeWeeks), fmt.Sprint(ev.LeadTimeOriginal),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CsvString returns the CSV rendering as a string.
func CsvString(rep Report) (string, error) {
	var buf bytes.Buffer
	if err := CsvFormat(&buf, rep); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// JSONFormat outputs the indented JSON report.
func JSONFormat(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// MarkdownFormat outputs the report as Markdown with GFM tables.
func MarkdownFormat(w io.Writer, rep Report) error {
	_, err := io.WriteString(w, markdown(rep))
	return err
}

func cur(s string) string {
	return format.Currency(parseAmount(s))
}

func markdown(rep Report) string {
	var b strings.Builder
	s := rep.Summary

	fmt.Fprintf(&b, "# Billing forecast (%s)\n\n", rep.Mode)
	fmt.Fprintf(&b, "Run `%s`, generation %d, segment %s, reference date %s.\n\n", rep.RunID, rep.Generation, rep.Segment, rep.Today)

	b.WriteString("## Summary\n\n| Metric | Value |\n|---|---:|\n")
	rows := []struct {
		label string
		value string
	}{
		{"Opportunities in", fmt.Sprint(s.In)},
		{"Processed", fmt.Sprint(s.Processed)},
		{"Excluded (confirmed)", fmt.Sprint(s.ExcludedConfirmed)},
		{"Excluded (segment)", fmt.Sprint(s.ExcludedSegment)},
		{"Rejected", fmt.Sprint(s.Rejected)},
		{"Degenerate", fmt.Sprint(s.Degenerate)},
		{"Billing events", fmt.Sprint(s.EventCount)},
		{"Total gross", cur(s.TotalGross)},
		{"Total net", cur(s.TotalNet)},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", r.label, r.value)
	}

	t := rep.Table
	if len(t.Rows) > 0 {
		b.WriteString("\n## Monthly forecast\n\n| Opportunity | BU |")
		for _, m := range t.Months {
			fmt.Fprintf(&b, " %s |", m)
		}
		b.WriteString(" Total |\n|---|---|")
		for range t.Months {
			b.WriteString("---:|")
		}
		b.WriteString("---:|\n")
		for _, r := range t.Rows {
			fmt.Fprintf(&b, "| %s | %s |", r.OpportunityID, r.BU)
			for _, m := range t.Months {
				fmt.Fprintf(&b, " %s |", monthCell(r.Months, m))
			}
			fmt.Fprintf(&b, " %s |\n", cur(r.Total))
		}
		b.WriteString("| **Total** | |")
		for _, m := range t.Months {
			fmt.Fprintf(&b, " %s |", monthCell(t.MonthTotals, m))
		}
		fmt.Fprintf(&b, " %s |\n", cur(t.TotalNet))

		b.WriteString("\n## Cumulative\n\n| Month | Net | Cumulative |\n|---|---:|---:|\n")
		for _, c := range t.Cumulative {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", c.Month, cur(c.Net), cur(c.Cumulative))
		}
	}

	r := rep.Risk
	b.WriteString("\n## Risk\n\n| Bucket | Events | Net |\n|---|---:|---:|\n")
	fmt.Fprintf(&b, "| High (< 30%%) | %d | %s |\n", r.HighRisk.Count, cur(r.HighRisk.Net))
	fmt.Fprintf(&b, "| Medium (30%% - 70%%) | %d | %s |\n", r.MediumRisk.Count, cur(r.MediumRisk.Net))
	fmt.Fprintf(&b, "| Low (>= 70%%) | %d | %s |\n", r.LowRisk.Count, cur(r.LowRisk.Net))
	bus := make([]string, 0, len(r.BUDistribution))
	for bu := range r.BUDistribution {
		bus = append(bus, bu)
	}
	sort.Strings(bus)
	if len(bus) > 0 {
		b.WriteString("\n| BU | Net |\n|---|---:|\n")
		for _, bu := range bus {
			fmt.Fprintf(&b, "| %s | %s |\n", bu, cur(r.BUDistribution[bu]))
		}
	}
	fmt.Fprintf(&b, "\nLargest BU share: %s", format.Percent(parseAmount(r.MaxBUConcentration)))
	if r.Concentrated {
		b.WriteString(" (concentrated)")
	}
	b.WriteString("\n")

	if len(rep.CostOfSale) > 0 {
		b.WriteString("\n## Cost of sale\n\n| Opportunity | BU | Month | Amount | Gross margin | Cost |\n|---|---|---|---:|---:|---:|\n")
		for _, c := range rep.CostOfSale {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				c.OpportunityID, c.BU, c.Month, cur(c.Amount), cur(c.GrossMargin), cur(c.Cost))
		}
	}

	if c := rep.Comparison; c != nil {
		b.WriteString("\n## Comparison with previous run\n\n")
		fmt.Fprintf(&b, "%s -> %s, difference %s (%s%%), trend **%s**.\n",
			cur(c.PreviousTotal), cur(c.CurrentTotal), cur(c.Difference), c.PercentageChange, c.Trend)
	}

	if len(rep.Issues) > 0 || len(t.Warnings) > 0 {
		b.WriteString("\n## Issues\n\n")
		for _, issue := range rep.Issues {
			fmt.Fprintf(&b, "- **%s** %s: %s\n", issue.Kind, issue.OpportunityID, issue.Message)
		}
		for _, warning := range t.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
	}
	return b.String()
}

func monthCell(months map[string]string, month string) string {
	v, ok := months[month]
	if !ok {
		return "-"
	}
	return cur(v)
}

// HTMLFormat outputs a standalone HTML page rendered from the Markdown report.
func HTMLFormat(w io.Writer, rep Report) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown(rep)), &body); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	_, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>Billing forecast %s</title>\n</head>\n<body>\n%s</body>\n</html>\n",
		rep.RunID, body.String())
	return err
}
