// Package datetime provides calendar date utilities used by the billing
// schedule. All values are civil dates: midnight UTC with no time-of-day.
package datetime

import (
	"time"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

const (
	// DateLayout is the calendar date format used for input and output.
	DateLayout = constants.DateLayout

	// MonthLayout is the format of monthly buckets.
	MonthLayout = constants.MonthLayout
)

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseDate parses a DateLayout string into a civil date.
func ParseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Date strips the time-of-day and location from t.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last calendar day of the month containing t.
func EndOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

// AdjustCloseDate collapses a close date that is already in the past onto the
// last day of today's month. Close dates on or after today are returned as
// civil dates unchanged.
func AdjustCloseDate(closeDate, today time.Time) time.Time {
	closeDay := Date(closeDate)
	if closeDay.Before(Date(today)) {
		return EndOfMonth(today)
	}
	return closeDay
}

// AddDays returns the civil date n days after t.
func AddDays(t time.Time, days int) time.Time {
	return Date(t).AddDate(0, 0, days)
}

// AddWeeks returns the civil date n weeks after t.
func AddWeeks(t time.Time, weeks int) time.Time {
	return AddDays(t, weeks*constants.DaysPerWeek)
}

// MonthKey returns the monthly bucket of t, e.g. "2025-03".
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// OffsetMonth returns the string-formatted month offset by the given number of
// months relative to the given month key.
func OffsetMonth(month string, months int) (string, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return month, err
	}
	return t.AddDate(0, months, 0).Format(MonthLayout), nil
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}
