// Package mathutil provides common currency arithmetic helpers on top of
// shopspring/decimal.
package mathutil

import (
	"github.com/shopspring/decimal"

	"github.com/iwvelando/billing-forecast/pkg/constants"
)

var hundred = decimal.NewFromInt(constants.PercentageMultiplier)

// Round rounds a value to the minor currency unit (cents).
func Round(val decimal.Decimal) decimal.Decimal {
	return val.Round(constants.CurrencyScale)
}

// MustDecimal parses a decimal string and panics on error. Intended for
// constants and tests.
func MustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// IsPositive checks if a value is strictly greater than zero.
func IsPositive(val decimal.Decimal) bool {
	return val.GreaterThan(decimal.Zero)
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Max returns the larger of two values
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of two values
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// IsCentPrecise reports whether val has no digits below the minor currency unit.
func IsCentPrecise(val decimal.Decimal) bool {
	return val.Equal(Round(val))
}

// CalculatePercentage calculates what percentage value is of total
func CalculatePercentage(value, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return value.Div(total).Mul(hundred)
}

// Ratio returns value / total, or zero when total is zero.
func Ratio(value, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return value.Div(total)
}

// FromFloat converts a float read from configuration or input files. The
// shortest decimal representation is used, so 0.6 becomes exactly 0.6.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
