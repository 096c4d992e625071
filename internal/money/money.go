// Package money holds the currency and calendar helpers shared by the finance engine.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Scale is the number of decimal places carried by stored amounts.
const Scale int32 = 2

// RateScale is the precision used for ratios such as collection rate.
const RateScale int32 = 4

// Round rounds to two decimal places, halves away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Sum adds the values and rounds the result.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round(total)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Ratio divides num by den at RateScale precision. A zero denominator yields zero.
func Ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, RateScale)
}

// Average divides total by count at Scale precision. A zero count yields zero.
func Average(total decimal.Decimal, count int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(count)), Scale)
}

// ParseAmount parses a user supplied amount. Malformed and non-positive values are
// reported as shared.ErrInvalidAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount required", shared.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", shared.ErrInvalidAmount, raw)
	}
	if err := RequirePositive(d); err != nil {
		return decimal.Zero, err
	}
	return Round(d), nil
}

// RequirePositive rejects amounts that are zero or negative once rounded.
func RequirePositive(d decimal.Decimal) error {
	if !Round(d).IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", shared.ErrInvalidAmount, d.String())
	}
	return nil
}
