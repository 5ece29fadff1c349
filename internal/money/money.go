// Package money parses and formats monetary amounts.
//
// Amounts are shopspring/decimal values: addition, subtraction and comparison
// are exact and the coefficient is arbitrary precision, so balances never
// overflow. Binary floating point is never involved, not even for output.
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/payments-engine/internal/model"
)

// Scale is the number of meaningful fractional digits.
const Scale int32 = 4

// plainDecimal matches an optionally signed decimal without exponent.
var plainDecimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)

// Parse reads a plain decimal string, allowing surrounding whitespace.
// Exponent notation is rejected. Digits beyond Scale are accepted only when
// they are zeros.
func Parse(s string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", model.ErrAmountMalformed)
	}

	if !plainDecimal.MatchString(trimmed) {
		return decimal.Zero, fmt.Errorf("%w: %q", model.ErrAmountMalformed, s)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", model.ErrAmountMalformed, s)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d fractional digits",
			model.ErrAmountMalformed, s, Scale)
	}
	return d, nil
}

// ParsePositive is Parse restricted to amounts greater than zero, as carried
// by deposits and withdrawals.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q must be positive", model.ErrAmountMalformed, s)
	}
	return d, nil
}

// Format renders an amount without trailing zeros: 1.5 not 1.5000, 2 not 2.0.
func Format(d decimal.Decimal) string {
	return d.String()
}
