// Package amount parses and formats asset and fiat amounts.
//
// Amounts are exact decimals (shopspring/decimal). Crypto assets carry up to
// MaxScale fractional digits; fiat amounts are rounded to FiatScale.
package amount

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// MaxScale and MaxIntDigits match the NUMERIC(36,18) columns in migrations/.
	MaxScale     = 18
	MaxIntDigits = 18
	// FiatScale is the precision fiat amounts are rounded to.
	FiatScale = 2
)

var (
	ErrEmpty      = errors.New("amount is empty")
	ErrMalformed  = errors.New("amount is not a decimal number")
	ErrNegative   = errors.New("amount is negative")
	ErrTooPrecise = errors.New("amount has too many decimal places")
	ErrTooLarge   = errors.New("amount has too many integer digits")
)

// ceiling is the smallest value with MaxIntDigits+1 integer digits.
var ceiling = decimal.New(1, MaxIntDigits)

// Parse converts a decimal string ("1.50", "100") to a Decimal.
//
// Rules:
//   - Empty string is rejected
//   - Negative amounts are rejected
//   - Exponent notation is rejected
//   - More than MaxScale fractional digits is rejected
//   - More than MaxIntDigits integer digits is rejected
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrNegative
	}
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrMalformed
	}
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > MaxScale {
		return decimal.Zero, ErrTooPrecise
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	if d.GreaterThanOrEqual(ceiling) {
		return decimal.Zero, ErrTooLarge
	}
	return d, nil
}

// ParsePositive is Parse plus a strictly-greater-than-zero check.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.New("amount must be positive")
	}
	return d, nil
}

// Fiat computes qty * price rounded half-up to FiatScale.
func Fiat(qty, price decimal.Decimal) decimal.Decimal {
	return qty.Mul(price).Round(FiatScale)
}

// Format renders d without trailing zeros ("1.5", "100").
func Format(d decimal.Decimal) string {
	return d.String()
}
