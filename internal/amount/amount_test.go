package amount

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"whole", "100", "100"},
		{"fraction", "1.50", "1.5"},
		{"satoshi", "0.00000001", "0.00000001"},
		{"wei precision", "0.000000000000000001", "0.000000000000000001"},
		{"zero", "0", "0"},
		{"padded", "  42.1 ", "42.1"},
		{"leading zeros", "007.50", "7.5"},
		{"widest", "999999999999999999.999999999999999999", "999999999999999999.999999999999999999"},
		{"zero padded widest", "000999999999999999999", "999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty", "", ErrEmpty},
		{"negative", "-1", ErrNegative},
		{"exponent", "1e5", ErrMalformed},
		{"letters", "abc", ErrMalformed},
		{"two dots", "1.2.3", ErrMalformed},
		{"too precise", "0.0000000000000000001", ErrTooPrecise},
		{"too large", "1000000000000000000", ErrTooLarge},
		{"far too large", "1000000000000000000000000000000", ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}

func TestParsePositive_RejectsZero(t *testing.T) {
	if _, err := ParsePositive("0.0"); err == nil {
		t.Error("Expected zero to be rejected")
	}
	d, err := ParsePositive("0.1")
	if err != nil || !d.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("ParsePositive(0.1) = %s, %v", d, err)
	}
}

func TestFiat_RoundsToCents(t *testing.T) {
	qty := decimal.RequireFromString("0.123456")
	price := decimal.RequireFromString("64250.10")
	got := Fiat(qty, price)
	if got.String() != "7932.06" {
		t.Errorf("Fiat = %s, want 7932.06", got)
	}
}
