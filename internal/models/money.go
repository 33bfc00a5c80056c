package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the scale between major and minor currency units (lira and
// kuruş).
const MinorUnits = 2

// ParseAmount converts a positive decimal string in major units with at
// most two fractional digits into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount required: %w", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, ErrInvalidAmount)
	}

	if d.Exponent() < -MinorUnits && !d.Equal(d.Truncate(MinorUnits)) {
		return 0, fmt.Errorf("amount %q supports up to %d decimals: %w", s, MinorUnits, ErrInvalidAmount)
	}

	minor := d.Shift(MinorUnits)
	if !minor.IsPositive() {
		return 0, fmt.Errorf("amount %q must be > 0: %w", s, ErrInvalidAmount)
	}

	if minor.GreaterThan(decimal.NewFromInt(1 << 53)) {
		return 0, fmt.Errorf("amount %q too large: %w", s, ErrInvalidAmount)
	}

	return minor.IntPart(), nil
}

// FormatAmount renders minor units as a major-unit string with two decimals.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -MinorUnits).StringFixed(MinorUnits)
}
