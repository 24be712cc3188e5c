// Package money parses and formats currency amounts in minor units.
//
// Amounts enter the system as strings exactly as filed. All arithmetic runs
// on int64 minor units (cents) so no floating point touches monetary values.
package money

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var amountPattern = regexp.MustCompile(`^\d{1,15}(\.\d{1,2})?$`)

// ErrInvalidAmount reports an amount string that is not a positive decimal
// with at most two fraction digits.
type ErrInvalidAmount struct {
	Raw string
}

func (e *ErrInvalidAmount) Error() string {
	return fmt.Sprintf("invalid amount format: %q", e.Raw)
}

// ParseMinorUnits converts an amount string such as "50000.00" into minor
// units (5000000). It rejects negatives, zero, and anything that does not
// parse as a plain positive decimal.
func ParseMinorUnits(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if !amountPattern.MatchString(s) {
		return 0, &ErrInvalidAmount{Raw: raw}
	}

	whole, frac, _ := strings.Cut(s, ".")
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, &ErrInvalidAmount{Raw: raw}
	}
	var minor int64
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		minor, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, &ErrInvalidAmount{Raw: raw}
		}
	}

	total := major*100 + minor
	if total <= 0 {
		return 0, &ErrInvalidAmount{Raw: raw}
	}
	return total, nil
}

// FormatMinorUnits renders minor units as a decimal string ("5000000" ->
// "50000.00").
func FormatMinorUnits(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MajorUnits converts minor units to whole major units, truncating cents.
func MajorUnits(v int64) int64 {
	return v / 100
}

// AbsDiff returns the absolute difference between two minor-unit amounts.
func AbsDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
