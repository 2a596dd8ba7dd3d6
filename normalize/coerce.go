package normalize

import (
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
)

// Numeric cells with exponents outside this range are treated as unparsable.
const (
	minExponent = -20
	maxExponent = 18
)

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// dateLayouts are tried in order. Ambiguous numeric dates are read month first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"01-02-2006",
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"02-Jan-2006",
}

// priceReplacer strips currency symbols and thousands separators.
var priceReplacer = strings.NewReplacer(",", "", "₹", "", "$", "", "£", "", "€", "", "Rs.", "", "INR", "")

// Date parses a date permissively, returning nil for empty or unparsable values. The
// known layouts are tried first, then dateparse, reading ambiguous dates month first.
// The time of day is discarded.
func Date(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return dateOnly(t)
	}
	t, ok := parseAnyDate(s)
	if !ok {
		return nil
	}
	return dateOnly(t)
}

// parseAnyDate parses s with dateparse, treating a panic as unparsable.
func parseAnyDate(s string) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dateOnly(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// Quantity returns the integer part of s, or zero unless s holds a number within the
// int64 range.
func Quantity(s string) int64 {
	i, ok := parseInt(s)
	if !ok {
		return 0
	}
	return i
}

// Price returns s as a decimal rounded to two places, or zero if s is missing or
// unparsable.
func Price(s string) decimal.Decimal {
	d, ok := parseDecimal(priceReplacer.Replace(s))
	if !ok {
		return decimal.Zero
	}
	return d.Round(2)
}

// Bool parses common spreadsheet truth values, returning nil when s is not one of them.
func Bool(s string) *bool {
	var b bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1", "1.0":
		b = true
	case "false", "f", "no", "n", "0", "0.0":
		b = false
	default:
		return nil
	}
	return &b
}

// parseDecimal parses a trimmed decimal string. Values with an exponent outside
// [minExponent, maxExponent] are rejected.
func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if exp := d.Exponent(); exp < minExponent || exp > maxExponent {
		return decimal.Zero, false
	}
	return d, true
}

// parseInt returns the integer part of a decimal string, rejecting values outside
// the int64 range.
func parseInt(s string) (int64, bool) {
	d, ok := parseDecimal(s)
	if !ok {
		return 0, false
	}
	d = d.Truncate(0)
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		return 0, false
	}
	return d.IntPart(), true
}
