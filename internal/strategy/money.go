package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// DefaultTolerance is the epsilon subtracted from thresholds in
	// IsGreaterThan.
	DefaultTolerance = 1e-9

	DefaultQuantityDecimals = 2
	PriceDecimals           = 6
	ValueDecimals           = 2
)

var ErrEmptyAmount = errors.New("empty currency amount")

// IsGreaterThan reports value > threshold-tol, so a value equal to the
// threshold passes.
func IsGreaterThan(value, threshold, tol float64) bool {
	return value > threshold-tol
}

// RoundQuantity rounds q to the given number of decimals (half away from
// zero). decimals <= 0 uses DefaultQuantityDecimals.
func RoundQuantity(q float64, decimals int) float64 {
	if decimals <= 0 {
		decimals = DefaultQuantityDecimals
	}
	return decimal.NewFromFloat(q).Round(int32(decimals)).InexactFloat64()
}

// RoundPrice rounds p to PriceDecimals.
func RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(PriceDecimals).InexactFloat64()
}

// ParseCurrency parses amounts such as "$1,234.50", "123.45" or " $0.01 ".
func ParseCurrency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// FormatCurrency renders v rounded to decimals with a "$" prefix and no
// trailing zeros, e.g. 12.50 -> "$12.5".
func FormatCurrency(v float64, decimals int) string {
	return "$" + decimal.NewFromFloat(v).Round(int32(decimals)).String()
}

// FormatQuantity renders q rounded to decimals without trailing zeros.
func FormatQuantity(q float64, decimals int) string {
	if decimals <= 0 {
		decimals = DefaultQuantityDecimals
	}
	return decimal.NewFromFloat(q).Round(int32(decimals)).String()
}

// OrderValue is rounded quantity times rounded price, rounded to cents.
func OrderValue(qty float64, decimals int, price float64) float64 {
	q := decimal.NewFromFloat(RoundQuantity(qty, decimals))
	p := decimal.NewFromFloat(RoundPrice(price))
	return q.Mul(p).Round(ValueDecimals).InexactFloat64()
}
