package strategy

import (
	"errors"
	"fmt"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// SizingParams are the sell-sizing constants. Zero values fall back to the
// defaults.
type SizingParams struct {
	ShrinkThreshold float64 // surplus above which the sell is shrunk (1.0)
	ShrinkFactor    float64 // fraction of surplus sold once shrunk (0.75)
	Tolerance       float64 // IsGreaterThan epsilon (1e-9)
}

func DefaultSizing() SizingParams {
	return SizingParams{
		ShrinkThreshold: 1.0,
		ShrinkFactor:    0.75,
		Tolerance:       DefaultTolerance,
	}
}

func (p SizingParams) withDefaults() SizingParams {
	d := DefaultSizing()
	if p.ShrinkThreshold == 0 {
		p.ShrinkThreshold = d.ShrinkThreshold
	}
	if p.ShrinkFactor == 0 {
		p.ShrinkFactor = d.ShrinkFactor
	}
	if p.Tolerance == 0 {
		p.Tolerance = d.Tolerance
	}
	return p
}

type SellDecision struct {
	CurrentValue    float64 `json:"currentValue"`
	Surplus         float64 `json:"surplus"`
	SellQuantity    float64 `json:"sellQuantity"`
	RoundedQuantity float64 `json:"roundedQuantity"`
	Proceed         bool    `json:"proceed"`
	Reason          string  `json:"reason"`
}

// EvaluateSell decides whether the gain over the baseline is large enough to
// sell, and how much.
func EvaluateSell(b models.Baseline, price, holdings float64, asset models.Asset, p SizingParams) SellDecision {
	p = p.withDefaults()

	d := SellDecision{CurrentValue: price * holdings}
	d.Surplus = d.CurrentValue - b.InitialValue

	if price <= 0 {
		d.Reason = "no price"
		return d
	}

	sizing := d.Surplus
	if IsGreaterThan(sizing, p.ShrinkThreshold, p.Tolerance) {
		sizing *= p.ShrinkFactor
	}
	d.SellQuantity = sizing / price
	d.RoundedQuantity = RoundQuantity(d.SellQuantity, asset.QuantityDecimals)

	switch {
	case !IsGreaterThan(d.CurrentValue, b.InitialValue, p.Tolerance):
		d.Reason = "value not above baseline"
	case !IsGreaterThan(d.SellQuantity, asset.MinQuantity, p.Tolerance):
		d.Reason = fmt.Sprintf("quantity %.8f below minimum %g", d.SellQuantity, asset.MinQuantity)
	case d.RoundedQuantity <= 0:
		d.Reason = "rounded quantity is zero"
	default:
		d.Proceed = true
		d.Reason = "surplus over baseline"
	}
	return d
}

// CheckFunds fails when cash minus buffer cannot cover qty at price.
func CheckFunds(cash, price, qty, buffer float64) error {
	cost := qty * price
	if cash-buffer < cost {
		return fmt.Errorf("%w: cost $%.2f, available $%.2f (buffer $%.2f)",
			ErrInsufficientFunds, cost, cash, buffer)
	}
	return nil
}

// MeetsMinimum reports whether qty clears the asset minimum.
func MeetsMinimum(qty float64, asset models.Asset, tol float64) bool {
	if tol == 0 {
		tol = DefaultTolerance
	}
	return IsGreaterThan(qty, asset.MinQuantity, tol)
}
