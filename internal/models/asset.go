package models

import "time"

// Asset is a tradable instrument and its per-asset trading constants.
type Asset struct {
	Symbol           string  `json:"symbol" yaml:"symbol"`
	MinQuantity      float64 `json:"minQuantity" yaml:"min_quantity"`
	QuantityDecimals int     `json:"quantityDecimals" yaml:"quantity_decimals"`
}

// Baseline is the reference position a worker captures once at start.
type Baseline struct {
	InitialHoldings float64   `json:"initialHoldings"`
	InitialPrice    float64   `json:"initialPrice"`
	InitialValue    float64   `json:"initialValue"`
	CapturedAt      time.Time `json:"capturedAt"`
}

// DefaultAssets is the built-in basket used when no asset file is
// configured. BTC and ETH carry finer quantity precision so their minimums
// survive rounding.
func DefaultAssets() []Asset {
	return []Asset{
		{Symbol: "DOGE", MinQuantity: 1},
		{Symbol: "XLM", MinQuantity: 1},
		{Symbol: "BTC", MinQuantity: 0.000001, QuantityDecimals: 6},
		{Symbol: "SHIB", MinQuantity: 500},
		{Symbol: "XTZ", MinQuantity: 0.01},
		{Symbol: "ETH", MinQuantity: 0.0001, QuantityDecimals: 4},
	}
}
