package models

import "time"

// Ledger statuses.
const (
	StatusPending = "pending"
	StatusFilled  = "filled"
	StatusFailed  = "failed"
)

// TradeRecord is one ledger row. ID is the brokerage order id. Only Status
// changes after the first insert.
type TradeRecord struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"` // "buy" or "sell"
	Asset  string    `json:"crypto"`
	Amount string    `json:"amount"`
	Price  string    `json:"price"` // "$0.123456"
	Value  string    `json:"value"` // "$12.5"
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// IsFailed reports whether the record resolved to a failed order.
func (t TradeRecord) IsFailed() bool {
	return t.Status == StatusFailed
}

type TradeSummary struct {
	TradingDay  string     `json:"tradingDay"`
	Change      float64    `json:"successfulTradesSum"`
	FilledSells int        `json:"filledSells"`
	FilledBuys  int        `json:"filledBuys"`
	LastTrade   *time.Time `json:"lastTrade,omitempty"`
}
