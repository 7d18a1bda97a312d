package models

import "time"

type Quote struct {
	Symbol    string    `json:"symbol"`
	Mark      float64   `json:"markPrice"`
	Bid       float64   `json:"bidPrice"`
	Ask       float64   `json:"askPrice"`
	Open      float64   `json:"openPrice"`
	High      float64   `json:"highPrice"`
	Low       float64   `json:"lowPrice"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Price is the value used for trading decisions: mark, or bid when the
// brokerage does not publish a mark.
func (q Quote) Price() float64 {
	if q.Mark > 0 {
		return q.Mark
	}
	return q.Bid
}

type Candle struct {
	BeginsAt time.Time `json:"beginsAt"`
	Open     float64   `json:"openPrice"`
	Close    float64   `json:"closePrice"`
	High     float64   `json:"highPrice"`
	Low      float64   `json:"lowPrice"`
	Volume   float64   `json:"volume"`
}

type Position struct {
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	CostBasis float64 `json:"costBasis"`
}
