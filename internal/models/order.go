package models

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStateFilled is the only brokerage state treated as a confirmed fill.
const OrderStateFilled = "filled"

type Order struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	State       string    `json:"state"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func (o Order) Filled() bool {
	return o.State == OrderStateFilled
}
