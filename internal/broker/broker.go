// Package broker defines the market data and order execution ports the
// trading loop depends on, plus a REST brokerage client and an in-process
// paper brokerage.
package broker

import (
	"context"
	"errors"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

var (
	ErrOrderRejected = errors.New("order rejected")
	ErrNotFound      = errors.New("not found")
)

// MarketData is the read-only side of the brokerage.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (models.Quote, error)
	// Holdings returns 0 when the account holds no position in symbol.
	Holdings(ctx context.Context, symbol string) (float64, error)
	// AccountCash returns the buying power as reported, possibly "$"-prefixed.
	AccountCash(ctx context.Context) (string, error)
	Historicals(ctx context.Context, symbol, interval, span string) ([]models.Candle, error)
	Positions(ctx context.Context) ([]models.Position, error)
}

// Executor submits orders and reports their state. Submissions are never
// retried here.
type Executor interface {
	SubmitSell(ctx context.Context, symbol string, quantity float64) (models.Order, error)
	SubmitBuy(ctx context.Context, symbol string, quantity float64) (models.Order, error)
	PollOrder(ctx context.Context, orderID string) (models.Order, error)
}

type Brokerage interface {
	MarketData
	Executor
}

// Historical series vocabularies accepted by Historicals.
var (
	Intervals = []string{"15second", "5minute", "10minute", "hour", "day", "week"}
	Spans     = []string{"hour", "day", "week", "month", "3month", "year", "5year"}
)

func ValidInterval(v string) bool { return contains(Intervals, v) }

func ValidSpan(v string) bool { return contains(Spans, v) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
