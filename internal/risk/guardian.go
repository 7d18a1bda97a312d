// Package risk gates orders against configured limits before submission.
package risk

import (
	"context"
	"errors"
	"fmt"
)

// ErrBlocked wraps every refusal from PreTradeCheck.
var ErrBlocked = errors.New("trade blocked")

// DailyTradeCounter abstracts the trade-counting dependency so Guardian
// can be tested without a ledger.
type DailyTradeCounter interface {
	CountToday(ctx context.Context) (int, error)
}

// Limits holds the per-order thresholds from config.
// A zero value for any field means that check is disabled.
type Limits struct {
	MaxDailyTrades   int
	MaxOrderValueUSD float64
}

func (l Limits) Enabled() bool {
	return l.MaxDailyTrades > 0 || l.MaxOrderValueUSD > 0
}

type Guardian struct {
	limits  Limits
	counter DailyTradeCounter
}

func NewGuardian(limits Limits, counter DailyTradeCounter) *Guardian {
	return &Guardian{limits: limits, counter: counter}
}

func (g *Guardian) Limits() Limits { return g.limits }

// PreTradeCheck validates per-order constraints before submission.
// Returns nil if the order is allowed, an error wrapping ErrBlocked if not.
func (g *Guardian) PreTradeCheck(ctx context.Context, orderValueUSD float64) error {
	if g == nil {
		return nil
	}
	if g.limits.MaxOrderValueUSD > 0 && orderValueUSD > g.limits.MaxOrderValueUSD {
		return fmt.Errorf("%w: order value $%.2f exceeds max $%.2f",
			ErrBlocked, orderValueUSD, g.limits.MaxOrderValueUSD)
	}

	if g.limits.MaxDailyTrades > 0 && g.counter != nil {
		count, err := g.counter.CountToday(ctx)
		if err != nil {
			return fmt.Errorf("%w: unable to verify daily trade count: %v", ErrBlocked, err)
		}
		if count >= g.limits.MaxDailyTrades {
			return fmt.Errorf("%w: daily limit of %d trades reached (%d recorded today)",
				ErrBlocked, g.limits.MaxDailyTrades, count)
		}
	}

	return nil
}
