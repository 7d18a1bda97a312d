package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/broker"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/strategy"
)

// placement is the result of one submit, wait, poll cycle.
type placement struct {
	Order  models.Order
	Record models.TradeRecord
	Status string // models.StatusFilled or models.StatusFailed
}

// placeOrder submits one order and resolves it. A rejected submission returns
// an error wrapping broker.ErrOrderRejected and writes nothing to the ledger.
// Otherwise the order is recorded pending, waited on for the confirmation
// delay, polled exactly once and recorded filled or failed. Ledger write
// failures are logged; the order is still resolved.
//
// The wait ignores the stop signal. When ctx ends early the poll runs at
// once on a detached context.
func placeOrder(
	ctx context.Context,
	deps Deps,
	confirmDelay time.Duration,
	logger *slog.Logger,
	asset models.Asset,
	side models.Side,
	qty, price float64,
	onConfirming func(),
) (placement, error) {
	submit := deps.Broker.SubmitSell
	if side == models.SideBuy {
		submit = deps.Broker.SubmitBuy
	}

	order, err := submit(ctx, asset.Symbol, qty)
	if err != nil {
		return placement{}, fmt.Errorf("%w: %s %s: %v", broker.ErrOrderRejected, side, asset.Symbol, err)
	}
	if order.ID == "" {
		return placement{}, fmt.Errorf("%w: %s %s: no order id returned", broker.ErrOrderRejected, side, asset.Symbol)
	}
	logger = logger.With("order_id", order.ID, "side", string(side))
	logger.Info("order submitted", "quantity", qty, "price", price)

	rec := models.TradeRecord{
		ID:     order.ID,
		Type:   string(side),
		Asset:  asset.Symbol,
		Amount: strategy.FormatQuantity(qty, asset.QuantityDecimals),
		Price:  strategy.FormatCurrency(price, strategy.PriceDecimals),
		Value:  strategy.FormatCurrency(strategy.OrderValue(qty, asset.QuantityDecimals, price), strategy.ValueDecimals),
		Status: models.StatusPending,
	}
	if err := deps.Ledger.Upsert(ctx, rec); err != nil {
		logger.Error("ledger pending write failed", "err", err)
	}

	if onConfirming != nil {
		onConfirming()
	}
	pollCtx, cancel := awaitConfirmation(ctx, confirmDelay)
	defer cancel()

	rec.Status = models.StatusFailed
	polled, err := deps.Broker.PollOrder(pollCtx, order.ID)
	switch {
	case err != nil:
		logger.Warn("confirmation poll failed", "err", err)
	case polled.Filled():
		rec.Status = models.StatusFilled
	default:
		logger.Info("order not filled", "state", polled.State)
	}

	if err := deps.Ledger.Upsert(pollCtx, rec); err != nil {
		logger.Error("ledger status write failed", "status", rec.Status, "err", err)
	}
	logger.Info("order resolved", "status", rec.Status)

	return placement{Order: order, Record: rec, Status: rec.Status}, nil
}

// awaitConfirmation sleeps for delay and returns the context to poll with.
// The stop signal is not consulted.
func awaitConfirmation(ctx context.Context, delay time.Duration) (context.Context, context.CancelFunc) {
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
	if ctx.Err() != nil {
		return context.WithTimeout(context.WithoutCancel(ctx), detachedPollTimeout)
	}
	return ctx, func() {}
}
