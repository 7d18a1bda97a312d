package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kjannette/trahn-autotrader/internal/broker"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/strategy"
)

type BuyStatus string

const (
	BuyInsufficientSize  BuyStatus = "insufficient_size"
	BuyInsufficientFunds BuyStatus = "insufficient_funds"
	BuyBlocked           BuyStatus = "blocked"
	BuyRejected          BuyStatus = "rejected"
	BuyFilled            BuyStatus = "filled"
	BuyFailed            BuyStatus = "failed"
)

// BuyResult describes the outcome of one Buy call. Rejections before
// submission are results, not errors.
type BuyResult struct {
	Status   BuyStatus `json:"status"`
	OrderID  string    `json:"orderId,omitempty"`
	Asset    string    `json:"asset"`
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price,omitempty"`
	Cost     float64   `json:"cost,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Buyer runs the synchronous buy path, outside any session.
type Buyer struct {
	catalog *Catalog
	deps    Deps
	params  Params
	logger  *slog.Logger
}

func NewBuyer(catalog *Catalog, deps Deps, params Params) *Buyer {
	deps = deps.withDefaults()
	return &Buyer{
		catalog: catalog,
		deps:    deps,
		params:  params.withDefaults(),
		logger:  deps.Logger.With("component", "buyer"),
	}
}

// Buy checks size and funds, then submits, confirms and records one buy
// order. It blocks for the confirmation delay. Errors are returned only for
// unknown assets and failed cash or quote fetches.
func (b *Buyer) Buy(ctx context.Context, symbol string, quantity float64) (BuyResult, error) {
	asset, ok := b.catalog.Lookup(symbol)
	if !ok {
		return BuyResult{}, fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	res := BuyResult{Asset: asset.Symbol, Quantity: quantity}
	logger := b.logger.With("asset", asset.Symbol)

	tol := b.params.Sizing.Tolerance
	if tol == 0 {
		tol = strategy.DefaultTolerance
	}
	qty := strategy.RoundQuantity(quantity, asset.QuantityDecimals)
	if !strategy.IsGreaterThan(quantity, asset.MinQuantity, tol) || qty <= 0 {
		res.Status = BuyInsufficientSize
		res.Message = fmt.Sprintf("quantity %g is below the %s minimum of %g", quantity, asset.Symbol, asset.MinQuantity)
		return res, nil
	}
	res.Quantity = qty

	rawCash, err := b.deps.Broker.AccountCash(ctx)
	if err != nil {
		return res, fmt.Errorf("account cash: %w", err)
	}
	cash, err := strategy.ParseCurrency(rawCash)
	if err != nil {
		return res, fmt.Errorf("account cash: %w", err)
	}
	quote, err := b.deps.Broker.Quote(ctx, asset.Symbol)
	if err != nil {
		return res, fmt.Errorf("quote: %w", err)
	}
	price := quote.Price()
	res.Price = price
	res.Cost = strategy.OrderValue(qty, asset.QuantityDecimals, price)

	if err := strategy.CheckFunds(cash, price, qty, b.params.FundsBuffer); err != nil {
		res.Status = BuyInsufficientFunds
		res.Message = err.Error()
		logger.Info("buy refused", "reason", err)
		return res, nil
	}
	if err := b.deps.Guard.PreTradeCheck(ctx, res.Cost); err != nil {
		res.Status = BuyBlocked
		res.Message = err.Error()
		logger.Warn("buy blocked by risk limits", "err", err)
		return res, nil
	}

	p, err := placeOrder(ctx, b.deps, b.params.ConfirmationDelay, logger,
		asset, models.SideBuy, qty, price, nil)
	if errors.Is(err, broker.ErrOrderRejected) {
		res.Status = BuyRejected
		res.Message = err.Error()
		logger.Warn("buy rejected", "err", err)
		return res, nil
	}
	if err != nil {
		return res, err
	}

	res.OrderID = p.Order.ID
	if p.Status == models.StatusFilled {
		res.Status = BuyFilled
		res.Message = fmt.Sprintf("bought %s %s @ %s", p.Record.Amount, asset.Symbol, p.Record.Price)
	} else {
		res.Status = BuyFailed
		res.Message = "order was not filled at confirmation"
	}
	b.deps.send(fmt.Sprintf("%s buy %s: %s @ %s (order %s)",
		asset.Symbol, p.Status, p.Record.Amount, p.Record.Price, p.Order.ID))
	return res, nil
}
