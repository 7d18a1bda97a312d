package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// PaperConfig seeds a Paper brokerage.
type PaperConfig struct {
	InitialCash       float64
	Holdings          map[string]float64
	Prices            map[string]float64
	Seed              int64
	FillProbability   float64 // 0..1, 0 means every order fills
	SlippagePercent   float64 // max adverse slippage applied to fills
	VolatilityPercent float64 // max per-quote random walk step
}

// Paper is an in-process brokerage that simulates quotes and fills. Safe for
// concurrent use by several workers.
type Paper struct {
	mu         sync.Mutex
	rng        *rand.Rand
	cash       float64
	holdings   map[string]float64
	prices     map[string]float64
	orders     map[string]models.Order
	fillProb   float64
	slippage   float64
	volatility float64
	history    map[string][]models.Candle
}

func NewPaper(cfg PaperConfig) *Paper {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Paper{
		rng:        rand.New(rand.NewSource(seed)),
		cash:       cfg.InitialCash,
		holdings:   make(map[string]float64),
		prices:     make(map[string]float64),
		orders:     make(map[string]models.Order),
		fillProb:   cfg.FillProbability,
		slippage:   cfg.SlippagePercent,
		volatility: cfg.VolatilityPercent,
		history:    make(map[string][]models.Candle),
	}
	for k, v := range cfg.Holdings {
		p.holdings[k] = v
	}
	for k, v := range cfg.Prices {
		p.prices[k] = v
	}
	return p
}

// SetPrice overrides the current price of symbol.
func (p *Paper) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *Paper) SetHoldings(symbol string, qty float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdings[symbol] = qty
}

func (p *Paper) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *Paper) Quote(_ context.Context, symbol string) (models.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return models.Quote{}, fmt.Errorf("quote %s: %w", symbol, ErrNotFound)
	}
	if p.volatility > 0 {
		step := (p.rng.Float64()*2 - 1) * p.volatility / 100
		price *= 1 + step
		p.prices[symbol] = price
	}
	now := time.Now()
	p.appendHistory(symbol, price, now)

	spread := price * 0.0005
	return models.Quote{
		Symbol:    symbol,
		Mark:      price,
		Bid:       price - spread,
		Ask:       price + spread,
		Open:      p.history[symbol][0].Open,
		High:      p.high(symbol),
		Low:       p.low(symbol),
		FetchedAt: now,
	}, nil
}

func (p *Paper) appendHistory(symbol string, price float64, at time.Time) {
	const maxPoints = 500
	h := append(p.history[symbol], models.Candle{
		BeginsAt: at, Open: price, Close: price, High: price, Low: price,
	})
	if len(h) > maxPoints {
		h = h[len(h)-maxPoints:]
	}
	p.history[symbol] = h
}

func (p *Paper) high(symbol string) float64 {
	hi := 0.0
	for _, c := range p.history[symbol] {
		if c.High > hi {
			hi = c.High
		}
	}
	return hi
}

func (p *Paper) low(symbol string) float64 {
	h := p.history[symbol]
	if len(h) == 0 {
		return 0
	}
	lo := h[0].Low
	for _, c := range h {
		if c.Low < lo {
			lo = c.Low
		}
	}
	return lo
}

func (p *Paper) Holdings(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[symbol], nil
}

func (p *Paper) AccountCash(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "$" + strconv.FormatFloat(p.cash, 'f', 2, 64), nil
}

func (p *Paper) Positions(_ context.Context) ([]models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Position, 0, len(p.holdings))
	for sym, qty := range p.holdings {
		out = append(out, models.Position{Symbol: sym, Quantity: qty, CostBasis: qty * p.prices[sym]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Historicals returns the quotes the paper brokerage has served so far. The
// interval and span are accepted for interface compatibility.
func (p *Paper) Historicals(_ context.Context, symbol, _, _ string) ([]models.Candle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.history[symbol]
	out := make([]models.Candle, len(h))
	copy(out, h)
	return out, nil
}

func (p *Paper) SubmitSell(_ context.Context, symbol string, quantity float64) (models.Order, error) {
	return p.submit(symbol, models.SideSell, quantity)
}

func (p *Paper) SubmitBuy(_ context.Context, symbol string, quantity float64) (models.Order, error) {
	return p.submit(symbol, models.SideBuy, quantity)
}

func (p *Paper) submit(symbol string, side models.Side, quantity float64) (models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if quantity <= 0 {
		return models.Order{}, fmt.Errorf("%w: quantity must be positive", ErrOrderRejected)
	}
	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return models.Order{}, fmt.Errorf("%w: no market for %s", ErrOrderRejected, symbol)
	}

	slip := 0.0
	if p.slippage > 0 {
		slip = p.rng.Float64() * p.slippage / 100
	}

	var execPrice float64
	switch side {
	case models.SideSell:
		if p.holdings[symbol] < quantity {
			return models.Order{}, fmt.Errorf("%w: insufficient %s: have %.8f, need %.8f",
				ErrOrderRejected, symbol, p.holdings[symbol], quantity)
		}
		execPrice = price * (1 - slip)
	default:
		execPrice = price * (1 + slip)
		if p.cash < quantity*execPrice {
			return models.Order{}, fmt.Errorf("%w: insufficient cash: have %.2f, need %.2f",
				ErrOrderRejected, p.cash, quantity*execPrice)
		}
	}

	order := models.Order{
		ID:          ulid.Make().String(),
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		Price:       execPrice,
		State:       "confirmed",
		SubmittedAt: time.Now(),
	}

	final := order
	if p.fillProb <= 0 || p.rng.Float64() < p.fillProb {
		final.State = models.OrderStateFilled
		if side == models.SideSell {
			p.holdings[symbol] -= quantity
			p.cash += quantity * execPrice
		} else {
			p.holdings[symbol] += quantity
			p.cash -= quantity * execPrice
		}
	} else {
		final.State = "canceled"
	}
	p.orders[order.ID] = final

	return order, nil
}

func (p *Paper) PollOrder(_ context.Context, orderID string) (models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return o, nil
}
