package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

// fakeBroker is a scripted in-memory brokerage.
type fakeBroker struct {
	mu         sync.Mutex
	prices     map[string]float64
	holdings   map[string]float64
	cash       string
	quoteErr   error
	submitErr  error
	noID       bool
	fill       bool
	panicOn    string
	nextID     int
	quotes     int
	submits    []models.Order
	polls      int
	orders     map[string]models.Order
	cashCalls  int
	submitSeen chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		prices:     map[string]float64{"DOGE": 1.0, "ETH": 2000, "BAD": 1},
		holdings:   map[string]float64{"DOGE": 10, "ETH": 1, "BAD": 1},
		cash:       "$1000.00",
		fill:       true,
		orders:     make(map[string]models.Order),
		submitSeen: make(chan struct{}, 16),
	}
}

func (f *fakeBroker) set(fn func(f *fakeBroker)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBroker) Quote(_ context.Context, symbol string) (models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == symbol {
		panic("quote feed exploded")
	}
	f.quotes++
	if f.quoteErr != nil {
		return models.Quote{}, f.quoteErr
	}
	p := f.prices[symbol]
	return models.Quote{Symbol: symbol, Mark: p, Bid: p, FetchedAt: time.Now()}, nil
}

func (f *fakeBroker) Holdings(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holdings[symbol], nil
}

func (f *fakeBroker) AccountCash(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cashCalls++
	return f.cash, nil
}

func (f *fakeBroker) Historicals(_ context.Context, _, _, _ string) ([]models.Candle, error) {
	return nil, nil
}

func (f *fakeBroker) Positions(_ context.Context) ([]models.Position, error) {
	return nil, nil
}

func (f *fakeBroker) SubmitSell(_ context.Context, symbol string, qty float64) (models.Order, error) {
	return f.submit(symbol, models.SideSell, qty)
}

func (f *fakeBroker) SubmitBuy(_ context.Context, symbol string, qty float64) (models.Order, error) {
	return f.submit(symbol, models.SideBuy, qty)
}

func (f *fakeBroker) submit(symbol string, side models.Side, qty float64) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return models.Order{}, f.submitErr
	}
	f.nextID++
	o := models.Order{
		ID:       fmt.Sprintf("ord-%d", f.nextID),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    f.prices[symbol],
		State:    "confirmed",
	}
	if f.noID {
		o.ID = ""
	}
	f.submits = append(f.submits, o)
	final := o
	if f.fill {
		final.State = models.OrderStateFilled
		if side == models.SideSell {
			f.holdings[symbol] -= qty
		} else {
			f.holdings[symbol] += qty
		}
	} else {
		final.State = "canceled"
	}
	f.orders[o.ID] = final
	select {
	case f.submitSeen <- struct{}{}:
	default:
	}
	return o, nil
}

func (f *fakeBroker) PollOrder(_ context.Context, id string) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	o, ok := f.orders[id]
	if !ok {
		return models.Order{}, errors.New("unknown order")
	}
	return o, nil
}

func (f *fakeBroker) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeBroker) quoteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes
}

func (f *fakeBroker) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Send(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func fastParams() Params {
	p := DefaultParams()
	p.IterationDelay = 5 * time.Millisecond
	p.ConfirmationDelay = 5 * time.Millisecond
	p.Stagger = time.Millisecond
	return p
}

func testDeps(fb *fakeBroker) (Deps, *ledger.Ledger) {
	l := ledger.New(ledger.NewMemoryStore())
	return Deps{Broker: fb, Ledger: l, Notify: &recordingNotifier{}}, l
}

var testAssets = []models.Asset{
	{Symbol: "DOGE", MinQuantity: 1},
	{Symbol: "ETH", MinQuantity: 0.0001, QuantityDecimals: 4},
	{Symbol: "BAD", MinQuantity: 1},
}
