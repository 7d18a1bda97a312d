package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/strategy"
)

type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateOrdering   State = "ordering"
	StateConfirming State = "confirming"
	StateStopped    State = "stopped"
)

// Exit reasons reported on WorkerStatus.Outcome.
const (
	OutcomeStopped  = "stopped"
	OutcomeDeadline = "deadline"
	OutcomeCanceled = "canceled"
)

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	Asset     string           `json:"asset"`
	State     State            `json:"state"`
	Baseline  *models.Baseline `json:"baseline,omitempty"`
	Orders    int              `json:"orders"`
	Fills     int              `json:"fills"`
	LastError string           `json:"lastError,omitempty"`
	Outcome   string           `json:"outcome,omitempty"`
}

// Worker owns the sell loop for one asset during one session.
type Worker struct {
	asset    models.Asset
	deadline time.Time
	stop     *StopSignal
	deps     Deps
	params   Params
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	baseline *models.Baseline
	orders   int
	fills    int
	lastErr  string
	outcome  string
}

func NewWorker(asset models.Asset, deadline time.Time, stop *StopSignal, deps Deps, params Params) *Worker {
	deps = deps.withDefaults()
	return &Worker{
		asset:    asset,
		deadline: deadline,
		stop:     stop,
		deps:     deps,
		params:   params.withDefaults(),
		logger:   deps.Logger.With("asset", asset.Symbol),
		state:    StateIdle,
	}
}

func (w *Worker) Asset() models.Asset { return w.asset }

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Baseline returns the captured baseline, or nil before capture.
func (w *Worker) Baseline() *models.Baseline {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.baseline == nil {
		return nil
	}
	b := *w.baseline
	return &b
}

func (w *Worker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := WorkerStatus{
		Asset:     w.asset.Symbol,
		State:     w.state,
		Orders:    w.orders,
		Fills:     w.fills,
		LastError: w.lastErr,
		Outcome:   w.outcome,
	}
	if w.baseline != nil {
		b := *w.baseline
		st.Baseline = &b
	}
	return st
}

// Run captures the baseline and loops until the stop signal, the deadline
// or ctx ends it. It returns nil on every normal exit.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(StateStopped)
	w.logger.Info("worker started", "deadline", w.deadline.Format(time.RFC3339))

	for w.baselineMissing() {
		if reason, done := w.exitReason(ctx); done {
			w.finish(reason)
			return nil
		}
		if err := w.captureBaseline(ctx); err != nil {
			w.recordErr(err)
			w.logger.Warn("baseline capture failed, retrying", "err", err)
			w.pause(ctx)
		}
	}

	for {
		if reason, done := w.exitReason(ctx); done {
			w.finish(reason)
			return nil
		}
		w.iterate(ctx)
		w.pause(ctx)
	}
}

func (w *Worker) exitReason(ctx context.Context) (string, bool) {
	switch {
	case w.stop.IsSet():
		return OutcomeStopped, true
	case ctx.Err() != nil:
		return OutcomeCanceled, true
	case !w.deps.Clock().Before(w.deadline):
		return OutcomeDeadline, true
	}
	return "", false
}

func (w *Worker) finish(reason string) {
	w.mu.Lock()
	w.outcome = reason
	orders, fills := w.orders, w.fills
	w.mu.Unlock()
	w.logger.Info("worker exiting", "reason", reason, "orders", orders, "fills", fills)
}

func (w *Worker) baselineMissing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.baseline == nil
}

// captureBaseline records holdings and value at the first good quote. It
// runs until it succeeds once and is never repeated.
func (w *Worker) captureBaseline(ctx context.Context) error {
	w.setState(StateEvaluating)
	quote, err := w.deps.Broker.Quote(ctx, w.asset.Symbol)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	price := quote.Price()
	if price <= 0 {
		return errors.New("quote has no price")
	}
	holdings, err := w.deps.Broker.Holdings(ctx, w.asset.Symbol)
	if err != nil {
		return fmt.Errorf("holdings: %w", err)
	}

	b := models.Baseline{
		InitialHoldings: holdings,
		InitialPrice:    price,
		InitialValue:    holdings * price,
		CapturedAt:      w.deps.Clock(),
	}
	w.mu.Lock()
	w.baseline = &b
	w.mu.Unlock()

	w.logger.Info("baseline captured", "holdings", holdings, "price", price, "value", b.InitialValue)
	return nil
}

// iterate runs one Evaluating pass and, when the gate opens, one order.
func (w *Worker) iterate(ctx context.Context) {
	w.setState(StateEvaluating)

	quote, err := w.deps.Broker.Quote(ctx, w.asset.Symbol)
	if err != nil {
		w.recordErr(err)
		w.logger.Warn("quote fetch failed, skipping iteration", "err", err)
		return
	}
	holdings, err := w.deps.Broker.Holdings(ctx, w.asset.Symbol)
	if err != nil {
		w.recordErr(err)
		w.logger.Warn("holdings fetch failed, skipping iteration", "err", err)
		return
	}

	price := quote.Price()
	baseline := w.Baseline()
	d := strategy.EvaluateSell(*baseline, price, holdings, w.asset, w.params.Sizing)
	if !d.Proceed {
		w.logger.Debug("sell gate closed",
			"reason", d.Reason, "value", d.CurrentValue, "surplus", d.Surplus)
		return
	}

	value := strategy.OrderValue(d.RoundedQuantity, w.asset.QuantityDecimals, price)
	if err := w.deps.Guard.PreTradeCheck(ctx, value); err != nil {
		w.recordErr(err)
		w.logger.Warn("sell blocked by risk limits", "err", err)
		w.deps.send(fmt.Sprintf("%s sell skipped: %v", w.asset.Symbol, err))
		return
	}

	// Nothing new is submitted once the stop signal has been seen.
	if w.stop.IsSet() {
		return
	}
	w.sell(ctx, d, price)
}

func (w *Worker) sell(ctx context.Context, d strategy.SellDecision, price float64) {
	w.setState(StateOrdering)
	p, err := placeOrder(ctx, w.deps, w.params.ConfirmationDelay, w.logger,
		w.asset, models.SideSell, d.RoundedQuantity, price,
		func() { w.setState(StateConfirming) })
	if err != nil {
		w.recordErr(err)
		w.logger.Warn("sell rejected", "quantity", d.RoundedQuantity, "err", err)
		return
	}

	w.mu.Lock()
	w.orders++
	if p.Status == models.StatusFilled {
		w.fills++
	}
	w.mu.Unlock()

	w.deps.send(fmt.Sprintf("%s sell %s: %s @ %s (value %s, order %s)",
		w.asset.Symbol, p.Status, p.Record.Amount, p.Record.Price, p.Record.Value, p.Order.ID))
}

// pause waits the iteration delay. The stop signal and ctx cut it short.
func (w *Worker) pause(ctx context.Context) {
	t := time.NewTimer(w.params.IterationDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-w.stop.Done():
	case <-ctx.Done():
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) recordErr(err error) {
	w.mu.Lock()
	w.lastErr = err.Error()
	w.mu.Unlock()
}

func (w *Worker) setOutcome(outcome string) {
	w.mu.Lock()
	w.outcome = outcome
	w.mu.Unlock()
}
