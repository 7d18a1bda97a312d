// Package ledger records submitted orders and their resolved status. A
// Ledger is shared by every asset worker and serializes writes per process.
package ledger

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

// DefaultFailedWindow bounds how long failed trades stay visible in List.
const DefaultFailedWindow = 10 * time.Minute

var ErrMissingID = errors.New("trade record has no id")

type Ledger struct {
	mu     sync.Mutex
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Ledger)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Upsert inserts rec, or when a record with the same id exists, updates only
// its status. The read-modify-write runs under the ledger lock.
func (l *Ledger) Upsert(ctx context.Context, rec models.TradeRecord) error {
	if rec.ID == "" {
		return ErrMissingID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok, err := l.store.Find(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("find %s: %w", rec.ID, err)
	}
	if ok {
		if existing.Status == rec.Status {
			return nil
		}
		if err := l.store.UpdateStatus(ctx, rec.ID, rec.Status); err != nil {
			return fmt.Errorf("update %s: %w", rec.ID, err)
		}
		l.logger.Debug("ledger status updated", "order_id", rec.ID, "from", existing.Status, "to", rec.Status)
		return nil
	}

	if rec.Time.IsZero() {
		rec.Time = l.now()
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert %s: %w", rec.ID, err)
	}
	l.logger.Debug("ledger record inserted", "order_id", rec.ID, "asset", rec.Asset, "status", rec.Status)
	return nil
}

// Get returns the record stored under id.
func (l *Ledger) Get(ctx context.Context, id string) (models.TradeRecord, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Find(ctx, id)
}

// List returns records most-recent-first. Failed records are kept only while
// they are younger than window; everything else is always returned.
func (l *Ledger) List(ctx context.Context, window time.Duration) ([]models.TradeRecord, error) {
	if window <= 0 {
		window = DefaultFailedWindow
	}
	all, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := l.now().Add(-window)
	out := make([]models.TradeRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		rec := all[i]
		if rec.IsFailed() && !rec.Time.After(cutoff) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ByDay returns every record of the given trading day ("2006-01-02"),
// oldest first.
func (l *Ledger) ByDay(ctx context.Context, day string) ([]models.TradeRecord, error) {
	all, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.TradeRecord, 0)
	for _, rec := range all {
		if TradingDay(rec.Time) == day {
			out = append(out, rec)
		}
	}
	return out, nil
}

// TodaysChange sums filled trades of the trading day: sells add
// amount*price, buys subtract it.
func (l *Ledger) TodaysChange(ctx context.Context) (models.TradeSummary, error) {
	all, err := l.snapshot(ctx)
	if err != nil {
		return models.TradeSummary{}, err
	}

	day := TradingDay(l.now())
	sum := models.TradeSummary{TradingDay: day}
	for _, rec := range all {
		if rec.Status != models.StatusFilled || TradingDay(rec.Time) != day {
			continue
		}
		amount, err := strategy.ParseCurrency(rec.Amount)
		if err != nil {
			l.logger.Warn("skipping trade with unreadable amount", "order_id", rec.ID, "err", err)
			continue
		}
		price, err := strategy.ParseCurrency(rec.Price)
		if err != nil {
			l.logger.Warn("skipping trade with unreadable price", "order_id", rec.ID, "err", err)
			continue
		}
		gain := amount * price
		switch rec.Type {
		case string(models.SideSell):
			sum.Change += gain
			sum.FilledSells++
		case string(models.SideBuy):
			sum.Change -= gain
			sum.FilledBuys++
		}
		t := rec.Time
		if sum.LastTrade == nil || t.After(*sum.LastTrade) {
			sum.LastTrade = &t
		}
	}
	return sum, nil
}

// CountToday counts the records written during the current trading day.
func (l *Ledger) CountToday(ctx context.Context) (int, error) {
	all, err := l.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	day := TradingDay(l.now())
	n := 0
	for _, rec := range all {
		if TradingDay(rec.Time) == day {
			n++
		}
	}
	return n, nil
}

// Ping checks the backing store when it supports it.
func (l *Ledger) Ping(ctx context.Context) error {
	if p, ok := l.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Close()
}

func (l *Ledger) snapshot(ctx context.Context) ([]models.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all, err := l.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return all, nil
}
