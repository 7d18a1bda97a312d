package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/trading"
)

// SummarySource supplies the day's filled-trade aggregate. ledger.Ledger
// satisfies it.
type SummarySource interface {
	TodaysChange(ctx context.Context) (models.TradeSummary, error)
}

// SessionStatusProvider returns the latest session snapshot, or false when
// no session has been started.
type SessionStatusProvider func() (trading.SessionStatus, bool)

type ReporterConfig struct {
	Interval time.Duration // e.g. 1*time.Hour
	Sessions SessionStatusProvider
	// OnlyWhileTrading suppresses reports when no session is running.
	OnlyWhileTrading bool
}

// Reporter periodically posts the day's trading change as a notification.
type Reporter struct {
	source SummarySource
	notify trading.Notifier
	cfg    ReporterConfig
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewReporter(source SummarySource, notify trading.Notifier, cfg ReporterConfig, logger *slog.Logger) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 1 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		source: source,
		notify: notify,
		cfg:    cfg,
		logger: logger.With("component", "reporter"),
	}
}

func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.logger.Info("reporter already running")
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if _, err := r.ReportNow(ctx); err != nil {
					r.logger.Warn("status report failed", "err", err)
				}
				cancel()
			}
		}
	}()

	r.logger.Info("reporter started", "interval", r.cfg.Interval)
}

func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Info("reporter stopped")
}

func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// ReportNow builds and sends one report outside the schedule. It returns
// the message, or "" when the report was suppressed.
func (r *Reporter) ReportNow(ctx context.Context) (string, error) {
	var session *trading.SessionStatus
	if r.cfg.Sessions != nil {
		if st, ok := r.cfg.Sessions(); ok {
			session = &st
		}
	}
	if r.cfg.OnlyWhileTrading && (session == nil || !session.Running) {
		return "", nil
	}

	sum, err := r.source.TodaysChange(ctx)
	if err != nil {
		return "", fmt.Errorf("todays change: %w", err)
	}

	msg := FormatReport(sum, session)
	if r.notify != nil {
		r.notify.Send(msg)
	}
	return msg, nil
}

// FormatReport renders a status line such as
// "Trading day 2026-03-10: +$1.25 (2 sells, 1 buys, last 18:04 UTC)".
func FormatReport(sum models.TradeSummary, session *trading.SessionStatus) string {
	var b strings.Builder

	sign := "+"
	change := sum.Change
	if change < 0 {
		sign = "-"
		change = -change
	}
	fmt.Fprintf(&b, "Trading day %s: %s$%.2f (%d sells, %d buys",
		sum.TradingDay, sign, change, sum.FilledSells, sum.FilledBuys)
	if sum.LastTrade != nil {
		fmt.Fprintf(&b, ", last %s UTC", sum.LastTrade.UTC().Format("15:04"))
	}
	b.WriteString(")")

	if session != nil {
		state := "finished"
		if session.Running {
			state = "running"
		}
		fmt.Fprintf(&b, " | session %s %s for %s", shortID(session.ID), state, strings.Join(session.Assets, ","))
		if session.Running {
			fmt.Fprintf(&b, " until %s UTC", session.Deadline.UTC().Format("15:04"))
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
