// Package trading runs the autonomous control loop: one Worker per asset
// under an Orchestrator session, plus the synchronous Buyer path. Workers
// share a StopSignal and a ledger.Ledger and nothing else.
package trading

import (
	"errors"
	"log/slog"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/broker"
	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/risk"
	"github.com/kjannette/trahn-autotrader/internal/strategy"
)

var (
	ErrUnknownAsset  = errors.New("unknown asset")
	ErrNoAssets      = errors.New("no assets requested")
	ErrInvalidUnit   = errors.New("invalid duration unit")
	ErrSessionActive = errors.New("a trading session is already running")
)

const (
	DefaultIterationDelay    = 5 * time.Second
	DefaultConfirmationDelay = 30 * time.Second
	DefaultStagger           = 3 * time.Second
	DefaultFundsBuffer       = 5.0

	// detachedPollTimeout bounds the confirmation poll once the process
	// context is gone.
	detachedPollTimeout = 5 * time.Second
)

// Notifier receives human-facing messages. notifications.Sender satisfies it.
type Notifier interface {
	Send(msg string)
}

// Notifiers sends every message to each notifier in order.
type Notifiers []Notifier

func (n Notifiers) Send(msg string) {
	for _, x := range n {
		x.Send(msg)
	}
}

// Params are the timing and sizing constants of a session.
type Params struct {
	IterationDelay    time.Duration
	ConfirmationDelay time.Duration
	Stagger           time.Duration
	// FundsBuffer is held back from account cash on buys.
	FundsBuffer float64
	Sizing      strategy.SizingParams
}

func DefaultParams() Params {
	return Params{
		IterationDelay:    DefaultIterationDelay,
		ConfirmationDelay: DefaultConfirmationDelay,
		Stagger:           DefaultStagger,
		FundsBuffer:       DefaultFundsBuffer,
		Sizing:            strategy.DefaultSizing(),
	}
}

// withDefaults fills zero durations. A zero FundsBuffer is kept as zero.
func (p Params) withDefaults() Params {
	if p.IterationDelay <= 0 {
		p.IterationDelay = DefaultIterationDelay
	}
	if p.ConfirmationDelay <= 0 {
		p.ConfirmationDelay = DefaultConfirmationDelay
	}
	if p.Stagger < 0 {
		p.Stagger = 0
	}
	if p.FundsBuffer < 0 {
		p.FundsBuffer = 0
	}
	return p
}

// Deps are the collaborators shared by every worker and the buyer.
type Deps struct {
	Broker broker.Brokerage
	Ledger *ledger.Ledger
	Guard  *risk.Guardian // optional
	Notify Notifier       // optional
	Logger *slog.Logger
	Clock  func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

func (d Deps) send(msg string) {
	if d.Notify != nil {
		d.Notify.Send(msg)
	}
}
