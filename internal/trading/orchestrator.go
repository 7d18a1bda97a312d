package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

type Unit string

const (
	UnitSeconds Unit = "seconds"
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
)

func ParseUnit(s string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitSeconds, UnitMinutes, UnitHours:
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

// Span converts n units into a duration. n must be positive.
func (u Unit) Span(n float64) (time.Duration, error) {
	var base time.Duration
	switch u {
	case UnitSeconds:
		base = time.Second
	case UnitMinutes:
		base = time.Minute
	case UnitHours:
		base = time.Hour
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, string(u))
	}
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("duration must be positive, got %g", n)
	}
	return time.Duration(n * float64(base)), nil
}

// Orchestrator runs at most one Session at a time.
type Orchestrator struct {
	catalog *Catalog
	deps    Deps
	params  Params
	logger  *slog.Logger

	mu      sync.Mutex
	current *Session
}

func NewOrchestrator(catalog *Catalog, deps Deps, params Params) *Orchestrator {
	deps = deps.withDefaults()
	return &Orchestrator{
		catalog: catalog,
		deps:    deps,
		params:  params.withDefaults(),
		logger:  deps.Logger.With("component", "orchestrator"),
	}
}

func (o *Orchestrator) Catalog() *Catalog { return o.catalog }

// Start validates the request and launches one worker per asset, staggered
// by the configured delay. It returns without waiting for the launches.
// ctx bounds the whole session and should be process-scoped, not tied to a
// single request.
func (o *Orchestrator) Start(ctx context.Context, symbols []string, duration float64, unit Unit) (*Session, error) {
	span, err := unit.Span(duration)
	if err != nil {
		return nil, err
	}
	assets, err := o.catalog.Resolve(symbols)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil && o.current.Running() {
		return nil, ErrSessionActive
	}

	now := o.deps.Clock()
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		Deadline:  now.Add(span),
		stop:      NewStopSignal(),
		done:      make(chan struct{}),
	}
	for _, a := range assets {
		s.Assets = append(s.Assets, a.Symbol)
	}
	o.current = s

	logger := o.logger.With("session_id", s.ID)
	logger.Info("session starting",
		"assets", strings.Join(s.Assets, ","),
		"deadline", s.Deadline.Format(time.RFC3339))
	o.deps.send(fmt.Sprintf("Trading session started for %s until %s",
		strings.Join(s.Assets, ", "), s.Deadline.UTC().Format(time.RFC3339)))

	go s.launch(ctx, assets, o.deps, o.params, logger)
	return s, nil
}

// Stop sets the stop signal of the running session. It reports whether a
// session was running.
func (o *Orchestrator) Stop() bool {
	s := o.Current()
	if s == nil || !s.Running() {
		return false
	}
	s.Stop()
	return true
}

// Join waits for the current session, if any, to finish.
func (o *Orchestrator) Join(ctx context.Context) error {
	s := o.Current()
	if s == nil {
		return nil
	}
	return s.Wait(ctx)
}

func (o *Orchestrator) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Status returns the snapshot of the latest session, or false if none has
// been started.
func (o *Orchestrator) Status() (SessionStatus, bool) {
	s := o.Current()
	if s == nil {
		return SessionStatus{}, false
	}
	return s.Status(), true
}

// Session is one orchestrated run across a set of assets.
type Session struct {
	ID        string
	Assets    []string
	StartedAt time.Time
	Deadline  time.Time

	stop *StopSignal
	done chan struct{}

	mu      sync.Mutex
	workers []*Worker
	err     error
}

type SessionStatus struct {
	ID        string         `json:"id"`
	Assets    []string       `json:"assets"`
	StartedAt time.Time      `json:"startedAt"`
	Deadline  time.Time      `json:"deadline"`
	Stopped   bool           `json:"stopped"`
	Running   bool           `json:"running"`
	Workers   []WorkerStatus `json:"workers"`
	Error     string         `json:"error,omitempty"`
}

func (s *Session) Stop() { s.stop.Set() }

func (s *Session) Running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done is closed once every worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until every worker has exited and returns their joined
// failures.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Worker(nil), s.workers...)
}

func (s *Session) Status() SessionStatus {
	st := SessionStatus{
		ID:        s.ID,
		Assets:    append([]string(nil), s.Assets...),
		StartedAt: s.StartedAt,
		Deadline:  s.Deadline,
		Stopped:   s.stop.IsSet(),
		Running:   s.Running(),
	}
	for _, w := range s.Workers() {
		st.Workers = append(st.Workers, w.Status())
	}
	if !st.Running {
		s.mu.Lock()
		if s.err != nil {
			st.Error = s.err.Error()
		}
		s.mu.Unlock()
	}
	return st
}

func (s *Session) launch(ctx context.Context, assets []models.Asset, deps Deps, params Params, logger *slog.Logger) {
	var (
		g    errgroup.Group
		errs []error
		emu  sync.Mutex
	)
	workerDeps := deps
	workerDeps.Logger = logger

	for i, a := range assets {
		if i > 0 && !s.staggerWait(ctx, params.Stagger) {
			logger.Info("launch interrupted", "launched", i, "requested", len(assets))
			break
		}
		if s.stop.IsSet() {
			break
		}
		w := NewWorker(a, s.Deadline, s.stop, workerDeps, params)
		s.mu.Lock()
		s.workers = append(s.workers, w)
		s.mu.Unlock()

		g.Go(func() error {
			if err := runContained(ctx, w); err != nil {
				emu.Lock()
				errs = append(errs, err)
				emu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()

	s.mu.Lock()
	s.err = errors.Join(errs...)
	s.mu.Unlock()
	close(s.done)

	logger.Info("session finished", "workers", len(s.Workers()), "failures", len(errs))
	deps.send(fmt.Sprintf("Trading session %s finished", s.ID))
}

// staggerWait sleeps between launches. It returns false when the stop
// signal or ctx ends the wait.
func (s *Session) staggerWait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !s.stop.IsSet() && ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stop.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// runContained runs w and converts a panic into an error recorded on the
// worker. Other workers are unaffected.
func runContained(ctx context.Context, w *Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s panicked: %v", w.asset.Symbol, r)
			w.setState(StateStopped)
			w.recordErr(err)
			w.setOutcome("panic")
			w.logger.Error("worker panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if err := w.Run(ctx); err != nil {
		w.setOutcome("error")
		return fmt.Errorf("worker %s: %w", w.asset.Symbol, err)
	}
	return nil
}
