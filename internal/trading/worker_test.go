package trading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/risk"
)

const waitFor = 2 * time.Second

func startWorker(t *testing.T, w *Worker) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	return done
}

func waitExit(t *testing.T, done <-chan error, within time.Duration) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(within):
		t.Fatal("worker did not exit in time")
	}
}

func TestWorker_BaselineCapturedOnce(t *testing.T) {
	fb := newFakeBroker()
	deps, _ := testDeps(fb)
	stop := NewStopSignal()
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)

	fb.set(func(f *fakeBroker) { f.prices["DOGE"] = 0.5 })
	require.Eventually(t, func() bool { return fb.quoteCount() > 5 }, waitFor, time.Millisecond)

	b := w.Baseline()
	assert.Equal(t, 1.0, b.InitialPrice)
	assert.Equal(t, 10.0, b.InitialHoldings)
	assert.Equal(t, 10.0, b.InitialValue)

	stop.Set()
	waitExit(t, done, waitFor)
	assert.Equal(t, StateStopped, w.State())
	assert.Equal(t, OutcomeStopped, w.Status().Outcome)
}

func TestWorker_SellsSurplusAndRecordsFill(t *testing.T) {
	fb := newFakeBroker()
	deps, l := testDeps(fb)
	stop := NewStopSignal()
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)

	// value 11.5 against a baseline of 10: surplus 1.5 shrinks to 1.125
	fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 11.5 })
	require.Eventually(t, func() bool {
		recs, _ := l.List(context.Background(), 0)
		return len(recs) == 1 && recs[0].Status == models.StatusFilled
	}, waitFor, time.Millisecond)

	// After the fill the surplus is below minimum; no second order.
	time.Sleep(30 * time.Millisecond)
	stop.Set()
	waitExit(t, done, waitFor)

	require.Equal(t, 1, fb.submitCount())
	assert.Equal(t, models.SideSell, fb.submits[0].Side)
	assert.Equal(t, 1.13, fb.submits[0].Quantity)

	recs, err := l.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ord-1", recs[0].ID)
	assert.Equal(t, "sell", recs[0].Type)
	assert.Equal(t, "DOGE", recs[0].Asset)
	assert.Equal(t, "1.13", recs[0].Amount)
	assert.Equal(t, "$1", recs[0].Price)
	assert.Equal(t, "$1.13", recs[0].Value)

	st := w.Status()
	assert.Equal(t, 1, st.Orders)
	assert.Equal(t, 1, st.Fills)
}

func TestWorker_SmallSurplusDoesNotSell(t *testing.T) {
	fb := newFakeBroker()
	deps, l := testDeps(fb)
	stop := NewStopSignal()
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)

	fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 10.5 })
	before := fb.quoteCount()
	require.Eventually(t, func() bool { return fb.quoteCount() > before+3 }, waitFor, time.Millisecond)

	stop.Set()
	waitExit(t, done, waitFor)
	assert.Zero(t, fb.submitCount())
	recs, _ := l.List(context.Background(), 0)
	assert.Empty(t, recs)
}

func TestWorker_StopExitsWithinOneIteration(t *testing.T) {
	fb := newFakeBroker()
	deps, _ := testDeps(fb)
	stop := NewStopSignal()
	params := fastParams()
	params.IterationDelay = 200 * time.Millisecond
	w := NewWorker(testAssets[0], time.Now().Add(time.Hour), stop, deps, params)

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)

	start := time.Now()
	stop.Set()
	// with holdings raised a worker that ignored the signal would sell
	fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 20 })
	waitExit(t, done, params.IterationDelay)

	assert.Less(t, time.Since(start), params.IterationDelay)
	assert.Zero(t, fb.submitCount())
}

func TestWorker_DeadlineReached(t *testing.T) {
	fb := newFakeBroker()
	deps, _ := testDeps(fb)
	w := NewWorker(testAssets[0], time.Now().Add(-time.Second), NewStopSignal(), deps, fastParams())

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, OutcomeDeadline, w.Status().Outcome)
	assert.Zero(t, fb.quoteCount())
	assert.Nil(t, w.Baseline())
}

func TestWorker_BaselineRetriedUntilQuoteSucceeds(t *testing.T) {
	fb := newFakeBroker()
	fb.quoteErr = errors.New("gateway timeout")
	deps, _ := testDeps(fb)
	stop := NewStopSignal()
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return fb.quoteCount() > 2 }, waitFor, time.Millisecond)
	assert.Nil(t, w.Baseline())
	assert.Contains(t, w.Status().LastError, "gateway timeout")

	fb.set(func(f *fakeBroker) { f.quoteErr = nil; f.prices["DOGE"] = 2 })
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)
	assert.Equal(t, 2.0, w.Baseline().InitialPrice)

	stop.Set()
	waitExit(t, done, waitFor)
}

func TestWorker_QuoteErrorSkipsIteration(t *testing.T) {
	fb := newFakeBroker()
	deps, _ := testDeps(fb)
	stop := NewStopSignal()
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)

	fb.set(func(f *fakeBroker) {
		f.quoteErr = errors.New("rate limited")
		f.holdings["DOGE"] = 20
	})
	before := fb.quoteCount()
	require.Eventually(t, func() bool { return fb.quoteCount() > before+3 }, waitFor, time.Millisecond)

	stop.Set()
	waitExit(t, done, waitFor)
	assert.Zero(t, fb.submitCount())
	assert.Contains(t, w.Status().LastError, "rate limited")
}

func TestWorker_RejectedOrderWritesNothing(t *testing.T) {
	for name, setup := range map[string]func(f *fakeBroker){
		"submit error": func(f *fakeBroker) { f.submitErr = errors.New("insufficient buying power") },
		"missing id":   func(f *fakeBroker) { f.noID = true },
	} {
		t.Run(name, func(t *testing.T) {
			fb := newFakeBroker()
			setup(fb)
			deps, l := testDeps(fb)
			stop := NewStopSignal()
			w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

			done := startWorker(t, w)
			require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)
			fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 11.5 })

			require.Eventually(t, func() bool {
				return w.Status().LastError != ""
			}, waitFor, time.Millisecond)
			stop.Set()
			waitExit(t, done, waitFor)

			recs, err := l.List(context.Background(), 0)
			require.NoError(t, err)
			assert.Empty(t, recs)
			assert.Zero(t, fb.pollCount())
			assert.Contains(t, w.Status().LastError, "order rejected")
		})
	}
}

func TestWorker_UnfilledOrderRecordedFailed(t *testing.T) {
	fb := newFakeBroker()
	fb.fill = false
	deps, l := testDeps(fb)
	stop := NewStopSignal()
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)
	fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 11.5 })

	require.Eventually(t, func() bool {
		rec, ok, _ := l.Get(context.Background(), "ord-1")
		return ok && rec.Status == models.StatusFailed
	}, waitFor, time.Millisecond)
	stop.Set()
	waitExit(t, done, waitFor)

	assert.Equal(t, 0, w.Status().Fills)
	assert.GreaterOrEqual(t, w.Status().Orders, 1)
}

func TestWorker_StopDoesNotAbandonConfirmation(t *testing.T) {
	fb := newFakeBroker()
	deps, l := testDeps(fb)
	stop := NewStopSignal()
	params := fastParams()
	params.ConfirmationDelay = 100 * time.Millisecond
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, params)

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)
	fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 11.5 })

	require.Eventually(t, func() bool { return w.State() == StateConfirming }, waitFor, time.Millisecond)
	stop.Set()

	rec, ok, err := l.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, rec.Status)

	waitExit(t, done, waitFor)
	assert.Equal(t, 1, fb.pollCount())
	rec, _, _ = l.Get(context.Background(), "ord-1")
	assert.Equal(t, models.StatusFilled, rec.Status)
	assert.Equal(t, 1, fb.submitCount())
}

func TestWorker_CanceledContextStillPolls(t *testing.T) {
	fb := newFakeBroker()
	deps, l := testDeps(fb)
	params := fastParams()
	params.ConfirmationDelay = time.Hour
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), NewStopSignal(), deps, params)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)
	fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 11.5 })
	require.Eventually(t, func() bool { return w.State() == StateConfirming }, waitFor, time.Millisecond)
	cancel()

	waitExit(t, done, waitFor)
	assert.Equal(t, 1, fb.pollCount())
	rec, _, _ := l.Get(context.Background(), "ord-1")
	assert.Equal(t, models.StatusFilled, rec.Status)
	assert.Equal(t, OutcomeCanceled, w.Status().Outcome)
}

type fixedCounter int

func (c fixedCounter) CountToday(context.Context) (int, error) { return int(c), nil }

func TestWorker_RiskLimitBlocksSell(t *testing.T) {
	fb := newFakeBroker()
	deps, l := testDeps(fb)
	notifier := &recordingNotifier{}
	deps.Notify = notifier
	deps.Guard = risk.NewGuardian(risk.Limits{MaxDailyTrades: 3}, fixedCounter(3))
	stop := NewStopSignal()
	w := NewWorker(testAssets[0], time.Now().Add(time.Minute), stop, deps, fastParams())

	done := startWorker(t, w)
	require.Eventually(t, func() bool { return w.Baseline() != nil }, waitFor, time.Millisecond)
	fb.set(func(f *fakeBroker) { f.holdings["DOGE"] = 11.5 })

	require.Eventually(t, func() bool { return notifier.count() > 0 }, waitFor, time.Millisecond)
	stop.Set()
	waitExit(t, done, waitFor)

	assert.Zero(t, fb.submitCount())
	recs, _ := l.List(context.Background(), ledger.DefaultFailedWindow)
	assert.Empty(t, recs)
	assert.Contains(t, w.Status().LastError, "daily limit")
}
