package trading

import (
	"sync"
	"sync/atomic"
)

// StopSignal is a level-triggered cancellation flag. Once set it stays set
// until Clear. Done returns a channel that is closed while the signal is
// set, so waits can select on it.
type StopSignal struct {
	set  atomic.Bool
	mu   sync.Mutex
	done chan struct{}
}

func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

func (s *StopSignal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set.Load() {
		return
	}
	s.set.Store(true)
	close(s.done)
}

func (s *StopSignal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set.Load() {
		return
	}
	s.set.Store(false)
	s.done = make(chan struct{})
}

func (s *StopSignal) IsSet() bool {
	return s.set.Load()
}

func (s *StopSignal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
