// Package rate turns cumulative OS counters into per-second rates.
package rate

import (
	"sync"
	"time"
)

// MinElapsed is the floor applied to the time between two samples.
const MinElapsed = time.Millisecond

type state struct {
	value uint64
	at    time.Time
}

// Tracker keeps the last raw reading per counter.
type Tracker struct {
	mu    sync.Mutex
	state map[string]state
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{state: make(map[string]state)}
}

// Derive returns the per-second rate of counter name since its previous reading.
//
// The first reading of a counter yields 0. A counter that went backwards
// (reset, wraparound) yields 0 and restarts from the new value. A clock that
// did not advance yields 0 and keeps the previous reading, so the delta is
// reported once time moves again. A clock that stepped back yields 0 and
// restarts from the new reading.
func (t *Tracker) Derive(name string, value uint64, now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.state[name]
	if !ok || value < prev.value {
		t.state[name] = state{value: value, at: now}
		return 0
	}

	elapsed := now.Sub(prev.at)
	if elapsed < 0 {
		t.state[name] = state{value: value, at: now}
		return 0
	}
	if elapsed == 0 {
		return 0
	}
	if elapsed < MinElapsed {
		elapsed = MinElapsed
	}

	t.state[name] = state{value: value, at: now}
	return float64(value-prev.value) / elapsed.Seconds()
}

// Forget drops the stored reading for name.
func (t *Tracker) Forget(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.state, name)
}

// Last returns the stored raw value and timestamp for name.
func (t *Tracker) Last(name string) (uint64, time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[name]
	return s.value, s.at, ok
}
