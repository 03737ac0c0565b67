package clock

import (
	"sync"
	"time"
)

// Manual is a hand-driven clock for tests. Now advances only when Advance is
// called; tickers from a Manual clock never fire, so tests drive tick
// handling explicitly instead of waiting on wall time.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual returns a manual clock pinned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *Manual) NewTicker(time.Duration) Ticker {
	return silentTicker{}
}

type silentTicker struct{}

func (silentTicker) C() <-chan time.Time { return nil }
func (silentTicker) Stop()               {}
