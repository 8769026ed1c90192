package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall time so tick-driven components (proximity,
// typing expiry, retry delays) can run against a virtual clock in
// tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors time.Ticker behind an interface.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// System is the real clock.
type System struct{}

func (System) Now() time.Time                         { return time.Now() }
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (System) NewTicker(d time.Duration) Ticker       { return &systemTicker{t: time.NewTicker(d)} }

type systemTicker struct{ t *time.Ticker }

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// Manual is a hand-advanced clock for tests. Advance moves time
// forward and releases any After waiters and ticker ticks that fall
// due, in order.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualWaiter
	tickers []*manualTicker
}

type manualWaiter struct {
	at time.Time
	ch chan time.Time
}

type manualTicker struct {
	parent   *Manual
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

// NewManual starts a manual clock at an arbitrary fixed instant.
func NewManual() *Manual {
	return &Manual{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := &manualWaiter{at: m.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		w.ch <- m.now
		return w.ch
	}
	m.waiters = append(m.waiters, w)
	return w.ch
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{parent: m, interval: d, next: m.now.Add(d), ch: make(chan time.Time, 64)}
	m.tickers = append(m.tickers, t)
	return t
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	t.stopped = true
}

// Advance moves the clock forward by d, firing due waiters and ticker
// ticks. Ticks are delivered non-blocking; a full ticker channel drops
// the tick, same as time.Ticker.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now

	var remaining []*manualWaiter
	var fired []*manualWaiter
	for _, w := range m.waiters {
		if !w.at.After(now) {
			fired = append(fired, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	m.waiters = remaining

	for _, t := range m.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
	m.mu.Unlock()

	for _, w := range fired {
		w.ch <- now
	}
}
