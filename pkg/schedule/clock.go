package schedule

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock access so periodic components can be driven by
// a fake clock in tests instead of real waiting.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a ticker that delivers ticks every interval.
	NewTicker(interval time.Duration) Ticker
}

// Ticker delivers periodic ticks on a channel until stopped.
type Ticker interface {
	// Chan returns the channel on which ticks are delivered.
	Chan() <-chan time.Time

	// Stop stops tick delivery. It does not close the channel.
	Stop()
}

// RealClock is the wall-clock implementation of Clock.
type RealClock struct{}

// NewRealClock returns a Clock backed by the time package.
func NewRealClock() *RealClock {
	return &RealClock{}
}

// Now returns time.Now().
func (*RealClock) Now() time.Time {
	return time.Now()
}

// NewTicker returns a ticker backed by time.Ticker.
func (*RealClock) NewTicker(interval time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(interval)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) Chan() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}

// FakeClock is a manually advanced Clock for tests. Time only moves when
// Advance is called; tickers created from the clock fire for every interval
// boundary crossed by the advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock returns a FakeClock starting at the current wall-clock time.
func NewFakeClock() *FakeClock {
	return NewFakeClockAt(time.Now())
}

// NewFakeClockAt returns a FakeClock starting at the given time.
func NewFakeClockAt(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTicker returns a ticker that fires when Advance crosses its interval.
func (c *FakeClock) NewTicker(interval time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTicker{
		clock:    c,
		interval: interval,
		next:     c.now.Add(interval),
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the fake time forward by d and fires every due ticker once
// per crossed interval. Ticks are delivered non-blocking, matching the
// coalescing behavior of time.Ticker when the receiver is slow.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := make([]*fakeTicker, len(c.tickers))
	copy(tickers, c.tickers)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fireUpTo(now)
	}
}

type fakeTicker struct {
	clock    *FakeClock
	interval time.Duration
	ch       chan time.Time

	mu      sync.Mutex
	next    time.Time
	stopped bool
}

func (t *fakeTicker) Chan() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) fireUpTo(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.stopped && !t.next.After(now) {
		select {
		case t.ch <- t.next:
		default:
		}
		t.next = t.next.Add(t.interval)
	}
}
