// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"fmt"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when the test calls
// Advance or Set. Timers and tickers fire synchronously inside the
// advancing call, so tests are deterministic and never sleep.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
	tickers []*fakeTicker
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

type fakeTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

// Fake returns a FakeClock frozen at start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives the fake time once Advance
// moves the clock at least d past the current moment. If d <= 0 the
// channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, &fakeWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

// NewTicker returns a Ticker driven by Advance. Like time.NewTicker,
// the channel has capacity 1 and ticks are dropped when the consumer
// falls behind.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic(fmt.Sprintf("clock: non-positive ticker interval %v", d))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ticker := &fakeTicker{
		interval: d,
		next:     c.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ticker)

	return &Ticker{
		C: ticker.ch,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.stopped = true
		},
		resetFunc: func(interval time.Duration) {
			if interval <= 0 {
				panic(fmt.Sprintf("clock: non-positive ticker interval %v", interval))
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			ticker.interval = interval
			ticker.next = c.now.Add(interval)
			ticker.stopped = false
		},
	}
}

// Tickers returns the number of active (not stopped) tickers. Tests
// that drive a loop started in another goroutine use it to wait for
// the loop's ticker to exist before advancing time.
func (c *FakeClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := 0
	for _, ticker := range c.tickers {
		if !ticker.stopped {
			active++
		}
	}
	return active
}

// Waiters returns the number of pending After and Sleep callers.
// Tests use it to wait for another goroutine to block on the clock
// before advancing time.
func (c *FakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Sleep blocks until Advance moves the clock at least d forward.
// A Sleep with no concurrent Advance deadlocks the calling goroutine,
// which in a test surfaces as a hang rather than a silent pass.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the fake time forward by d, firing every timer and
// ticker whose deadline is reached, in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(c.now.Add(d))
}

// Set jumps the fake time to the given instant, firing anything due.
// Panics if the target is earlier than the current fake time.
func (c *FakeClock) Set(target time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target.Before(c.now) {
		panic("clock: Set would move fake time backwards")
	}
	c.advanceTo(target)
}

// advanceTo fires due waiters and tickers up to target. Caller holds mu.
func (c *FakeClock) advanceTo(target time.Time) {
	// Fire events in deadline order so interleaved timers and tickers
	// observe a consistent timeline.
	for {
		earliest, isTicker := c.nextDue(target)
		if earliest == nil {
			break
		}
		if isTicker {
			ticker := earliest.(*fakeTicker)
			c.now = ticker.next
			ticker.next = ticker.next.Add(ticker.interval)
			select {
			case ticker.ch <- c.now:
			default: // consumer behind, drop the tick
			}
		} else {
			waiter := earliest.(*fakeWaiter)
			c.now = waiter.deadline
			waiter.ch <- c.now
			c.removeWaiter(waiter)
		}
	}
	c.now = target
}

// nextDue returns the waiter or ticker with the earliest deadline at
// or before target, or nil if nothing is due. Caller holds mu.
func (c *FakeClock) nextDue(target time.Time) (any, bool) {
	var (
		earliest     time.Time
		found        any
		foundTicker  bool
		haveEarliest bool
	)
	for _, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if !haveEarliest || w.deadline.Before(earliest) {
			earliest, found, foundTicker, haveEarliest = w.deadline, w, false, true
		}
	}
	for _, ticker := range c.tickers {
		if ticker.stopped || ticker.next.After(target) {
			continue
		}
		if !haveEarliest || ticker.next.Before(earliest) {
			earliest, found, foundTicker, haveEarliest = ticker.next, ticker, true, true
		}
	}
	return found, foundTicker
}

func (c *FakeClock) removeWaiter(target *fakeWaiter) {
	for i, w := range c.waiters {
		if w == target {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
