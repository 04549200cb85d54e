package progress

import (
	"context"
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Ticker is a cancelable tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Timer tracks elapsed time spent on a lab. Elapsed time accumulates only
// while the timer is running.
type Timer struct {
	mu        sync.Mutex
	clock     Clock
	base      time.Duration
	resumedAt time.Time
	running   bool
}

// NewTimer returns a stopped timer that has already accrued elapsed.
func NewTimer(clock Clock, elapsed time.Duration) *Timer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Timer{clock: clock, base: elapsed}
}

// Start resumes accrual. Starting a running timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.resumedAt = t.clock.Now()
	t.running = true
}

// Stop freezes accrual.
func (t *Timer) Stop() {
	t.StopAt(t.clock.Now())
}

// StopAt freezes accrual as of at. Times before the last Start count as
// the moment of that Start.
func (t *Timer) StopAt(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	if at.After(t.resumedAt) {
		t.base += at.Sub(t.resumedAt)
	}
	t.running = false
}

// Running reports whether the timer is accruing.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Elapsed returns the total accrued time.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return t.base
	}
	return t.base + t.clock.Now().Sub(t.resumedAt)
}

// Seconds returns elapsed whole seconds.
func (t *Timer) Seconds() int {
	return int(t.Elapsed() / time.Second)
}

// Minutes returns elapsed whole minutes, the unit that gets persisted.
func (t *Timer) Minutes() int {
	return t.Seconds() / 60
}

// Run calls onTick with the elapsed seconds on every tick, running or
// not, until ctx is done. It stops the ticker on return.
func (t *Timer) Run(ctx context.Context, ticker Ticker, onTick func(seconds int)) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if onTick != nil {
				onTick(t.Seconds())
			}
		}
	}
}
