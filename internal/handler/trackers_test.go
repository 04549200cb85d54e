package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/progress"
	"github.com/pavelanni/awarelab/internal/scoring"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testTicker struct{ ch chan time.Time }

func (t *testTicker) C() <-chan time.Time { return t.ch }
func (t *testTicker) Stop()               {}

// fire delivers one tick, giving up if the watch loop has already exited.
func (t *testTicker) fire(now time.Time) {
	select {
	case t.ch <- now:
	case <-time.After(time.Second):
	}
}

// failingSubmits rejects submissions while fail is set.
type failingSubmits struct {
	*progress.MemoryStore
	fail bool
}

func (f *failingSubmits) SubmitLabSimulation(ctx context.Context, userID int64, labID string, sub model.Submission) (model.LabProgress, error) {
	if f.fail {
		return model.LabProgress{}, errors.New("store offline")
	}
	return f.MemoryStore.SubmitLabSimulation(ctx, userID, labID, sub)
}

// newIdleRegistry returns a registry without autosave whose idle watch is
// driven by the returned ticker.
func newIdleRegistry(store progress.Store, clock progress.Clock, idle time.Duration) (*trackerRegistry, *testTicker) {
	tick := &testTicker{ch: make(chan time.Time)}
	reg := newTrackerRegistry(store, clock, 0, idle, func(time.Duration) progress.Ticker { return tick })
	return reg, tick
}

func (tr *trackerRegistry) isOpen(userID int64, labID string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	_, ok := tr.open[trackerKey{userID, labID}]
	return ok
}

func waitClosed(t *testing.T, reg *trackerRegistry, userID int64, labID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for reg.isOpen(userID, labID) {
		if time.Now().After(deadline) {
			t.Fatal("idle tracker was not closed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestIdleTrackerStopsAccruing(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := progress.NewMemoryStore(contentLab())
	reg, tick := newIdleRegistry(store, clock, 15*time.Minute)
	t.Cleanup(reg.closeAll)

	tr, err := reg.get(ctx, 1, "read-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if _, err := reg.get(ctx, 1, "read-1"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Still within the idle bound: nothing happens.
	clock.Advance(10 * time.Minute)
	tick.fire(clock.Now())
	tick.fire(clock.Now()) // lands only after the first check finished
	if !reg.isOpen(1, "read-1") {
		t.Fatal("tracker closed before the idle bound")
	}

	// The student walks away for three days.
	clock.Advance(72 * time.Hour)
	tick.fire(clock.Now())
	waitClosed(t, reg, 1, "read-1")
	if tr.Timer().Running() {
		t.Error("idle timer should be stopped")
	}

	lp, _ := store.GetLabForStudent(ctx, 1, "read-1")
	if lp.Progress.TimeSpentSeconds != 300 {
		t.Errorf("persisted %ds, want 300 up to the last request", lp.Progress.TimeSpentSeconds)
	}

	// Coming back reopens the lab with the timer resumed from 5 minutes.
	again, err := reg.get(ctx, 1, "read-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again == tr || !again.Timer().Running() {
		t.Fatal("expected a fresh running tracker")
	}
	clock.Advance(2 * time.Minute)
	p, err := again.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if p.TimeSpentSeconds != 420 {
		t.Errorf("completed with %ds, want 420", p.TimeSpentSeconds)
	}
}

func TestIdleWatchSkipsUnstartedLab(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := progress.NewMemoryStore(contentLab())
	reg, tick := newIdleRegistry(store, clock, time.Minute)
	t.Cleanup(reg.closeAll)

	if _, err := reg.get(ctx, 1, "read-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	clock.Advance(time.Hour)
	tick.fire(clock.Now())
	waitClosed(t, reg, 1, "read-1")

	lp, _ := store.GetLabForStudent(ctx, 1, "read-1")
	if lp.Progress != nil {
		t.Errorf("viewing a lab must not start it: %+v", lp.Progress)
	}
}

func TestCloseFlushesQueuedSubmission(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := &failingSubmits{MemoryStore: progress.NewMemoryStore(phishingLab())}
	reg, _ := newIdleRegistry(store, clock, 0)

	tr, err := reg.get(ctx, 1, "phish-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	tr.Start(ctx)
	store.fail = true
	if _, err := tr.Submit(ctx, scoring.Result{Score: 100, Passed: true, Correct: 2, Total: 2}, nil); err == nil {
		t.Fatal("expected submit failure")
	}

	store.fail = false
	reg.forgetLab("phish-1")
	lp, _ := store.GetLabForStudent(ctx, 1, "phish-1")
	if lp.Progress.Attempts != 1 || lp.Progress.Status != model.StatusCompleted {
		t.Errorf("queued submission lost on close: %+v", lp.Progress)
	}
}
