package handler

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/progress"
)

type trackerKey struct {
	userID int64
	labID  string
}

type openTracker struct {
	tracker  *progress.Tracker
	cancel   context.CancelFunc
	lastSeen time.Time // guarded by trackerRegistry.mu
}

// trackerRegistry keeps one progress tracker per student per lab, so the
// timer and draft notes survive between requests. Content labs get a notes
// autosaver for as long as the tracker is open. The timer's one-second tick
// watches for students who stopped sending requests: after idle without
// one, the timer is stopped as of the last request, unsaved work is
// flushed and the tracker is dropped.
type trackerRegistry struct {
	mu        sync.Mutex
	store     progress.Store
	clock     progress.Clock
	interval  time.Duration
	idle      time.Duration
	newTicker func(time.Duration) progress.Ticker
	open      map[trackerKey]*openTracker
}

func newTrackerRegistry(s progress.Store, clock progress.Clock, interval, idle time.Duration,
	newTicker func(time.Duration) progress.Ticker) *trackerRegistry {
	return &trackerRegistry{
		store:     s,
		clock:     clock,
		interval:  interval,
		idle:      idle,
		newTicker: newTicker,
		open:      map[trackerKey]*openTracker{},
	}
}

// get returns the student's tracker for labID, opening it on first use.
// Every call counts as activity and resumes a paused timer.
func (tr *trackerRegistry) get(ctx context.Context, userID int64, labID string) (*progress.Tracker, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	key := trackerKey{userID, labID}
	if ot, ok := tr.open[key]; ok {
		ot.lastSeen = tr.clock.Now()
		ot.tracker.Resume()
		return ot.tracker, nil
	}
	t, err := progress.Open(ctx, tr.store, tr.clock, userID, labID)
	if err != nil {
		return nil, err
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	ot := &openTracker{tracker: t, cancel: cancel, lastSeen: tr.clock.Now()}
	if t.Lab().LabType == model.LabTypeContent && tr.interval > 0 {
		go t.Autosave(bgCtx, tr.newTicker(tr.interval))
	}
	if tr.idle > 0 {
		go t.Timer().Run(bgCtx, tr.newTicker(time.Second), func(int) { tr.checkIdle(key, ot) })
	}
	tr.open[key] = ot
	return t, nil
}

// checkIdle pauses and drops ot once its student has been idle too long.
// A tracker whose flush fails stays registered, paused, until the student
// returns or the server shuts down.
func (tr *trackerRegistry) checkIdle(key trackerKey, ot *openTracker) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.open[key] != ot || tr.clock.Now().Sub(ot.lastSeen) < tr.idle {
		return
	}
	if err := ot.tracker.Pause(context.Background(), ot.lastSeen); err != nil {
		slog.Warn("flush idle lab failed", "lab", key.labID, "user", key.userID, "error", err)
		return
	}
	ot.cancel()
	delete(tr.open, key)
	slog.Debug("closed idle lab", "lab", key.labID, "user", key.userID)
}

// forgetLab closes every tracker on labID so the next request reloads the
// lab definition.
func (tr *trackerRegistry) forgetLab(labID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for key, ot := range tr.open {
		if key.labID == labID {
			ot.close()
			delete(tr.open, key)
		}
	}
}

func (tr *trackerRegistry) closeAll() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for key, ot := range tr.open {
		ot.close()
		delete(tr.open, key)
	}
}

// close stops the background loops and makes a last attempt to save queued
// submissions and notes. Time after the last request is not counted.
func (ot *openTracker) close() {
	ot.cancel()
	t := ot.tracker
	if err := t.Pause(context.Background(), ot.lastSeen); err != nil {
		slog.Warn("flush lab on close failed", "lab", t.Lab().ID, "error", err)
	}
	t.Close()
}

// attemptLocks serializes requests on the same attempt. Attempts hash onto
// a fixed set of mutexes.
type attemptLocks [64]sync.Mutex

func (l *attemptLocks) lock(id string) func() {
	h := fnv.New32a()
	h.Write([]byte(id))
	m := &l[h.Sum32()%uint32(len(l))]
	m.Lock()
	return m.Unlock
}
