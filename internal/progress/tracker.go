package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/scoring"
)

var ErrNothingPending = errors.New("no pending submission")

// Tracker is one student's open view of one lab. It keeps the elapsed-time
// timer, the draft notes and the submissions the store has not yet
// accepted, and pushes transitions through the Store.
type Tracker struct {
	mu         sync.Mutex
	store      Store
	userID     int64
	lab        model.Lab
	progress   *model.LabProgress
	timer      *Timer
	notes      string
	savedNotes string
	pending    []model.Submission // oldest first
}

// Open loads the lab and the student's progress. The timer resumes from
// the persisted time and keeps running when the lab is in progress.
func Open(ctx context.Context, store Store, clock Clock, userID int64, labID string) (*Tracker, error) {
	lp, err := store.GetLabForStudent(ctx, userID, labID)
	if err != nil {
		return nil, fmt.Errorf("open lab %s: %w", labID, err)
	}
	if lp == nil {
		return nil, ErrLabNotFound
	}
	t := &Tracker{store: store, userID: userID, lab: lp.Lab}
	var elapsed time.Duration
	if p := lp.Progress; p != nil {
		t.progress = p
		elapsed = time.Duration(p.TimeSpentSeconds) * time.Second
		if p.Notes != nil {
			t.notes = *p.Notes
			t.savedNotes = *p.Notes
		}
	}
	t.timer = NewTimer(clock, elapsed)
	if t.progress != nil && t.progress.Status == model.StatusInProgress {
		t.timer.Start()
	}
	return t, nil
}

// Lab returns the lab being tracked.
func (t *Tracker) Lab() model.Lab { return t.lab }

// Timer returns the elapsed-time timer.
func (t *Tracker) Timer() *Timer { return t.timer }

// Progress returns the last progress the store confirmed, or nil.
func (t *Tracker) Progress() *model.LabProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress == nil {
		return nil
	}
	p := *t.progress
	return &p
}

// Start marks the lab in progress and starts the timer.
func (t *Tracker) Start(ctx context.Context) (model.LabProgress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, err := t.store.StartLab(ctx, t.userID, t.lab.ID)
	if err != nil {
		return model.LabProgress{}, fmt.Errorf("start lab %s: %w", t.lab.ID, err)
	}
	t.progress = &p
	if p.Status == model.StatusInProgress {
		t.timer.Start()
	}
	return p, nil
}

// Notes returns the draft notes.
func (t *Tracker) Notes() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notes
}

// SetNotes replaces the draft notes without saving them.
func (t *Tracker) SetNotes(notes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notes = notes
}

// NotesDirty reports whether the draft differs from what was last saved.
func (t *Tracker) NotesDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.notes != t.savedNotes
}

// SaveNotes persists the draft notes with the current elapsed minutes. It
// does nothing when the draft is unchanged. A failed save keeps the draft
// so the next call retries it.
func (t *Tracker) SaveNotes(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lab.LabType != model.LabTypeContent {
		return false, ErrContentOnly
	}
	if t.notes == t.savedNotes {
		return false, nil
	}
	return t.saveNotes(ctx)
}

func (t *Tracker) saveNotes(ctx context.Context) (bool, error) {
	notes := t.notes
	p, err := t.store.UpdateLabNotes(ctx, t.userID, t.lab.ID, notes, t.timer.Minutes())
	if err != nil {
		return false, fmt.Errorf("save notes for %s: %w", t.lab.ID, err)
	}
	t.progress = &p
	t.savedNotes = notes
	return true, nil
}

// Complete self-reports completion of a content lab and stops the timer.
func (t *Tracker) Complete(ctx context.Context) (model.LabProgress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lab.LabType != model.LabTypeContent {
		return model.LabProgress{}, ErrContentOnly
	}
	notes := t.notes
	p, err := t.store.CompleteLab(ctx, t.userID, t.lab.ID, t.timer.Minutes(), notes)
	if err != nil {
		return model.LabProgress{}, fmt.Errorf("complete lab %s: %w", t.lab.ID, err)
	}
	t.progress = &p
	t.savedNotes = notes
	t.timer.Stop()
	return p, nil
}

// Submit queues a graded attempt and sends every queued submission to the
// store in order. When the store fails, the unsent submissions stay queued
// and can be resent with Resubmit or by the next Submit.
func (t *Tracker) Submit(ctx context.Context, res scoring.Result, answers json.RawMessage) (model.LabProgress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.lab.LabType.Interactive() {
		return model.LabProgress{}, ErrInteractiveOnly
	}
	t.pending = append(t.pending, model.Submission{
		Score:   res.Score,
		Passed:  res.Passed,
		Answers: answers,
	})
	return t.flush(ctx)
}

// Pending returns the submissions awaiting a successful save, oldest first.
func (t *Tracker) Pending() []model.Submission {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.pending)
}

// Resubmit resends the queued submissions without re-grading.
func (t *Tracker) Resubmit(ctx context.Context) (model.LabProgress, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return model.LabProgress{}, ErrNothingPending
	}
	return t.flush(ctx)
}

func (t *Tracker) flush(ctx context.Context) (model.LabProgress, error) {
	var p model.LabProgress
	for len(t.pending) > 0 {
		sub := t.pending[0]
		sub.TimeSpentMinutes = t.timer.Minutes()
		var err error
		p, err = t.store.SubmitLabSimulation(ctx, t.userID, t.lab.ID, sub)
		if err != nil {
			return model.LabProgress{}, fmt.Errorf("submit lab %s: %w", t.lab.ID, err)
		}
		t.pending = t.pending[1:]
		t.progress = &p
		if p.Status == model.StatusCompleted {
			t.timer.Stop()
		}
	}
	t.pending = nil
	return p, nil
}

// Pause stops the timer as of at and saves what the store has not seen
// yet: queued submissions and, for a content lab in progress, the notes
// with the elapsed time. On error the timer stays stopped and the unsaved
// work is kept for the next Pause or save.
func (t *Tracker) Pause(ctx context.Context, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer.StopAt(at)
	var errs []error
	if len(t.pending) > 0 {
		if _, err := t.flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if t.lab.LabType == model.LabTypeContent && t.progress != nil && t.progress.Status == model.StatusInProgress {
		if _, err := t.saveNotes(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resume restarts the timer if the lab is still in progress.
func (t *Tracker) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.progress != nil && t.progress.Status == model.StatusInProgress {
		t.timer.Start()
	}
}

// Autosave saves dirty notes on every tick until ctx is done or the lab is
// completed. Save failures are logged and retried on the next tick.
func (t *Tracker) Autosave(ctx context.Context, ticker Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if p := t.Progress(); p != nil && p.Status == model.StatusCompleted {
				return
			}
			saved, err := t.SaveNotes(ctx)
			if err != nil {
				slog.Warn("autosave notes failed", "lab", t.lab.ID, "user", t.userID, "error", err)
				continue
			}
			if saved {
				slog.Debug("autosaved notes", "lab", t.lab.ID, "user", t.userID)
			}
		}
	}
}

// Close stops the timer.
func (t *Tracker) Close() {
	t.timer.Stop()
}
