package progress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/scoring"
)

var errOffline = errors.New("offline")

// flakyStore fails the next n writes.
type flakyStore struct {
	*MemoryStore
	fail int
}

func (f *flakyStore) UpdateLabNotes(ctx context.Context, userID int64, labID, notes string, minutes int) (model.LabProgress, error) {
	if f.fail > 0 {
		f.fail--
		return model.LabProgress{}, errOffline
	}
	return f.MemoryStore.UpdateLabNotes(ctx, userID, labID, notes, minutes)
}

func (f *flakyStore) SubmitLabSimulation(ctx context.Context, userID int64, labID string, sub model.Submission) (model.LabProgress, error) {
	if f.fail > 0 {
		f.fail--
		return model.LabProgress{}, errOffline
	}
	return f.MemoryStore.SubmitLabSimulation(ctx, userID, labID, sub)
}

func testLabs() []model.Lab {
	return []model.Lab{
		{ID: "read", LabType: model.LabTypeContent},
		{
			ID:           "links",
			LabType:      model.LabTypeSuspiciousLinks,
			PassingScore: 70,
			SimulationConfig: &model.SuspiciousLinksConfig{Links: []model.Link{
				{DisplayText: "bank.com/login", IsMalicious: true},
			}},
		},
	}
}

func openTracker(t *testing.T, store Store, clock Clock, labID string) *Tracker {
	t.Helper()
	tr, err := Open(context.Background(), store, clock, 1, labID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func TestOpenUnknownLab(t *testing.T) {
	_, err := Open(context.Background(), NewMemoryStore(), newFakeClock(), 1, "missing")
	if !errors.Is(err, ErrLabNotFound) {
		t.Errorf("expected ErrLabNotFound, got %v", err)
	}
}

func TestContentLabFlow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore(testLabs()...)
	tr := openTracker(t, store, clock, "read")

	if tr.Progress() != nil {
		t.Fatal("new lab should have no progress")
	}
	if _, err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !tr.Timer().Running() {
		t.Fatal("timer should run after start")
	}

	clock.Advance(2 * time.Minute)
	if saved, err := tr.SaveNotes(ctx); err != nil || saved {
		t.Errorf("clean notes should not save: saved=%v err=%v", saved, err)
	}
	tr.SetNotes("phishing uses urgency")
	if !tr.NotesDirty() {
		t.Error("notes should be dirty")
	}
	if saved, err := tr.SaveNotes(ctx); err != nil || !saved {
		t.Fatalf("SaveNotes: saved=%v err=%v", saved, err)
	}
	if tr.NotesDirty() {
		t.Error("notes should be clean after save")
	}
	if got := tr.Progress().TimeSpentSeconds; got != 120 {
		t.Errorf("expected 120s, got %d", got)
	}

	clock.Advance(3 * time.Minute)
	p, err := tr.Complete(ctx)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if p.Status != model.StatusCompleted || p.TimeSpentSeconds != 300 {
		t.Errorf("unexpected completion: %+v", p)
	}
	if tr.Timer().Running() {
		t.Error("timer should stop on completion")
	}

	// Reopening resumes from persisted state with a stopped timer.
	again := openTracker(t, store, clock, "read")
	if again.Notes() != "phishing uses urgency" {
		t.Errorf("notes not restored: %q", again.Notes())
	}
	if again.Timer().Running() || again.Timer().Minutes() != 5 {
		t.Errorf("expected stopped timer at 5m, got running=%v %dm", again.Timer().Running(), again.Timer().Minutes())
	}
}

func TestSaveNotesFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(testLabs()...)}
	tr := openTracker(t, store, newFakeClock(), "read")
	tr.Start(ctx)

	tr.SetNotes("draft")
	store.fail = 1
	if _, err := tr.SaveNotes(ctx); !errors.Is(err, errOffline) {
		t.Fatalf("expected errOffline, got %v", err)
	}
	if !tr.NotesDirty() || tr.Notes() != "draft" {
		t.Error("draft must survive a failed save")
	}
	if saved, err := tr.SaveNotes(ctx); err != nil || !saved {
		t.Errorf("retry should save: saved=%v err=%v", saved, err)
	}
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := &flakyStore{MemoryStore: NewMemoryStore(testLabs()...)}
	tr := openTracker(t, store, clock, "links")
	tr.Start(ctx)
	clock.Advance(4 * time.Minute)

	res := scoring.Result{Score: 100, Passed: true, Correct: 1, Total: 1}
	answers := json.RawMessage(`{"reported":{"0":true}}`)

	store.fail = 1
	if _, err := tr.Submit(ctx, res, answers); !errors.Is(err, errOffline) {
		t.Fatalf("expected errOffline, got %v", err)
	}
	if p := tr.Pending(); len(p) != 1 || p[0].Score != 100 {
		t.Fatal("failed submission should stay pending")
	}
	if !tr.Timer().Running() {
		t.Error("timer keeps running until the submission lands")
	}

	p, err := tr.Resubmit(ctx)
	if err != nil {
		t.Fatalf("Resubmit: %v", err)
	}
	if p.Attempts != 1 || p.Status != model.StatusCompleted || *p.Score != 100 {
		t.Errorf("unexpected progress: %+v", p)
	}
	if p.TimeSpentSeconds != 240 {
		t.Errorf("expected 240s, got %d", p.TimeSpentSeconds)
	}
	if len(tr.Pending()) != 0 {
		t.Error("pending should clear on success")
	}
	if _, err := tr.Resubmit(ctx); !errors.Is(err, ErrNothingPending) {
		t.Errorf("expected ErrNothingPending, got %v", err)
	}
}

func TestSubmitAfterFailureSendsQueuedAttempts(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(testLabs()...)}
	tr := openTracker(t, store, newFakeClock(), "links")
	tr.Start(ctx)

	store.fail = 1
	passing := scoring.Result{Score: 100, Passed: true, Correct: 1, Total: 1}
	if _, err := tr.Submit(ctx, passing, nil); !errors.Is(err, errOffline) {
		t.Fatalf("expected errOffline, got %v", err)
	}

	// The student retries and fails; the earlier passing attempt must still land.
	p, err := tr.Submit(ctx, scoring.Result{Score: 0, Total: 1}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if p.Attempts != 2 || *p.Score != 100 || !p.Passed || p.Status != model.StatusCompleted {
		t.Errorf("queued attempt lost: %+v", p)
	}
	if len(tr.Pending()) != 0 {
		t.Error("queue should be empty")
	}
}

func TestPauseStopsTimerAndSaves(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := &flakyStore{MemoryStore: NewMemoryStore(testLabs()...)}
	tr := openTracker(t, store, clock, "read")
	tr.Start(ctx)

	lastSeen := clock.Now().Add(7 * time.Minute)
	clock.Advance(72 * time.Hour)
	if err := tr.Pause(ctx, lastSeen); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if tr.Timer().Running() || tr.Timer().Minutes() != 7 {
		t.Errorf("timer running=%v at %dm, want stopped at 7m", tr.Timer().Running(), tr.Timer().Minutes())
	}
	lp, _ := store.GetLabForStudent(ctx, 1, "read")
	if lp.Progress.TimeSpentSeconds != 420 {
		t.Errorf("persisted %ds, want 420", lp.Progress.TimeSpentSeconds)
	}

	tr.Resume()
	clock.Advance(time.Minute)
	if !tr.Timer().Running() || tr.Timer().Minutes() != 8 {
		t.Errorf("resumed timer at %dm, want 8m", tr.Timer().Minutes())
	}
}

func TestPauseFlushesQueuedSubmission(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := &flakyStore{MemoryStore: NewMemoryStore(testLabs()...)}
	tr := openTracker(t, store, clock, "links")
	tr.Start(ctx)

	store.fail = 2
	res := scoring.Result{Score: 40, Total: 1}
	if _, err := tr.Submit(ctx, res, nil); err == nil {
		t.Fatal("expected submit failure")
	}
	if err := tr.Pause(ctx, clock.Now()); !errors.Is(err, errOffline) {
		t.Fatalf("expected errOffline, got %v", err)
	}
	if len(tr.Pending()) != 1 {
		t.Fatal("failed pause must keep the submission")
	}
	if err := tr.Pause(ctx, clock.Now()); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if p := tr.Progress(); p.Attempts != 1 || *p.Score != 40 {
		t.Errorf("unexpected progress: %+v", p)
	}
}

func TestWrongLabTypeOperations(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testLabs()...)
	content := openTracker(t, store, newFakeClock(), "read")
	if _, err := content.Submit(ctx, scoring.Result{}, nil); !errors.Is(err, ErrInteractiveOnly) {
		t.Errorf("expected ErrInteractiveOnly, got %v", err)
	}
	links := openTracker(t, store, newFakeClock(), "links")
	if _, err := links.Complete(ctx); !errors.Is(err, ErrContentOnly) {
		t.Errorf("expected ErrContentOnly, got %v", err)
	}
}

func TestAutosave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := NewMemoryStore(testLabs()...)
	tr := openTracker(t, store, newFakeClock(), "read")
	tr.Start(ctx)

	ticker := newManualTicker()
	done := make(chan struct{})
	go func() {
		tr.Autosave(ctx, ticker)
		close(done)
	}()

	tr.SetNotes("autosaved")
	ticker.ch <- t0
	ticker.ch <- t0 // handled only after the first save finished

	lp, _ := store.GetLabForStudent(ctx, 1, "read")
	if lp.Progress.Notes == nil || *lp.Progress.Notes != "autosaved" {
		t.Errorf("autosave did not persist notes: %+v", lp.Progress)
	}

	cancel()
	<-done
	if !ticker.Stopped() {
		t.Error("autosave must stop its ticker")
	}
}
