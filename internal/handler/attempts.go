package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/awarelab/internal/attempt"
	appI18n "github.com/pavelanni/awarelab/internal/i18n"
	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/progress"
	"github.com/pavelanni/awarelab/internal/scoring"
)

// attemptView is what the student sees of an attempt in flight.
type attemptView struct {
	ID            string             `json:"id"`
	LabID         string             `json:"labId"`
	Attempt       int                `json:"attempt"`
	Phase         attempt.Phase      `json:"phase"`
	Current       int                `json:"current"`
	ItemCount     int                `json:"itemCount"`
	Answered      []int              `json:"answered"`
	Feedback      *attempt.Feedback  `json:"feedback,omitempty"`
	Result        *scoring.Result    `json:"result,omitempty"`
	LastResult    *scoring.Result    `json:"lastResult,omitempty"`
	StrengthLabel string             `json:"strengthLabel,omitempty"`
	Progress      *model.LabProgress `json:"progress,omitempty"`
	Pending       bool               `json:"pending"`
}

func newAttemptView(ctx context.Context, s *attempt.Session, t *progress.Tracker) *attemptView {
	v := &attemptView{
		ID:         s.ID(),
		LabID:      s.Lab().ID,
		Attempt:    s.Attempt(),
		Phase:      s.Phase(),
		Current:    s.Current(),
		ItemCount:  s.ItemCount(),
		Answered:   []int{},
		Result:     s.Result(),
		LastResult: s.LastResult(),
		Progress:   t.Progress(),
		Pending:    len(t.Pending()) > 0,
	}
	for i := range v.ItemCount {
		if s.Answered(i) {
			v.Answered = append(v.Answered, i)
		}
	}
	if fb := s.Feedback(); fb != nil {
		local := *fb
		if local.Message == "" {
			local.Message = appI18n.T(ctx, "FeedbackIncorrect")
			if local.Correct {
				local.Message = appI18n.T(ctx, "FeedbackCorrect")
			}
		}
		v.Feedback = &local
	}
	if res := s.LastResult(); res != nil && res.Password != nil {
		v.StrengthLabel = appI18n.T(ctx, strengthMessageID(res.Password.Strength))
	}
	return v
}

func strengthMessageID(s scoring.Strength) string {
	switch s {
	case scoring.StrengthFair:
		return "StrengthFair"
	case scoring.StrengthGood:
		return "StrengthGood"
	case scoring.StrengthStrong:
		return "StrengthStrong"
	}
	return "StrengthWeak"
}

// answerRequest is one student action on an attempt.
type answerRequest struct {
	// Action is one of select, report, dismiss, choose or password.
	Action    string `json:"action"`
	Item      int    `json:"item"`
	Malicious bool   `json:"malicious"`
	Response  int    `json:"response"`
	Password  string `json:"password"`
}

func (h *Handler) handleNewAttempt(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	t, err := h.tracker(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !t.Lab().LabType.Interactive() {
		writeError(w, attempt.ErrNotInteractive)
		return
	}
	if _, err := t.Start(r.Context()); err != nil {
		writeSaveFailure(r.Context(), w, err, nil)
		return
	}
	s, err := attempt.New(t.Lab())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.attempts.Set(r.Context(), s.Snapshot(user.ID)); err != nil {
		writeError(w, fmt.Errorf("park attempt: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, newAttemptView(r.Context(), s, t))
}

// loadAttempt restores the caller's attempt from the cache together with
// the tracker of its lab.
func (h *Handler) loadAttempt(r *http.Request) (*attempt.Session, *progress.Tracker, error) {
	ctx := r.Context()
	user := model.UserFromContext(ctx)
	snap, err := h.attempts.Get(ctx, chi.URLParam(r, "attemptID"))
	if err != nil {
		return nil, nil, fmt.Errorf("load attempt: %w", err)
	}
	if snap == nil || snap.UserID != user.ID {
		return nil, nil, errAttemptNotFound
	}
	t, err := h.trackers.get(ctx, user.ID, snap.LabID)
	if err != nil {
		return nil, nil, err
	}
	s, err := attempt.Restore(t.Lab(), *snap)
	if err != nil {
		return nil, nil, err
	}
	return s, t, nil
}

// withAttempt runs fn on the caller's attempt under its lock and parks the
// updated session again. fn returns a finished result when the step ended
// the attempt; that result is then submitted to the tracker.
func (h *Handler) withAttempt(w http.ResponseWriter, r *http.Request,
	fn func(s *attempt.Session) (*scoring.Result, error)) {
	ctx := r.Context()
	unlock := h.locks.lock(chi.URLParam(r, "attemptID"))
	defer unlock()

	s, t, err := h.loadAttempt(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := fn(s)
	if err != nil {
		writeError(w, err)
		return
	}
	user := model.UserFromContext(ctx)
	if err := h.attempts.Set(ctx, s.Snapshot(user.ID)); err != nil {
		writeError(w, fmt.Errorf("park attempt: %w", err))
		return
	}
	if res != nil {
		answers, err := s.AnswersJSON()
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := t.Submit(ctx, *res, answers); err != nil {
			writeSaveFailure(ctx, w, err, newAttemptView(ctx, s, t))
			return
		}
	}
	writeJSON(w, http.StatusOK, newAttemptView(ctx, s, t))
}

func (h *Handler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	s, t, err := h.loadAttempt(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttemptView(r.Context(), s, t))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	h.withAttempt(w, r, func(s *attempt.Session) (*scoring.Result, error) {
		switch req.Action {
		case "select":
			return nil, s.Select(req.Item)
		case "report":
			_, err := s.Report(req.Item, req.Malicious)
			return nil, err
		case "dismiss":
			return nil, s.Dismiss()
		case "choose":
			_, err := s.Choose(req.Item, req.Response)
			return nil, err
		case "password":
			res, err := s.SubmitPassword(req.Password)
			if err != nil {
				return nil, err
			}
			return &res, nil
		}
		return nil, fmt.Errorf("%w: unknown action %q", attempt.ErrWrongVariant, req.Action)
	})
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	h.withAttempt(w, r, func(s *attempt.Session) (*scoring.Result, error) {
		return s.Advance()
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.withAttempt(w, r, func(s *attempt.Session) (*scoring.Result, error) {
		res, err := s.SubmitAll()
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	h.withAttempt(w, r, func(s *attempt.Session) (*scoring.Result, error) {
		return nil, s.Retry()
	})
}

// handleResubmit resends a graded attempt whose save failed. The attempt
// is not graded again.
func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unlock := h.locks.lock(chi.URLParam(r, "attemptID"))
	defer unlock()

	s, t, err := h.loadAttempt(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := t.Resubmit(ctx); err != nil {
		writeSaveFailure(ctx, w, err, newAttemptView(ctx, s, t))
		return
	}
	writeJSON(w, http.StatusOK, newAttemptView(ctx, s, t))
}

// handleLeaveAttempt ends the caller's attempt. Queued submissions are
// saved, the lab timer pauses until the next request and the parked
// session is dropped.
func (h *Handler) handleLeaveAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attemptID := chi.URLParam(r, "attemptID")
	unlock := h.locks.lock(attemptID)
	defer unlock()

	s, t, err := h.loadAttempt(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := t.Pause(ctx, h.clock.Now()); err != nil {
		writeSaveFailure(ctx, w, err, newAttemptView(ctx, s, t))
		return
	}
	if err := h.attempts.Delete(ctx, attemptID); err != nil {
		writeError(w, fmt.Errorf("drop attempt: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
