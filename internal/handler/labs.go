package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/progress"
)

// labView is the student's view of one lab. Answer keys are stripped.
type labView struct {
	Lab            model.Lab          `json:"lab"`
	Progress       *model.LabProgress `json:"progress"`
	Notes          string             `json:"notes"`
	NotesSaved     bool               `json:"notesSaved"`
	ElapsedSeconds int                `json:"elapsedSeconds"`
	TimerRunning   bool               `json:"timerRunning"`
}

func newLabView(t *progress.Tracker) labView {
	return labView{
		Lab:            t.Lab().Redacted(),
		Progress:       t.Progress(),
		Notes:          t.Notes(),
		NotesSaved:     !t.NotesDirty(),
		ElapsedSeconds: t.Timer().Seconds(),
		TimerRunning:   t.Timer().Running(),
	}
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

func (h *Handler) tracker(r *http.Request) (*progress.Tracker, error) {
	user := model.UserFromContext(r.Context())
	return h.trackers.get(r.Context(), user.ID, chi.URLParam(r, "labID"))
}

func (h *Handler) handleListLabs(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	labs, err := h.store.ListLabsWithProgress(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	for i := range labs {
		labs[i].Lab = labs[i].Lab.Redacted()
	}
	if labs == nil {
		labs = []model.LabWithProgress{}
	}
	writeJSON(w, http.StatusOK, labs)
}

func (h *Handler) handleGetLab(w http.ResponseWriter, r *http.Request) {
	t, err := h.tracker(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLabView(t))
}

func (h *Handler) handleStartLab(w http.ResponseWriter, r *http.Request) {
	t, err := h.tracker(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := t.Start(r.Context()); err != nil {
		writeSaveFailure(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, newLabView(t))
}

// handleSaveNotes replaces the draft and saves it right away. When the save
// fails the draft stays in memory and the autosaver keeps retrying.
func (h *Handler) handleSaveNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil || req.Notes == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "notes required"})
		return
	}
	t, err := h.tracker(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.Lab().LabType != model.LabTypeContent {
		writeError(w, progress.ErrContentOnly)
		return
	}
	t.SetNotes(*req.Notes)
	if _, err := t.SaveNotes(r.Context()); err != nil {
		writeSaveFailure(r.Context(), w, err, newLabView(t))
		return
	}
	writeJSON(w, http.StatusOK, newLabView(t))
}

// handleCompleteLab self-reports completion. An optional notes body
// replaces the draft first.
func (h *Handler) handleCompleteLab(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	t, err := h.tracker(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.Lab().LabType != model.LabTypeContent {
		writeError(w, progress.ErrContentOnly)
		return
	}
	if req.Notes != nil {
		t.SetNotes(*req.Notes)
	}
	if _, err := t.Complete(r.Context()); err != nil {
		writeSaveFailure(r.Context(), w, err, newLabView(t))
		return
	}
	writeJSON(w, http.StatusOK, newLabView(t))
}
