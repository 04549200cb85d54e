package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/awarelab/internal/attempt"
	"github.com/pavelanni/awarelab/internal/cache"
	appI18n "github.com/pavelanni/awarelab/internal/i18n"
	"github.com/pavelanni/awarelab/internal/model"
	"github.com/pavelanni/awarelab/internal/progress"
	"github.com/pavelanni/awarelab/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	attempts cache.AttemptCache
	config   model.ServerConfig
	clock    progress.Clock
	trackers *trackerRegistry
	locks    attemptLocks
}

// New creates a new Handler. Call Close on shutdown to stop the timers and
// autosavers of open labs.
func New(s *store.Store, c cache.AttemptCache, cfg model.ServerConfig) *Handler {
	h := &Handler{
		store:    s,
		attempts: c,
		config:   cfg,
		clock:    progress.SystemClock{},
	}
	h.trackers = newTrackerRegistry(s, h.clock, cfg.AutosaveInterval, cfg.IdleTimeout, progress.NewTicker)
	return h
}

// Close stops every open tracker.
func (h *Handler) Close() {
	h.trackers.closeAll()
}

// Router builds the full HTTP router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(h.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(appI18n.Middleware())
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/progress", h.handleProgressPage)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))

			r.Get("/labs", h.handleListLabs)
			r.Get("/labs/{labID}", h.handleGetLab)
			r.Post("/labs/{labID}/start", h.handleStartLab)
			r.Put("/labs/{labID}/notes", h.handleSaveNotes)
			r.Post("/labs/{labID}/complete", h.handleCompleteLab)

			r.Post("/labs/{labID}/attempts", h.handleNewAttempt)
			r.Get("/attempts/{attemptID}", h.handleGetAttempt)
			r.Post("/attempts/{attemptID}/answer", h.handleAnswer)
			r.Post("/attempts/{attemptID}/advance", h.handleAdvance)
			r.Post("/attempts/{attemptID}/submit", h.handleSubmit)
			r.Post("/attempts/{attemptID}/retry", h.handleRetry)
			r.Post("/attempts/{attemptID}/resubmit", h.handleResubmit)
			r.Delete("/attempts/{attemptID}", h.handleLeaveAttempt)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAuthor, model.UserRoleAdmin))
				r.Post("/labs/upload", h.handleUploadLabs)
				r.With(middleware.AllowContentType("application/json")).Post("/labs/validate", h.handleValidateLab)
				r.With(middleware.AllowContentType("application/json")).Put("/labs/{labID}", h.handlePutLab)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Use(middleware.AllowContentType("application/json"))
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/active", h.handleSetUserActive)
			})
		})
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
	State     any    `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

var errAttemptNotFound = errors.New("attempt not found")

// statusFor maps domain errors to HTTP status codes. Anything unknown is a
// persistence or internal failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrLabNotFound), errors.Is(err, errAttemptNotFound):
		return http.StatusNotFound
	case errors.Is(err, attempt.ErrNotInteractive),
		errors.Is(err, attempt.ErrWrongVariant),
		errors.Is(err, attempt.ErrItemRange),
		errors.Is(err, progress.ErrContentOnly),
		errors.Is(err, progress.ErrInteractiveOnly),
		errors.Is(err, progress.ErrInvalidSubmission):
		return http.StatusBadRequest
	case errors.Is(err, attempt.ErrFinished),
		errors.Is(err, attempt.ErrNotFinished),
		errors.Is(err, attempt.ErrAnswerLocked),
		errors.Is(err, attempt.ErrOutOfOrder),
		errors.Is(err, attempt.ErrIncomplete),
		errors.Is(err, attempt.ErrNoFeedback),
		errors.Is(err, progress.ErrNotStarted),
		errors.Is(err, progress.ErrAlreadyCompleted),
		errors.Is(err, progress.ErrNothingPending):
		return http.StatusConflict
	case errors.Is(err, model.ErrUnknownLabType),
		errors.Is(err, model.ErrMissingConfig),
		errors.Is(err, model.ErrConfigMismatch):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeSaveFailure reports a persistence failure the student can retry.
// The in-memory state that failed to save is left untouched.
func writeSaveFailure(ctx context.Context, w http.ResponseWriter, err error, state any) {
	if status := statusFor(err); status != http.StatusInternalServerError {
		writeJSON(w, status, errorResponse{Error: err.Error(), State: state})
		return
	}
	slog.Warn("progress save failed", "error", err)
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{
		Error:     appI18n.T(ctx, "SaveFailedRetry"),
		Retryable: true,
		State:     state,
	})
}
