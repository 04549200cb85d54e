package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/awarelab/internal/handler/views"
	"github.com/pavelanni/awarelab/internal/model"
)

func (h *Handler) handleProgressPage(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	labs, err := h.store.ListLabsWithProgress(r.Context(), user.ID)
	if err != nil {
		slog.Error("failed to list progress", "user", user.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ProgressPage(user, labs).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}
