package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/awarelab/internal/authoring"
	appI18n "github.com/pavelanni/awarelab/internal/i18n"
	"github.com/pavelanni/awarelab/internal/labfile"
	"github.com/pavelanni/awarelab/internal/model"
)

const maxUploadSize = 10 << 20

type reportView struct {
	OK       bool              `json:"ok"`
	Errors   []authoring.Issue `json:"errors"`
	Warnings []authoring.Issue `json:"warnings"`
}

// localizeReport renders every issue in the request language.
func localizeReport(ctx context.Context, r authoring.Report) reportView {
	localize := func(in []authoring.Issue) []authoring.Issue {
		out := make([]authoring.Issue, len(in))
		for i, is := range in {
			is.Message = appI18n.Td(ctx, is.MessageID, is.Params)
			out[i] = is
		}
		return out
	}
	return reportView{OK: r.OK(), Errors: localize(r.Errors), Warnings: localize(r.Warnings)}
}

// decodeLab reads a lab definition. Configs that do not match their lab
// type fail here, before validation runs.
func decodeLab(r *http.Request) (model.Lab, error) {
	var lab model.Lab
	if err := json.NewDecoder(r.Body).Decode(&lab); err != nil {
		return model.Lab{}, err
	}
	return lab, nil
}

func badLab(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) handleValidateLab(w http.ResponseWriter, r *http.Request) {
	lab, err := decodeLab(r)
	if err != nil {
		badLab(w, err)
		return
	}
	writeJSON(w, http.StatusOK, localizeReport(r.Context(), authoring.Validate(lab)))
}

// handlePutLab validates and saves a lab. Blocking errors reject the save;
// warnings are returned alongside the saved lab.
func (h *Handler) handlePutLab(w http.ResponseWriter, r *http.Request) {
	lab, err := decodeLab(r)
	if err != nil {
		badLab(w, err)
		return
	}
	labID := chi.URLParam(r, "labID")
	if lab.ID == "" {
		lab.ID = labID
	}
	if lab.ID != labID {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lab id does not match the URL"})
		return
	}

	report := authoring.Validate(lab)
	if !report.OK() {
		writeJSON(w, http.StatusUnprocessableEntity, localizeReport(r.Context(), report))
		return
	}
	if err := h.store.SaveLab(r.Context(), lab); err != nil {
		writeError(w, err)
		return
	}
	h.trackers.forgetLab(lab.ID)
	slog.Info("saved lab", "lab", lab.ID, "type", lab.LabType, "by", model.UserFromContext(r.Context()).Username)
	writeJSON(w, http.StatusOK, localizeReport(r.Context(), report))
}

// handleUploadLabs imports a JSON or YAML lab file sent as multipart form
// field "labs_file". A file identical to the last upload is skipped.
func (h *Handler) handleUploadLabs(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file too large"})
		return
	}
	file, header, err := r.FormFile("labs_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file uploaded"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read file"})
		return
	}

	res, err := labfile.Import(r.Context(), h.store, header.Filename, data, r.FormValue("force") == "true")
	if ie, ok := labfile.AsInvalid(err); ok {
		reports := map[string]reportView{}
		for id, rep := range ie.Reports {
			reports[id] = localizeReport(r.Context(), rep)
		}
		writeJSON(w, http.StatusUnprocessableEntity, reports)
		return
	}
	if errors.Is(err, authoring.ErrInvalid) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		badLab(w, err)
		return
	}
	for _, id := range res.Labs {
		h.trackers.forgetLab(id)
	}
	writeJSON(w, http.StatusOK, res)
}

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"displayName"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]userView, len(users))
	for i := range users {
		out[i] = newUserView(&users[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username and password required"})
		return
	}
	switch req.Role {
	case "":
		req.Role = model.UserRoleStudent
	case model.UserRoleStudent, model.UserRoleAuthor, model.UserRoleAdmin:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown role " + string(req.Role)})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	}
	id, err := h.store.CreateUser(u)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "failed to create user"})
		return
	}
	u.ID = id
	writeJSON(w, http.StatusCreated, newUserView(&u))
}

func (h *Handler) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid user ID"})
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if err := h.store.SetUserActive(id, req.Active); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
