package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examtrail/internal/model"
)

func (h *Handler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.store.ListUploads(r.URL.Query().Get("assignment"))
	if err != nil {
		h.internalError(w, r, "list uploads", err)
		return
	}
	if uploads == nil {
		uploads = []model.StoredUpload{}
	}
	writeJSON(w, http.StatusOK, uploads)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ExportAssignment(chi.URLParam(r, "assignment"))
	if err != nil {
		h.internalError(w, r, "export", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type newUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req newUser
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		h.badRequest(w, r, errors.New("username and password required"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, r, "hash password", err)
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		h.internalError(w, r, "get user", err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "user already exists"})
		return
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Active:       true,
	})
	if err != nil {
		h.internalError(w, r, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "username": req.Username})
}

func (h *Handler) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	active := r.URL.Query().Get("active") != "false"

	if err := h.store.SetUserActive(username, active); err != nil {
		h.internalError(w, r, "set user active", err)
		return
	}
	slog.Info("user active flag changed", "username", username, "active", active)
	writeJSON(w, http.StatusOK, map[string]any{"username": username, "active": active})
}
