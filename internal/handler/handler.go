// Package handler implements the development grading server's HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examtrail/internal/answerkey"
	appI18n "github.com/pavelanni/examtrail/internal/i18n"
	"github.com/pavelanni/examtrail/internal/model"
	"github.com/pavelanni/examtrail/internal/store"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Config holds server-level options.
type Config struct {
	// AdminUser may list uploads and manage accounts.
	AdminUser string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	keys   *answerkey.Holder
	grader answerkey.FreeResponseGrader
	config Config
}

// New creates a new Handler. keys and grader may be nil: without keys the
// live scorer answers 503, without a grader free-response items score 0.
func New(s *store.Store, keys *answerkey.Holder, grader answerkey.FreeResponseGrader, cfg Config) *Handler {
	return &Handler{store: s, keys: keys, grader: grader, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/login", h.handleLogin)
		r.Post("/upload-score", h.handleUploadScore)
		r.Post("/live-scorer", h.handleLiveScorer)
		r.Post("/submit-question", h.handleSubmitQuestion)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/uploads", h.handleListUploads)
			r.Get("/export/{assignment}", h.handleExport)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{username}/active", h.handleSetUserActive)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if h.keys != nil {
		status["answer_key"] = h.keys.Path()
		status["answer_key_sha256"] = h.keys.Key().Hash
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": appI18n.T(r.Context(), "LoginOK"),
	})
}

func (h *Handler) handleUploadScore(w http.ResponseWriter, r *http.Request) {
	var upload model.ScoreUpload
	if !h.decode(w, r, &upload) {
		return
	}
	if err := checkUpload(upload); err != nil {
		h.badRequest(w, r, err)
		return
	}

	stored, err := h.store.SaveUpload(usernameFrom(r.Context()), upload)
	if err != nil {
		h.internalError(w, r, "save upload", err)
		return
	}
	slog.Info("score upload stored",
		"id", stored.ID,
		"assignment", upload.Assignment,
		"student", upload.StudentEmail,
		"questions", len(upload.Scores),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": stored.ID})
}

func checkUpload(u model.ScoreUpload) error {
	switch {
	case strings.TrimSpace(u.Assignment) == "":
		return errors.New("assignment is required")
	case strings.TrimSpace(u.StudentEmail) == "":
		return errors.New("student_email is required")
	case len(u.Scores) == 0:
		return errors.New("scores must not be empty")
	}
	for _, s := range u.Scores {
		if s.Score < 0 || s.MaxScore < 0 {
			return fmt.Errorf("%s: negative score", s.Name)
		}
	}
	return nil
}

func (h *Handler) handleLiveScorer(w http.ResponseWriter, r *http.Request) {
	if h.keys == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no answer key loaded"})
		return
	}
	var req model.LiveScoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Assignment == "" || len(req.Responses) == 0 {
		h.badRequest(w, r, errors.New("assignment and responses are required"))
		return
	}

	score := h.keys.Key().Score(r.Context(), req, h.grader)
	slog.Info("live score",
		"assignment", req.Assignment,
		"question", req.Question,
		"student", req.StudentEmail,
		"total", score.Total,
	)
	writeJSON(w, http.StatusOK, score)
}

func (h *Handler) handleSubmitQuestion(w http.ResponseWriter, r *http.Request) {
	var sub model.QuestionSubmission
	if !h.decode(w, r, &sub) {
		return
	}
	if sub.Assignment == "" || sub.StudentEmail == "" || sub.Question == "" {
		h.badRequest(w, r, errors.New("assignment, student_email and question are required"))
		return
	}

	stored, err := h.store.SaveQuestion(sub)
	if err != nil {
		h.internalError(w, r, "save question", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": stored.ID})
}

// decode reads a JSON body into v and answers 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		h.badRequest(w, r, err)
		return false
	}
	return true
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": appI18n.Td(r.Context(), "BadRequest", map[string]any{"Error": err.Error()}),
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.Error(op+" failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": appI18n.T(r.Context(), "InternalError"),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
