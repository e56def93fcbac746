// Package handler exposes the JSON API: authentication, attempt lifecycle,
// results, and the admin surface for users and section import.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ieltsdesk/ieltsdesk/internal/exam"
	appI18n "github.com/ieltsdesk/ieltsdesk/internal/i18n"
	"github.com/ieltsdesk/ieltsdesk/internal/model"
	"github.com/ieltsdesk/ieltsdesk/internal/store"
)

// Config holds handler-level settings.
type Config struct {
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	exam   *exam.Service
	config Config
}

// New creates a new Handler.
func New(s *store.Store, svc *exam.Service, cfg Config) *Handler {
	return &Handler{store: s, exam: svc, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Post("/logout", h.handleLogout)
		r.Get("/sections", h.handleListSections)
		r.Post("/attempts/{attemptID}/start", h.handleStartAttempt)
		r.Post("/attempts/{attemptID}/submit", h.handleSubmitAttempt)
		r.Get("/attempts/{attemptID}/results", h.handleAttemptResults)
		r.Get("/results/{resultID}", h.handleResult)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
			r.Post("/attempts", h.handleAssignAttempt)
			r.Post("/attempts/{attemptID}/reassign", h.handleReassignAttempt)
			r.Post("/results/{resultID}/evaluate", h.handleEvaluateResult)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))
			r.Get("/admin/users", h.handleListUsers)
			r.Post("/admin/users", h.handleCreateUser)
			r.Post("/admin/users/{userID}/toggle", h.handleToggleUserActive)
			r.Post("/admin/sections", h.handleUploadSections)
		})
	})
}

func (h *Handler) handleListSections(w http.ResponseWriter, r *http.Request) {
	sections, err := h.store.ListSections()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sections)
}

func (h *Handler) handleAssignAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SectionID int64 `json:"section_id"`
		StudentID int64 `json:"student_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, errors.Join(model.ErrValidation, err))
		return
	}

	a, err := h.exam.Assign(r.Context(), req.SectionID, req.StudentID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID, err := idParam(r, "attemptID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	a, remaining, err := h.exam.Start(r.Context(), attemptID, model.UserFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	sec, err := h.store.GetSection(a.SectionID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"attempt":           a,
		"section":           sec,
		"remaining_seconds": remaining,
	})
}

func (h *Handler) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID, err := idParam(r, "attemptID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var req struct {
		Answers model.AnswerSet `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, errors.Join(model.ErrValidation, err))
		return
	}

	result, err := h.exam.Submit(r.Context(), attemptID, model.UserFromContext(r.Context()), req.Answers)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	// A writing result without feedback means the evaluator was unavailable;
	// tell the caller the submission is recorded but grading is pending.
	msgID := "SubmitAccepted"
	if result.Feedback == nil {
		if sec, err := h.store.GetSection(result.SectionID); err == nil && sec.Type == model.SectionWriting {
			msgID = "EvaluationPending"
		}
	}
	// Scores are not echoed here; the caller re-fetches the result.
	respondJSON(w, http.StatusOK, map[string]any{
		"message":    appI18n.T(r.Context(), msgID),
		"attempt_id": attemptID,
		"status":     model.StatusSubmitted,
		"result_id":  result.ID,
		"result_ref": result.Ref,
	})
}

func (h *Handler) handleReassignAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID, err := idParam(r, "attemptID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	a, err := h.exam.Reassign(r.Context(), attemptID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": appI18n.T(r.Context(), "AttemptReassigned"),
		"attempt": a,
	})
}

func (h *Handler) handleAttemptResults(w http.ResponseWriter, r *http.Request) {
	attemptID, err := idParam(r, "attemptID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	results, err := h.exam.Results(r.Context(), attemptID, model.UserFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if results == nil {
		results = []model.Result{}
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	resultID, err := idParam(r, "resultID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.exam.Result(r.Context(), resultID, model.UserFromContext(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEvaluateResult(w http.ResponseWriter, r *http.Request) {
	resultID, err := idParam(r, "resultID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.exam.EvaluateWriting(r.Context(), resultID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, errors.Join(model.ErrValidation, err)
	}
	return id, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// respondError maps domain sentinels to HTTP statuses with localized messages.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var status int
	var msg string
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, msg = http.StatusNotFound, appI18n.T(ctx, "NotFound")
	case errors.Is(err, model.ErrNotAuthorized):
		status, msg = http.StatusForbidden, appI18n.T(ctx, "NotAuthorized")
	case errors.Is(err, model.ErrInvalidState):
		status, msg = http.StatusConflict, appI18n.T(ctx, "AlreadySubmitted")
	case errors.Is(err, model.ErrValidation):
		status, msg = http.StatusBadRequest, appI18n.T(ctx, "InvalidRequest")
	case errors.Is(err, model.ErrProviderExhausted):
		status, msg = http.StatusBadGateway, appI18n.T(ctx, "EvaluationUnavailable")
	case errors.Is(err, model.ErrParseFailure):
		status, msg = http.StatusBadGateway, appI18n.T(ctx, "EvaluationMalformed")
	default:
		status, msg = http.StatusInternalServerError, "internal error"
	}
	if status >= 500 {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	respondJSON(w, status, map[string]string{"error": msg})
}
