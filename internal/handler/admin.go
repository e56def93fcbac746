package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/ieltsdesk/ieltsdesk/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	type userView struct {
		ID          int64          `json:"id"`
		Username    string         `json:"username"`
		DisplayName string         `json:"display_name"`
		Role        model.UserRole `json:"role"`
		Active      bool           `json:"active"`
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{u.ID, u.Username, u.DisplayName, u.Role, u.Active})
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, errors.Join(model.ErrValidation, err))
		return
	}
	if req.Username == "" || req.Password == "" {
		h.respondError(w, r, errors.Join(model.ErrValidation, errors.New("username and password required")))
		return
	}
	switch model.UserRole(req.Role) {
	case model.UserRoleStudent, model.UserRoleTeacher, model.UserRoleAdmin:
	default:
		h.respondError(w, r, errors.Join(model.ErrValidation, errors.New("unknown role")))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		h.respondError(w, r, err)
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         model.UserRole(req.Role),
		Active:       true,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id})
}

// handleUploadSections imports section definitions from an uploaded JSON
// file. A file whose content hash matches a previous import is skipped.
func (h *Handler) handleUploadSections(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		h.respondError(w, r, errors.Join(model.ErrValidation, err))
		return
	}

	file, header, err := r.FormFile("sections_file")
	if err != nil {
		h.respondError(w, r, errors.Join(model.ErrValidation, errors.New("no file uploaded")))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := h.store.GetImportedFileHash(header.Filename)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if storedHash == hash {
		respondJSON(w, http.StatusOK, map[string]any{"imported": 0, "duplicate": true})
		return
	}

	var imports []model.SectionImport
	if err := json.Unmarshal(data, &imports); err != nil {
		h.respondError(w, r, errors.Join(model.ErrValidation, err))
		return
	}

	ids := make([]int64, 0, len(imports))
	for _, si := range imports {
		id, err := h.store.InsertSection(model.Section{
			Name:            si.Name,
			Type:            si.Type,
			DurationMinutes: si.DurationMinutes,
			Questions:       si.Questions,
		})
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		ids = append(ids, id)
	}

	if err := h.store.SetImportedFileHash(header.Filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("imported sections via admin", "filename", header.Filename, "count", len(imports))
	respondJSON(w, http.StatusCreated, map[string]any{"imported": len(imports), "ids": ids})
}
