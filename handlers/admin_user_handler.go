package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/imagebank/backend/repository"
)

// AdminUserHandler exposes the administrator user-management endpoints:
// listing accounts with their upload counts, toggling the admin flag and
// deleting accounts.
type AdminUserHandler struct {
	UserRepo repository.UserRepository
}

func NewAdminUserHandler(userRepo repository.UserRepository) *AdminUserHandler {
	return &AdminUserHandler{UserRepo: userRepo}
}

func userIDParam(r *http.Request) (uint, bool) {
	idStr := chi.URLParam(r, "user_id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *AdminUserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.UserRepo.ListAll()
	if err != nil {
		log.Printf("handlers: failed to list users: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type adminFlagPayload struct {
	Admin bool `json:"admin"`
}

// SetAdmin promotes or demotes an account.
func (h *AdminUserHandler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	var payload adminFlagPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid request payload")
		return
	}

	if err := h.UserRepo.SetAdmin(id, payload.Admin); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		log.Printf("handlers: failed to set admin flag for user %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user changes applied"})
}

// DeleteUser removes an account. Images owned by the account are left in
// the gallery.
func (h *AdminUserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(r)
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid user ID")
		return
	}

	if caller := CurrentUser(r); caller != nil && caller.ID == id {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "cannot delete your own account")
		return
	}

	if err := h.UserRepo.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		log.Printf("handlers: failed to delete user %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
