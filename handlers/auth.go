package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/imagebank/backend/config"
	"github.com/imagebank/backend/models"
	"github.com/imagebank/backend/repository"
)

type AuthHandler struct {
	UserRepo repository.UserRepository
	Cfg      config.Config
}

func NewAuthHandler(userRepo repository.UserRepository, cfg config.Config) *AuthHandler {
	return &AuthHandler{UserRepo: userRepo, Cfg: cfg}
}

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Register creates a new account. The first ever account could arguably be
// made an admin automatically, but promotion stays an explicit admin
// action.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid request payload")
		return
	}

	if payload.Username == "" {
		WriteAPIError(w, http.StatusBadRequest, "validation_failed", "username needed")
		return
	}
	if payload.Password == "" {
		WriteAPIError(w, http.StatusBadRequest, "validation_failed", "password needed")
		return
	}

	if _, err := h.UserRepo.GetByUsername(payload.Username); err == nil {
		WriteAPIError(w, http.StatusConflict, "conflict", fmt.Sprintf("user %s already exists", payload.Username))
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("handlers: failed to check username %s: %v", payload.Username, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to register user")
		return
	}

	newUser := &models.User{Username: payload.Username}
	if err := newUser.SetPassword(payload.Password); err != nil {
		log.Printf("handlers: failed to hash password: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to register user")
		return
	}

	if err := h.UserRepo.Create(newUser); err != nil {
		log.Printf("handlers: failed to create user %s: %v", payload.Username, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": fmt.Sprintf("user %s registered", newUser.Username),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "invalid request payload")
		return
	}

	user, err := h.UserRepo.GetByUsername(payload.Username)
	if err != nil || !user.CheckPassword(payload.Password) {
		// same message for unknown user and wrong password
		WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
		return
	}

	expirationTime := time.Now().Add(h.Cfg.TokenTTL)
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(user.ID),
		ExpiresAt: jwt.NewNumericDate(expirationTime),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    "imagebank",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.Cfg.TokenSecret)
	if err != nil {
		log.Printf("handlers: failed to sign token for user %d: %v", user.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     tokenString,
		User:      *user,
		ExpiresAt: expirationTime,
	})
}

// Logout is client-side for bearer tokens; the endpoint exists so clients
// have something to call.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out, discard your token"})
}

// CurrentUser returns the authenticated user; protected by AuthMiddleware.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "could not retrieve user from context")
		return
	}
	writeJSON(w, http.StatusOK, user)
}
