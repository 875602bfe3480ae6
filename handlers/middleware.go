package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/imagebank/backend/config"
	"github.com/imagebank/backend/models"
	"github.com/imagebank/backend/repository"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

// UserContextKey is the key used to store the user object in the request context.
const UserContextKey ContextKey = "user"

// CurrentUser returns the authenticated user from the request context, or
// nil for anonymous requests.
func CurrentUser(r *http.Request) *models.User {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func userFromToken(cfg config.Config, userRepo repository.UserRepository, tokenString string) (*models.User, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.TokenSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	var userID uint
	if _, err := fmt.Sscan(claims.Subject, &userID); err != nil {
		return nil, fmt.Errorf("invalid user ID in token subject '%s': %w", claims.Subject, err)
	}

	// the user may have been deleted after the token was issued
	return userRepo.GetByID(userID)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware verifies the bearer token and puts the authenticated user
// into the request context. Requests without a valid identity are rejected.
func AuthMiddleware(cfg config.Config, userRepo repository.UserRepository, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "authorization required")
			return
		}

		user, err := userFromToken(cfg, userRepo, tokenString)
		if err != nil {
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuthMiddleware loads the user when a valid token is present but
// lets anonymous requests through; gallery listing and image viewing are
// public.
func OptionalAuthMiddleware(cfg config.Config, userRepo repository.UserRepository, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString, ok := bearerToken(r); ok {
			if user, err := userFromToken(cfg, userRepo, tokenString); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), UserContextKey, user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin gates administrator-only endpoints. Must run after
// AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "authorization required")
			return
		}
		if !user.IsAdmin {
			WriteAPIError(w, http.StatusForbidden, "forbidden", "admin rights required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
