// Package account contains the HTTP handlers for registration and login.
//
// Both handlers follow the same factory pattern as the student handlers:
// dependencies go in once at startup, the returned closure runs per request.
package account

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aanand-mishra/student-records-api/internal/auth"
	"github.com/aanand-mishra/student-records-api/internal/http/handlers"
	"github.com/aanand-mishra/student-records-api/internal/logger"
	"github.com/aanand-mishra/student-records-api/internal/storage"
	"github.com/aanand-mishra/student-records-api/internal/types"
	"github.com/aanand-mishra/student-records-api/internal/utils/response"
)

// TokenIssuer mints a bearer token for a user id.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// RegisterRequest is the POST /register body.
// bcrypt only reads the first 72 bytes, so longer passwords are refused.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginRequest is the POST /login body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by both endpoints on success.
type AuthResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	User    types.User `json:"user"`
	Token   string     `json:"token"`
}

func emailTaken(w http.ResponseWriter) {
	response.WriteJSON(w, http.StatusUnprocessableEntity,
		response.Error("The given data was invalid.", "field email has already been taken"))
}

// Register handles POST /register.
//
// Success (201): { "status": "success", "message": "...", "user": {...}, "token": "..." }
// Errors: 400 bad body, 422 validation or email taken, 500 store failure.
func Register(users storage.UserStorage, tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info("registering a user")

		var req RegisterRequest
		if !handlers.Bind(w, r, &req) {
			return
		}
		req.Email = types.NormalizeEmail(req.Email)

		// Uniqueness is a validation rule, so it answers 422 rather than
		// surfacing later as a store failure.
		_, err := users.GetUserByEmail(r.Context(), req.Email)
		switch {
		case err == nil:
			emailTaken(w)
			return
		case !errors.Is(err, storage.ErrNotFound):
			handlers.Internal(w, r, "error checking email", err)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			handlers.Internal(w, r, "error hashing password", err)
			return
		}

		user, err := users.CreateUser(r.Context(), types.User{
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: hash,
		})
		if errors.Is(err, storage.ErrDuplicateEmail) {
			emailTaken(w)
			return
		}
		if err != nil {
			handlers.Internal(w, r, "error creating user", err)
			return
		}

		token, err := tokens.Issue(user.ID)
		if err != nil {
			handlers.Internal(w, r, "error issuing token", err)
			return
		}

		log.Info("user registered", slog.Int64("id", user.ID))
		response.WriteJSON(w, http.StatusCreated, AuthResponse{
			Status:  response.StatusSuccess,
			Message: "User created successfully",
			User:    user,
			Token:   token,
		})
	}
}

// Login handles POST /login.
//
// Success (200): same shape as Register.
// Errors: 400 bad body, 422 validation, 401 invalid credentials, 500 store failure.
func Login(users storage.UserStorage, tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info("logging in a user")

		var req LoginRequest
		if !handlers.Bind(w, r, &req) {
			return
		}
		req.Email = types.NormalizeEmail(req.Email)

		user, err := users.GetUserByEmail(r.Context(), req.Email)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			handlers.Internal(w, r, "error loading user", err)
			return
		}
		if err != nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
			log.Info("invalid credentials")
			response.WriteJSON(w, http.StatusUnauthorized, response.Error("Invalid credentials"))
			return
		}

		token, err := tokens.Issue(user.ID)
		if err != nil {
			handlers.Internal(w, r, "error issuing token", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, AuthResponse{
			Status:  response.StatusSuccess,
			Message: "User logged in successfully",
			User:    user,
			Token:   token,
		})
	}
}
