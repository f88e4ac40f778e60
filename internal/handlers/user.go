// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/saltline/broadside/internal/auth"
	"github.com/saltline/broadside/internal/database"
	"github.com/saltline/broadside/internal/models"
)

// authCookieName carries the session JWT; the WS handlers read it back.
const authCookieName = "auth_token"

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// CreateUserHandler registers a new account.
func CreateUserHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		user := models.User{Username: req.Username, Password: req.Password}
		if err := database.CreateUser(r.Context(), &user); err != nil {
			if errors.Is(err, database.ErrInvalidUsername) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				http.Error(w, "username already exists", http.StatusConflict)
				return
			}
			logger.Warnf("failed to create user %q: %v", req.Username, err)
			http.Error(w, "error creating user", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.User{Username: user.Username})
	}
}

// LoginHandler checks credentials and sets the session cookie. The token is
// also returned in the body for non-browser clients.
func LoginHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		token, err := database.AuthenticateUser(r.Context(), req.Username, req.Password)
		if err != nil {
			logger.Warnf("failed to authenticate user %q: %v", req.Username, err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     authCookieName,
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TokenExpireSec,
		})

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(loginResponse{Token: token}); err != nil {
			http.Error(w, "failed to write response", http.StatusInternalServerError)
		}
	}
}

// authenticateRequest extracts the username from the session cookie.
func authenticateRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(authCookieName)
	if err != nil {
		return "", err
	}
	return auth.AuthenticateJWT(cookie.Value)
}
