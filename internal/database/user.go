package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/saltline/broadside/internal/auth"
	"github.com/saltline/broadside/internal/models"
)

// ErrInvalidUsername rejects usernames that would break the chat-id and
// game-id key formats, which join usernames with "_" and "-".
var ErrInvalidUsername = fmt.Errorf("username must be non-empty and may not contain '_' or '-'")

// ValidUsername reports whether username is usable as an identity.
func ValidUsername(username string) bool {
	return username != "" && !strings.ContainsAny(username, "_-")
}

// CreateUser hashes the password and inserts the record. The username is the
// user's identity everywhere else in the system.
func CreateUser(ctx context.Context, user *models.User) error {
	if !ValidUsername(user.Username) {
		return ErrInvalidUsername
	}

	hash, err := auth.CreateHash(user.Password, auth.Params)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (username, password) VALUES ($1, $2)`
	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, user.Username, user.Password)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByUsername fetches one record.
func GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	q := `SELECT username, password FROM users WHERE username=$1`
	if err := DB.QueryRow(ctx, q, username).Scan(&u.Username, &u.Password); err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser checks credentials and mints a session token.
func AuthenticateUser(ctx context.Context, username, password string) (string, error) {
	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("user not found or db error: %w", err)
	}

	match, err := auth.ComparePasswordAndHash(password, user.Password)
	if err != nil || !match {
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := auth.CreateJWT(user.Username)
	if err != nil {
		return "", fmt.Errorf("failed to create jwt: %w", err)
	}
	return token, nil
}
