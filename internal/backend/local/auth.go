package local

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// accessTokenTTL bounds how long a minted access token stays valid.
const accessTokenTTL = time.Hour

// SignUp creates a new local account and signs it in immediately. The
// local backend has no mail loop, so no confirmation step applies.
func (b *Backend) SignUp(ctx context.Context, creds backend.Credentials) (backend.Session, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || creds.Password == "" {
		return backend.Session{}, &backend.AuthError{Message: "email and password are required"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return backend.Session{}, fmt.Errorf("hashing password: %w", err)
	}

	user := model.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, string(hash), user.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return backend.Session{}, &backend.AuthError{Message: "an account with this email already exists"}
		}
		return backend.Session{}, fmt.Errorf("creating user: %w", err)
	}

	return b.openSession(ctx, user)
}

// SignIn verifies an email/password pair against the local account table.
func (b *Backend) SignIn(ctx context.Context, creds backend.Credentials) (backend.Session, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))

	var (
		user model.User
		hash string
	)
	err := b.db.QueryRowxContext(ctx,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = ?",
		email,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &hash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return backend.Session{}, &backend.AuthError{Message: "invalid email or password"}
	}
	if err != nil {
		return backend.Session{}, fmt.Errorf("looking up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)) != nil {
		return backend.Session{}, &backend.AuthError{Message: "invalid email or password"}
	}

	return b.openSession(ctx, user)
}

// ExchangeCode is the OAuth code-exchange path; the local backend has no
// OAuth provider to exchange against.
func (b *Backend) ExchangeCode(ctx context.Context, code string) (backend.Session, error) {
	return backend.Session{}, &backend.AuthError{Message: "OAuth sign-in requires the hosted backend"}
}

// RestoreSession resumes a session from a previously issued refresh token.
func (b *Backend) RestoreSession(ctx context.Context, refreshToken string) (backend.Session, error) {
	if refreshToken == "" {
		return backend.Session{}, &backend.AuthError{Message: "no saved session"}
	}

	var user model.User
	err := b.db.QueryRowxContext(ctx, `
		SELECT u.id, u.email, u.display_name, u.created_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.refresh_token = ?`, refreshToken,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return backend.Session{}, &backend.AuthError{Message: "session expired"}
	}
	if err != nil {
		return backend.Session{}, fmt.Errorf("restoring session: %w", err)
	}

	access, err := b.mintAccessToken(user)
	if err != nil {
		return backend.Session{}, err
	}

	return backend.Session{
		User:         user,
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}

// SignOut invalidates every stored session. A single-user local database
// holds at most a handful, so a blanket delete is fine.
func (b *Backend) SignOut(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	return nil
}

func (b *Backend) openSession(ctx context.Context, user model.User) (backend.Session, error) {
	refresh := uuid.New().String()
	_, err := b.db.ExecContext(ctx,
		"INSERT INTO sessions (refresh_token, user_id, created_at) VALUES (?, ?, ?)",
		refresh, user.ID, time.Now().UTC(),
	)
	if err != nil {
		return backend.Session{}, fmt.Errorf("storing session: %w", err)
	}

	access, err := b.mintAccessToken(user)
	if err != nil {
		return backend.Session{}, err
	}

	return backend.Session{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// mintAccessToken signs a short-lived HS256 token carrying the user id,
// matching the claim shape the hosted service uses.
func (b *Backend) mintAccessToken(user model.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(accessTokenTTL).Unix(),
	})

	signed, err := token.SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}
