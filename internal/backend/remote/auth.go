package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

// sessionResponse is the session envelope returned by the auth endpoints.
type sessionResponse struct {
	AccessToken          string     `json:"access_token"`
	RefreshToken         string     `json:"refresh_token"`
	User                 model.User `json:"user"`
	ConfirmationRequired bool       `json:"confirmation_required"`
}

// SignUp registers a new account. Depending on the service's settings
// this either returns a live session or ErrConfirmationRequired, after
// which the user confirms via the emailed link and signs in normally.
func (b *Backend) SignUp(ctx context.Context, creds backend.Credentials) (backend.Session, error) {
	var resp sessionResponse
	err := b.client.post(ctx, "/auth/v1/signup", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}, &resp)
	if err != nil {
		return backend.Session{}, fmt.Errorf("signing up: %w", err)
	}

	if resp.ConfirmationRequired {
		return backend.Session{}, backend.ErrConfirmationRequired
	}

	return b.installSession(resp), nil
}

// SignIn performs the password grant.
func (b *Backend) SignIn(ctx context.Context, creds backend.Credentials) (backend.Session, error) {
	var resp sessionResponse
	err := b.client.post(ctx, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}, &resp)
	if err != nil {
		return backend.Session{}, fmt.Errorf("signing in: %w", err)
	}
	return b.installSession(resp), nil
}

// ExchangeCode trades an OAuth authorization code, pasted from the
// provider's redirect page, for a session.
func (b *Backend) ExchangeCode(ctx context.Context, code string) (backend.Session, error) {
	var resp sessionResponse
	err := b.client.post(ctx, "/auth/v1/token?grant_type=authorization_code", map[string]string{
		"code": code,
	}, &resp)
	if err != nil {
		return backend.Session{}, fmt.Errorf("exchanging auth code: %w", err)
	}
	return b.installSession(resp), nil
}

// RestoreSession trades a saved refresh token for a fresh session.
func (b *Backend) RestoreSession(ctx context.Context, refreshToken string) (backend.Session, error) {
	if refreshToken == "" {
		return backend.Session{}, &backend.AuthError{Message: "no saved session"}
	}

	var resp sessionResponse
	err := b.client.post(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		return backend.Session{}, fmt.Errorf("restoring session: %w", err)
	}
	return b.installSession(resp), nil
}

// SignOut revokes the current session server-side and drops the token.
func (b *Backend) SignOut(ctx context.Context) error {
	err := b.client.post(ctx, "/auth/v1/logout", nil, nil)
	b.client.setToken("")
	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// installSession wires the access token into the HTTP client and
// returns the session in the backend's shape.
func (b *Backend) installSession(resp sessionResponse) backend.Session {
	b.client.setToken(resp.AccessToken)
	return backend.Session{
		User:         resp.User,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
}

// TokenExpiry reports when the given access token expires, read from
// its JWT claims without signature verification; the service, not this
// client, is the token's verifier. Zero time means no expiry claim.
func TokenExpiry(accessToken string) (time.Time, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(accessToken, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing access token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("reading token expiry: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
