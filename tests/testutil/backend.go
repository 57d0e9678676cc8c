package testutil

import (
	"context"
	"testing"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/backend/local"
)

// NewTestBackend creates an in-memory local backend with all migrations
// applied. It automatically closes the backend when the test completes.
func NewTestBackend(t *testing.T) *local.Backend {
	t.Helper()

	b, err := local.New(":memory:")
	if err != nil {
		t.Fatalf("creating test backend: %v", err)
	}

	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Errorf("closing test backend: %v", err)
		}
	})

	return b
}

// SignUpTestUser registers a throwaway account and returns its session.
func SignUpTestUser(t *testing.T, b *local.Backend, email string) backend.Session {
	t.Helper()

	session, err := b.SignUp(context.Background(), backend.Credentials{
		Email:    email,
		Password: "test-password",
	})
	if err != nil {
		t.Fatalf("signing up test user %s: %v", email, err)
	}
	return session
}
