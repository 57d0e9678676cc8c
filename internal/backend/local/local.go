// Package local implements the backend contract on an embedded SQLite
// database, for offline use and for tests. Writes emit change events to
// an in-process feed hub so the client's reconciliation path behaves the
// same against a local database as against the hosted service.
package local

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/avhall/taskdeck/internal/backend"
)

// Backend implements backend.Client against a local SQLite database.
type Backend struct {
	db     *sqlx.DB
	hub    *feedHub
	secret []byte
}

var _ backend.Client = (*Backend)(nil)

// New opens (or creates) a SQLite database at dbPath, enables WAL mode,
// and runs any pending schema migrations. Use ":memory:" for tests.
func New(dbPath string) (*Backend, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	b := &Backend{db: db, hub: newFeedHub()}
	if err := b.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := b.loadSigningSecret(); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

// Close shuts down the feed hub and the database connection.
func (b *Backend) Close() error {
	b.hub.close()
	return b.db.Close()
}

// Subscribe opens the per-user change feed. The channel closes when ctx
// is cancelled or the backend shuts down.
func (b *Backend) Subscribe(ctx context.Context, userID string) (<-chan backend.ChangeEvent, error) {
	return b.hub.subscribe(ctx, userID), nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (b *Backend) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := b.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = b.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := b.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// loadSigningSecret reads the token signing secret from the meta table,
// generating and persisting one on first run.
func (b *Backend) loadSigningSecret() error {
	var hexSecret string
	err := b.db.Get(&hexSecret, "SELECT value FROM meta WHERE key = 'signing_secret'")
	if err == nil && hexSecret != "" {
		b.secret = []byte(hexSecret)
		return nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generating signing secret: %w", err)
	}
	secret := fmt.Sprintf("%x", raw)

	_, err = b.db.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('signing_secret', ?)", secret,
	)
	if err != nil {
		return fmt.Errorf("storing signing secret: %w", err)
	}
	b.secret = []byte(secret)
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
