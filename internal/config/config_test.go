package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend.Mode != ModeLocal {
		t.Errorf("default mode = %q, want local", cfg.Backend.Mode)
	}
	if cfg.EmailCapture.Mailbox != "INBOX" {
		t.Errorf("default mailbox = %q", cfg.EmailCapture.Mailbox)
	}
}

func TestLoadConfigRemote(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `backend:
  mode: remote
  base_url: https://tasks.example.com
  api_key: app-key
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend.Mode != ModeRemote || cfg.Backend.BaseURL != "https://tasks.example.com" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
}

func TestLoadConfigRemoteRequiresBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  mode: remote\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for remote mode without base_url")
	}
}

func TestLoadConfigRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend:\n  mode: cloud\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unknown backend mode")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	want := defaultAppConfig()
	want.Backend.Mode = ModeRemote
	want.Backend.BaseURL = "https://tasks.example.com"
	want.EmailCapture.Enabled = true
	want.EmailCapture.Server = "imap.example.com"

	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.Backend != want.Backend {
		t.Errorf("backend = %+v, want %+v", got.Backend, want.Backend)
	}
	if got.EmailCapture != want.EmailCapture {
		t.Errorf("email capture = %+v, want %+v", got.EmailCapture, want.EmailCapture)
	}
}
