package prefs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	got := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if got != Default() {
		t.Errorf("Load on missing file = %+v, want defaults", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")

	want := Prefs{
		Version:          SchemaVersion,
		DarkMode:         false,
		SidebarCollapsed: true,
		CalendarView:     "week",
		CurrentView:      "today",
	}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := Load(path)
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadFutureVersionReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	content := "version: 99\ndark_mode: false\ncurrent_view: dashboard\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	got := Load(path)
	if got != Default() {
		t.Errorf("Load on future version = %+v, want defaults", got)
	}
}

func TestLoadMigratesUnversionedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	content := "theme: light\nsidebar_collapsed: true\ncurrent_view: upcoming\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	got := Load(path)
	if got.Version != SchemaVersion {
		t.Errorf("migrated version = %d, want %d", got.Version, SchemaVersion)
	}
	if got.DarkMode {
		t.Error("theme: light not migrated to dark_mode: false")
	}
	if !got.SidebarCollapsed || got.CurrentView != "upcoming" {
		t.Errorf("migrated prefs = %+v", got)
	}
	if got.CalendarView != "month" {
		t.Errorf("calendar view = %q, want default month", got.CalendarView)
	}
}

func TestLoadMalformedFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	got := Load(path)
	if got != Default() {
		t.Errorf("Load on malformed file = %+v, want defaults", got)
	}
}
