// Package prefs persists the device-local slice of UI state: theme,
// sidebar, and view selections. Task data never lands here; it always
// comes from the backend.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SchemaVersion is the current prefs file layout version. Files with a
// newer version than this are replaced with defaults rather than
// half-parsed.
const SchemaVersion = 1

// Prefs is the persisted subset of UI state.
type Prefs struct {
	Version          int    `mapstructure:"version" yaml:"version"`
	DarkMode         bool   `mapstructure:"dark_mode" yaml:"dark_mode"`
	SidebarCollapsed bool   `mapstructure:"sidebar_collapsed" yaml:"sidebar_collapsed"`
	CalendarView     string `mapstructure:"calendar_view" yaml:"calendar_view"`
	CurrentView      string `mapstructure:"current_view" yaml:"current_view"`
}

// DefaultPath returns the default prefs file location,
// ~/.config/taskdeck/prefs.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "prefs.yaml")
	}
	return filepath.Join(home, ".config", "taskdeck", "prefs.yaml")
}

// Default returns the prefs used on first run and after a failed load.
func Default() Prefs {
	return Prefs{
		Version:      SchemaVersion,
		DarkMode:     true,
		CalendarView: "month",
		CurrentView:  "inbox",
	}
}

// Load reads prefs from the given YAML file. A missing, unreadable, or
// future-versioned file yields defaults; successfully starting always
// beats preserving stale preferences.
func Load(path string) Prefs {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return Default()
	}

	version := v.GetInt("version")
	if version > SchemaVersion {
		return Default()
	}
	if version == 0 {
		return migrateV0(v)
	}

	prefs := Default()
	if err := v.Unmarshal(&prefs); err != nil {
		return Default()
	}
	prefs.Version = SchemaVersion
	return prefs
}

// migrateV0 converts the unversioned layout, which stored the theme as
// a string, into the current shape.
func migrateV0(v *viper.Viper) Prefs {
	prefs := Default()
	if v.IsSet("theme") {
		prefs.DarkMode = v.GetString("theme") != "light"
	}
	if v.IsSet("sidebar_collapsed") {
		prefs.SidebarCollapsed = v.GetBool("sidebar_collapsed")
	}
	if v.IsSet("calendar_view") {
		prefs.CalendarView = v.GetString("calendar_view")
	}
	if v.IsSet("current_view") {
		prefs.CurrentView = v.GetString("current_view")
	}
	return prefs
}

// Save writes prefs to a YAML file at path, creating parent directories
// if needed.
func Save(path string, prefs Prefs) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating prefs directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("version", SchemaVersion)
	v.Set("dark_mode", prefs.DarkMode)
	v.Set("sidebar_collapsed", prefs.SidebarCollapsed)
	v.Set("calendar_view", prefs.CalendarView)
	v.Set("current_view", prefs.CurrentView)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing prefs to %s: %w", path, err)
	}

	return nil
}
