package app

import (
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/prefs"
	"github.com/avhall/taskdeck/internal/state"
	appsync "github.com/avhall/taskdeck/internal/sync"
	"github.com/avhall/taskdeck/internal/ui/command"
)

func newTestApp(t *testing.T) (Model, *state.Store) {
	t.Helper()
	store := state.New()
	syncer := appsync.New(store, nil)
	prefsPath := filepath.Join(t.TempDir(), "prefs.yaml")
	m := New(store, syncer, prefs.Default(), prefsPath, nil)
	m.ready = true
	m.currentView = ViewTasks
	m.previousView = ViewTasks
	return m, store
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewKeySwitchesScope(t *testing.T) {
	m, store := newTestApp(t)

	updated, _ := m.Update(keyMsg("2"))
	m = updated.(Model)

	if store.View() != state.ViewToday {
		t.Errorf("store view = %q, want today", store.View())
	}
	if m.currentView != ViewTasks {
		t.Errorf("currentView = %v, want ViewTasks", m.currentView)
	}
	if m.prefs.CurrentView != state.ViewToday {
		t.Errorf("prefs view = %q, want today", m.prefs.CurrentView)
	}
}

func TestDashboardKeySwitchesView(t *testing.T) {
	m, _ := newTestApp(t)

	updated, _ := m.Update(keyMsg("0"))
	m = updated.(Model)

	if m.currentView != ViewDashboard {
		t.Errorf("currentView = %v, want ViewDashboard", m.currentView)
	}
}

func TestUnknownCommandShowsStatus(t *testing.T) {
	m, _ := newTestApp(t)

	updated, _ := m.Update(command.ExecuteMsg{Name: "frobnicate"})
	m = updated.(Model)

	if m.statusText == "" || !m.statusErr {
		t.Errorf("expected error status, got %q (err=%v)", m.statusText, m.statusErr)
	}
}

func TestProjectCommandScopesTaskList(t *testing.T) {
	m, store := newTestApp(t)
	store.SetProjects([]model.Project{{ID: "p1", Name: "Chores"}})

	updated, _ := m.Update(command.ExecuteMsg{Name: "project", Args: "Chores"})
	m = updated.(Model)

	if m.currentView != ViewTasks {
		t.Errorf("currentView = %v, want ViewTasks", m.currentView)
	}
	if store.View() != state.ViewProjects {
		t.Errorf("store view = %q, want projects", store.View())
	}
}

func TestCaptureCommandWithoutConfig(t *testing.T) {
	m, _ := newTestApp(t)

	updated, cmd := m.Update(command.ExecuteMsg{Name: "capture"})
	m = updated.(Model)

	if cmd != nil {
		t.Error("expected no command when capture is not configured")
	}
	if !m.statusErr {
		t.Errorf("expected error status, got %q", m.statusText)
	}
}

func TestNextOrderIndexClampsAboveScope(t *testing.T) {
	m, store := newTestApp(t)
	sec := "s1"
	future := time.Now().Add(24 * time.Hour).UnixMilli()
	store.SetTasks([]model.Task{
		{ID: "t1", Status: model.StatusInbox, OrderIndex: future},
		{ID: "t2", Status: model.StatusInbox, SectionID: &sec, OrderIndex: future + 500},
		{ID: "t3", Status: model.StatusToday, OrderIndex: future + 1000},
	})

	// Sectionless inbox scope: t1's index bounds it, not t2's or t3's.
	got := m.nextOrderIndex(model.Task{Status: model.StatusInbox})
	if got <= future {
		t.Errorf("index = %d, want > %d (scope max)", got, future)
	}
	if got > future+500 {
		t.Errorf("index = %d crossed into another scope's range", got)
	}
}

func TestNextOrderIndexEmptyScopeUsesClock(t *testing.T) {
	m, _ := newTestApp(t)

	before := time.Now().UnixMilli()
	got := m.nextOrderIndex(model.Task{Status: model.StatusUpcoming})
	after := time.Now().UnixMilli()

	if got < before || got > after {
		t.Errorf("index = %d, want between %d and %d", got, before, after)
	}
}

func TestHelpToggle(t *testing.T) {
	m, _ := newTestApp(t)

	updated, _ := m.Update(keyMsg("?"))
	m = updated.(Model)
	if m.currentView != ViewHelp {
		t.Fatalf("currentView = %v, want ViewHelp", m.currentView)
	}

	updated, _ = m.Update(keyMsg("?"))
	m = updated.(Model)
	if m.currentView != ViewTasks {
		t.Errorf("currentView = %v, want ViewTasks after closing help", m.currentView)
	}
}
