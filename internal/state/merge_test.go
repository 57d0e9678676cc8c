package state

import (
	"reflect"
	"testing"
	"time"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
)

func taskEvent(typ backend.EventType, task *model.Task, old *model.Task) backend.ChangeEvent {
	return backend.ChangeEvent{Table: backend.TableTasks, Type: typ, Task: task, OldTask: old}
}

func TestApplyInsertIdempotent(t *testing.T) {
	s := New()
	task := model.Task{ID: "t1", Title: "from feed"}

	s.ApplyChange(taskEvent(backend.EventInsert, &task, nil))
	s.ApplyChange(taskEvent(backend.EventInsert, &task, nil))

	if got := len(s.Tasks()); got != 1 {
		t.Errorf("re-delivered insert duplicated the record: %d copies", got)
	}
}

func TestApplyUpdateReplacesOlderLocal(t *testing.T) {
	s := New()
	s.AddTask(model.Task{
		ID:        "t1",
		Title:     "stale local",
		UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	incoming := model.Task{
		ID:        "t1",
		Title:     "fresh remote",
		UpdatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	s.ApplyChange(taskEvent(backend.EventUpdate, &incoming, nil))

	got, _ := s.TaskByID("t1")
	if got.Title != "fresh remote" {
		t.Errorf("title = %q, want remote replacement", got.Title)
	}
	if got.SyncState != model.SyncCommitted {
		t.Errorf("replaced record sync state = %q, want committed", got.SyncState)
	}
}

func TestApplyUpdateKeepsNewerLocal(t *testing.T) {
	s := New()
	s.AddTask(model.Task{
		ID:        "t1",
		Title:     "newer local edit",
		UpdatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	incoming := model.Task{
		ID:        "t1",
		Title:     "older remote",
		UpdatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	s.ApplyChange(taskEvent(backend.EventUpdate, &incoming, nil))

	got, _ := s.TaskByID("t1")
	if got.Title != "newer local edit" {
		t.Errorf("older remote update clobbered a newer local write: %q", got.Title)
	}
}

func TestApplyUpdateUnknownIDStoresRecord(t *testing.T) {
	s := New()
	incoming := model.Task{ID: "t9", Title: "seen first via update"}
	s.ApplyChange(taskEvent(backend.EventUpdate, &incoming, nil))

	if _, ok := s.TaskByID("t9"); !ok {
		t.Error("update for unknown id was dropped; the record exists remotely")
	}
}

func TestApplyDeleteAbsentLeavesCollectionUnchanged(t *testing.T) {
	s := New()
	s.AddTask(model.Task{ID: "t1", Title: "survivor"})
	before := s.Tasks()

	s.ApplyChange(taskEvent(backend.EventDelete, nil, &model.Task{ID: "ghost"}))

	after := s.Tasks()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("delete of absent id changed the collection:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestApplyDeleteRemovesRecord(t *testing.T) {
	s := New()
	s.AddTask(model.Task{ID: "t1"})
	s.ApplyChange(taskEvent(backend.EventDelete, nil, &model.Task{ID: "t1"}))
	if len(s.Tasks()) != 0 {
		t.Error("delete event did not remove the record")
	}
}

func TestApplyProjectEvents(t *testing.T) {
	s := New()
	p := model.Project{ID: "p1", Name: "Feed project", UpdatedAt: time.Now()}

	s.ApplyChange(backend.ChangeEvent{Table: backend.TableProjects, Type: backend.EventInsert, Project: &p})
	s.ApplyChange(backend.ChangeEvent{Table: backend.TableProjects, Type: backend.EventInsert, Project: &p})
	if got := len(s.Projects()); got != 1 {
		t.Fatalf("project count = %d, want 1", got)
	}

	renamed := p
	renamed.Name = "Renamed"
	renamed.UpdatedAt = p.UpdatedAt.Add(time.Minute)
	s.ApplyChange(backend.ChangeEvent{Table: backend.TableProjects, Type: backend.EventUpdate, Project: &renamed})
	got, _ := s.ProjectByID("p1")
	if got.Name != "Renamed" {
		t.Errorf("project name = %q, want %q", got.Name, "Renamed")
	}

	s.ApplyChange(backend.ChangeEvent{Table: backend.TableProjects, Type: backend.EventDelete, OldProject: &p})
	if len(s.Projects()) != 0 {
		t.Error("project delete event not applied")
	}
}

func TestApplySectionEvents(t *testing.T) {
	s := New()
	sec := model.Section{ID: "s1", Name: "Morning", Order: 0, UpdatedAt: time.Now()}

	s.ApplyChange(backend.ChangeEvent{Table: backend.TableSections, Type: backend.EventInsert, Section: &sec})
	if len(s.Sections()) != 1 {
		t.Fatal("section insert not applied")
	}

	collapsed := sec
	collapsed.Collapsed = true
	collapsed.UpdatedAt = sec.UpdatedAt.Add(time.Minute)
	s.ApplyChange(backend.ChangeEvent{Table: backend.TableSections, Type: backend.EventUpdate, Section: &collapsed})
	if !s.Sections()[0].Collapsed {
		t.Error("section update not applied")
	}

	s.ApplyChange(backend.ChangeEvent{Table: backend.TableSections, Type: backend.EventDelete, OldSection: &sec})
	if len(s.Sections()) != 0 {
		t.Error("section delete event not applied")
	}
}

func TestNewerWinsPolicy(t *testing.T) {
	older := model.Task{ID: "t", Title: "older", UpdatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := model.Task{ID: "t", Title: "newer", UpdatedAt: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}

	if got := NewerWins(older, newer); got.Title != "newer" {
		t.Errorf("NewerWins(older local, newer incoming) = %q", got.Title)
	}
	if got := NewerWins(newer, older); got.Title != "newer" {
		t.Errorf("NewerWins(newer local, older incoming) = %q", got.Title)
	}
	// Equal timestamps: incoming wins (apply in delivery order).
	tie := older
	tie.Title = "incoming tie"
	if got := NewerWins(older, tie); got.Title != "incoming tie" {
		t.Errorf("NewerWins tie = %q, want incoming", got.Title)
	}
}
