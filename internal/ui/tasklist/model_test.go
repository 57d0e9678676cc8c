package tasklist

import (
	"testing"
	"time"

	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/state"
)

func seedStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.New()
	s.SetSections([]model.Section{
		{ID: "s1", Name: "Morning", Order: 0},
		{ID: "s2", Name: "Evening", Order: 1, Collapsed: true},
	})
	s1, s2 := "s1", "s2"
	s.SetTasks([]model.Task{
		{ID: "t1", Title: "walk dog", Status: model.StatusToday, SectionID: &s1, OrderIndex: 0},
		{ID: "t2", Title: "read book", Status: model.StatusToday, SectionID: &s2, OrderIndex: 0},
		{ID: "t3", Title: "loose end", Status: model.StatusToday, OrderIndex: 0},
		{ID: "t4", Title: "inbox item", Status: model.StatusInbox, OrderIndex: 0},
	})
	return s
}

func TestBuildRowsGroupsBySection(t *testing.T) {
	s := seedStore(t)

	rows := buildRows(s, state.ViewToday, "", "")

	// Morning header, its task, Evening header (collapsed, task
	// hidden), then the sectionless task last.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4: %+v", len(rows), rows)
	}
	if sec, ok := rows[0].(SectionItem); !ok || sec.Section.ID != "s1" {
		t.Errorf("row 0 = %+v, want Morning header", rows[0])
	}
	if task, ok := rows[1].(TaskItem); !ok || task.Task.ID != "t1" {
		t.Errorf("row 1 = %+v, want t1", rows[1])
	}
	if sec, ok := rows[2].(SectionItem); !ok || sec.Section.ID != "s2" || sec.Count != 1 {
		t.Errorf("row 2 = %+v, want collapsed Evening header with count 1", rows[2])
	}
	if task, ok := rows[3].(TaskItem); !ok || task.Task.ID != "t3" {
		t.Errorf("row 3 = %+v, want sectionless t3 last", rows[3])
	}
}

func TestVisibleTasksScopesByView(t *testing.T) {
	s := seedStore(t)

	tasks := visibleTasks(s, state.ViewInbox, "", "")
	if len(tasks) != 1 || tasks[0].ID != "t4" {
		t.Errorf("inbox tasks = %+v, want only t4", tasks)
	}
}

func TestVisibleTasksProjectScopeExcludesCompleted(t *testing.T) {
	s := state.New()
	p := "p1"
	now := time.Now()
	s.SetTasks([]model.Task{
		{ID: "t1", Title: "open", Status: model.StatusToday, ProjectID: &p},
		{ID: "t2", Title: "done", Status: model.StatusCompleted, ProjectID: &p, CompletedAt: &now},
		{ID: "t3", Title: "other project", Status: model.StatusToday},
	})

	tasks := visibleTasks(s, state.ViewProjects, "p1", "")
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Errorf("project tasks = %+v, want only t1", tasks)
	}
}

func TestVisibleTasksSearchFiltersTitleAndDescription(t *testing.T) {
	s := state.New()
	s.SetTasks([]model.Task{
		{ID: "t1", Title: "Buy groceries", Status: model.StatusInbox},
		{ID: "t2", Title: "Call plumber", Description: "about GROCERY bill", Status: model.StatusInbox},
		{ID: "t3", Title: "Unrelated", Status: model.StatusInbox},
	})

	tasks := visibleTasks(s, state.ViewInbox, "", "grocer")
	if len(tasks) != 2 {
		t.Fatalf("search results = %+v, want t1 and t2", tasks)
	}
}
