package local_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/tests/testutil"
)

func TestSignUpAndSignIn(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()

	session, err := b.SignUp(ctx, backend.Credentials{Email: "Alice@Example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if session.User.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", session.User.Email)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Error("session missing tokens")
	}

	again, err := b.SignIn(ctx, backend.Credentials{Email: "alice@example.com", Password: "secret"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if again.User.ID != session.User.ID {
		t.Errorf("SignIn returned user %s, want %s", again.User.ID, session.User.ID)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()

	testutil.SignUpTestUser(t, b, "bob@example.com")

	_, err := b.SignIn(ctx, backend.Credentials{Email: "bob@example.com", Password: "wrong"})
	if !backend.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()

	testutil.SignUpTestUser(t, b, "carol@example.com")

	_, err := b.SignUp(ctx, backend.Credentials{Email: "carol@example.com", Password: "other"})
	if !backend.IsAuthError(err) {
		t.Fatalf("expected auth error for duplicate email, got %v", err)
	}
}

func TestRestoreSession(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()

	session := testutil.SignUpTestUser(t, b, "dave@example.com")

	restored, err := b.RestoreSession(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("RestoreSession: %v", err)
	}
	if restored.User.ID != session.User.ID {
		t.Errorf("restored user %s, want %s", restored.User.ID, session.User.ID)
	}
	if restored.AccessToken == "" {
		t.Error("restored session missing access token")
	}
}

func TestRestoreSessionAfterSignOut(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()

	session := testutil.SignUpTestUser(t, b, "erin@example.com")

	if err := b.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	_, err := b.RestoreSession(ctx, session.RefreshToken)
	if !backend.IsAuthError(err) {
		t.Fatalf("expected auth error after sign-out, got %v", err)
	}
}

func TestCreateTaskDefaults(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	session := testutil.SignUpTestUser(t, b, "frank@example.com")

	task, err := b.CreateTask(ctx, model.Task{UserID: session.User.ID, Title: "first"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == "" {
		t.Error("task id not assigned")
	}
	if task.Status != model.StatusInbox {
		t.Errorf("status = %q, want inbox", task.Status)
	}
	if task.Priority != model.PriorityMedium {
		t.Errorf("priority = %q, want medium", task.Priority)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped")
	}
}

func TestCreateTaskEmptyTitle(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "grace@example.com")

	_, err := b.CreateTask(context.Background(), model.Task{UserID: session.User.ID, Title: "   "})
	if err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestCreateTaskOrderIndexAboveMax(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	session := testutil.SignUpTestUser(t, b, "heidi@example.com")

	first, err := b.CreateTask(ctx, model.Task{UserID: session.User.ID, Title: "a", OrderIndex: 41})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if first.OrderIndex != 41 {
		t.Errorf("explicit order index overridden: %d", first.OrderIndex)
	}

	second, err := b.CreateTask(ctx, model.Task{UserID: session.User.ID, Title: "b"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if second.OrderIndex != 42 {
		t.Errorf("defaulted order index = %d, want 42", second.OrderIndex)
	}
}

func TestUpdateTaskPatch(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	session := testutil.SignUpTestUser(t, b, "ivan@example.com")

	task, err := b.CreateTask(ctx, model.Task{UserID: session.User.ID, Title: "draft"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	updated, err := b.UpdateTask(ctx, task.ID, model.TaskPatch{
		Title:  model.String("final"),
		Status: model.String(model.StatusCompleted),
	})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if updated.Title != "final" {
		t.Errorf("title = %q, want final", updated.Title)
	}
	if updated.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Error("CompletedAt not set on completion")
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) && !updated.UpdatedAt.Equal(task.UpdatedAt) {
		t.Error("UpdatedAt went backwards")
	}

	tasks, err := b.FetchTasks(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "final" {
		t.Errorf("fetched tasks = %+v, want single final", tasks)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	b := testutil.NewTestBackend(t)

	_, err := b.UpdateTask(context.Background(), "missing", model.TaskPatch{Title: model.String("x")})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	session := testutil.SignUpTestUser(t, b, "judy@example.com")

	task, err := b.CreateTask(ctx, model.Task{UserID: session.User.ID, Title: "gone"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := b.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}

	tasks, err := b.FetchTasks(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}

	if err := b.DeleteTask(ctx, task.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestChecklistRoundTrip(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	session := testutil.SignUpTestUser(t, b, "kate@example.com")

	task, err := b.CreateTask(ctx, model.Task{UserID: session.User.ID, Title: "with checklist"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	first, err := b.AddChecklistItem(ctx, model.ChecklistItem{TaskID: task.ID, Text: "step one"})
	if err != nil {
		t.Fatalf("AddChecklistItem: %v", err)
	}
	second, err := b.AddChecklistItem(ctx, model.ChecklistItem{TaskID: task.ID, Text: "step two"})
	if err != nil {
		t.Fatalf("AddChecklistItem: %v", err)
	}
	if second.Order <= first.Order {
		t.Errorf("second item order %d not above first %d", second.Order, first.Order)
	}

	first.Done = true
	if err := b.UpdateChecklistItem(ctx, first); err != nil {
		t.Fatalf("UpdateChecklistItem: %v", err)
	}

	tasks, err := b.FetchTasks(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 1 || len(tasks[0].Checklist) != 2 {
		t.Fatalf("expected 1 task with 2 checklist items, got %+v", tasks)
	}
	if !tasks[0].Checklist[0].Done {
		t.Error("first checklist item not marked done")
	}

	if err := b.DeleteChecklistItem(ctx, task.ID, second.ID); err != nil {
		t.Fatalf("DeleteChecklistItem: %v", err)
	}
	tasks, _ = b.FetchTasks(ctx, session.User.ID)
	if len(tasks[0].Checklist) != 1 {
		t.Errorf("expected 1 checklist item after delete, got %d", len(tasks[0].Checklist))
	}
}

func TestProjectCRUD(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	session := testutil.SignUpTestUser(t, b, "liam@example.com")

	project, err := b.CreateProject(ctx, model.Project{UserID: session.User.ID, Name: "Home"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	updated, err := b.UpdateProject(ctx, project.ID, model.ProjectPatch{Name: model.String("Work")})
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if updated.Name != "Work" {
		t.Errorf("name = %q, want Work", updated.Name)
	}

	projects, err := b.FetchProjects(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("FetchProjects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Work" {
		t.Errorf("fetched projects = %+v", projects)
	}

	if err := b.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	projects, _ = b.FetchProjects(ctx, session.User.ID)
	if len(projects) != 0 {
		t.Errorf("expected no projects after delete, got %d", len(projects))
	}
}

func TestSectionCRUD(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	session := testutil.SignUpTestUser(t, b, "mona@example.com")

	section, err := b.CreateSection(ctx, model.Section{UserID: session.User.ID, Name: "Morning"})
	if err != nil {
		t.Fatalf("CreateSection: %v", err)
	}

	section.Collapsed = true
	updated, err := b.UpdateSection(ctx, section)
	if err != nil {
		t.Fatalf("UpdateSection: %v", err)
	}
	if !updated.Collapsed {
		t.Error("collapsed flag not persisted")
	}

	sections, err := b.FetchSections(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("FetchSections: %v", err)
	}
	if len(sections) != 1 || !sections[0].Collapsed {
		t.Errorf("fetched sections = %+v", sections)
	}

	if err := b.DeleteSection(ctx, section.ID); err != nil {
		t.Fatalf("DeleteSection: %v", err)
	}
}

func TestFetchTasksScopedToUser(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx := context.Background()
	alice := testutil.SignUpTestUser(t, b, "alice@scope.test")
	bob := testutil.SignUpTestUser(t, b, "bob@scope.test")

	if _, err := b.CreateTask(ctx, model.Task{UserID: alice.User.ID, Title: "mine"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	tasks, err := b.FetchTasks(ctx, bob.User.ID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("bob sees %d of alice's tasks", len(tasks))
	}
}

func TestSubscribeReceivesWrites(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := testutil.SignUpTestUser(t, b, "nina@example.com")

	feed, err := b.Subscribe(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	task, err := b.CreateTask(ctx, model.Task{UserID: session.User.ID, Title: "watched"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	event := waitForEvent(t, feed)
	if event.Type != backend.EventInsert || event.Table != backend.TableTasks {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Task == nil || event.Task.ID != task.ID {
		t.Fatalf("insert event missing task payload: %+v", event)
	}

	if _, err := b.UpdateTask(ctx, task.ID, model.TaskPatch{Title: model.String("renamed")}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	event = waitForEvent(t, feed)
	if event.Type != backend.EventUpdate {
		t.Fatalf("expected UPDATE, got %+v", event)
	}
	if event.OldTask == nil || event.OldTask.Title != "watched" {
		t.Errorf("update event missing old payload: %+v", event)
	}

	if err := b.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	event = waitForEvent(t, feed)
	if event.Type != backend.EventDelete || event.OldTask == nil {
		t.Fatalf("expected DELETE with old payload, got %+v", event)
	}
}

func TestSubscribeIsolatedPerUser(t *testing.T) {
	b := testutil.NewTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice := testutil.SignUpTestUser(t, b, "alice@feed.test")
	bob := testutil.SignUpTestUser(t, b, "bob@feed.test")

	bobFeed, err := b.Subscribe(ctx, bob.User.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := b.CreateTask(ctx, model.Task{UserID: alice.User.ID, Title: "private"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	select {
	case event := <-bobFeed:
		t.Fatalf("bob received alice's event: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "oscar@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	feed, err := b.Subscribe(ctx, session.User.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-feed:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("feed channel not closed after cancel")
	}
}

func waitForEvent(t *testing.T, feed <-chan backend.ChangeEvent) backend.ChangeEvent {
	t.Helper()
	select {
	case event, ok := <-feed:
		if !ok {
			t.Fatal("feed channel closed unexpectedly")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return backend.ChangeEvent{}
	}
}
