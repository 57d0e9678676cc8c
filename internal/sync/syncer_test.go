package sync

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/state"
	"github.com/avhall/taskdeck/tests/testutil"
)

// Commands are plain func() tea.Msg closures, so tests invoke them
// directly instead of spinning up a Bubble Tea program.

func newTestSyncer(t *testing.T) (*Syncer, *state.Store, backend.Session) {
	t.Helper()
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "sync@example.com")
	store := state.New()
	store.SetUser(&session.User)
	return New(store, b), store, session
}

func TestInitialLoadPopulatesStore(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	created := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "seeded"})()
	if msg := created.(WriteResultMsg); msg.Err != nil {
		t.Fatalf("CreateTask: %v", msg.Err)
	}
	store.SetTasks(nil)

	msg := syncer.InitialLoad(session.User.ID)().(InitialLoadMsg)
	if msg.Err != nil {
		t.Fatalf("InitialLoad: %v", msg.Err)
	}

	tasks := store.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "seeded" {
		t.Fatalf("store tasks = %+v", tasks)
	}
	if tasks[0].SyncState != model.SyncCommitted {
		t.Errorf("loaded task sync state = %q, want committed", tasks[0].SyncState)
	}
	if store.Loading() {
		t.Error("loading flag still set after load")
	}
}

func TestCreateTaskWritesBackOnSuccess(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	msg := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "new"})().(WriteResultMsg)
	if msg.Err != nil {
		t.Fatalf("CreateTask: %v", msg.Err)
	}

	task, ok := store.TaskByID(msg.ID)
	if !ok {
		t.Fatal("created task not written back to store")
	}
	if task.SyncState != model.SyncCommitted {
		t.Errorf("sync state = %q, want committed", task.SyncState)
	}
}

func TestCreateTaskFailureLeavesStoreUntouched(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	msg := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "  "})().(WriteResultMsg)
	if msg.Err == nil {
		t.Fatal("expected error for blank title")
	}
	if len(store.Tasks()) != 0 {
		t.Error("failed create still reached the store")
	}
}

func TestUpdateTaskMarksFailedOnError(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	created := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "target"})().(WriteResultMsg)
	if created.Err != nil {
		t.Fatalf("CreateTask: %v", created.Err)
	}

	cmd := syncer.UpdateTask(created.ID, model.TaskPatch{Title: model.String("  ")})
	if task, _ := store.TaskByID(created.ID); task.SyncState != model.SyncPending {
		t.Errorf("sync state before write = %q, want pending", task.SyncState)
	}

	msg := cmd().(WriteResultMsg)
	if msg.Err == nil {
		t.Fatal("expected error for blank title patch")
	}
	task, _ := store.TaskByID(created.ID)
	if task.SyncState != model.SyncFailed {
		t.Errorf("sync state after failure = %q, want failed", task.SyncState)
	}
	if task.Title != "target" {
		t.Errorf("local title changed on failed write: %q", task.Title)
	}
}

func TestUpdateTaskWritesBackAcknowledgedRecord(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	created := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "old"})().(WriteResultMsg)
	if created.Err != nil {
		t.Fatalf("CreateTask: %v", created.Err)
	}

	msg := syncer.UpdateTask(created.ID, model.TaskPatch{Title: model.String("new")})().(WriteResultMsg)
	if msg.Err != nil {
		t.Fatalf("UpdateTask: %v", msg.Err)
	}

	task, _ := store.TaskByID(created.ID)
	if task.Title != "new" || task.SyncState != model.SyncCommitted {
		t.Errorf("task after update = %+v", task)
	}
}

func TestDeleteTaskRemovesFromStore(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	created := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "doomed"})().(WriteResultMsg)
	if created.Err != nil {
		t.Fatalf("CreateTask: %v", created.Err)
	}

	msg := syncer.DeleteTask(created.ID)().(WriteResultMsg)
	if msg.Err != nil {
		t.Fatalf("DeleteTask: %v", msg.Err)
	}
	if _, ok := store.TaskByID(created.ID); ok {
		t.Error("deleted task still in store")
	}
}

func TestReorderTasksPersistsOrderIndexes(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	first := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "a"})().(WriteResultMsg)
	second := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "b"})().(WriteResultMsg)
	if first.Err != nil || second.Err != nil {
		t.Fatalf("CreateTask: %v %v", first.Err, second.Err)
	}

	a, _ := store.TaskByID(first.ID)
	b, _ := store.TaskByID(second.ID)
	a.OrderIndex, b.OrderIndex = 1, 0

	msg := syncer.ReorderTasks([]model.Task{a, b})().(WriteResultMsg)
	if msg.Err != nil {
		t.Fatalf("ReorderTasks: %v", msg.Err)
	}

	a2, _ := store.TaskByID(first.ID)
	b2, _ := store.TaskByID(second.ID)
	if a2.OrderIndex != 1 || b2.OrderIndex != 0 {
		t.Errorf("order indexes = %d, %d; want 1, 0", a2.OrderIndex, b2.OrderIndex)
	}
}

func TestProjectLifecycle(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	created := syncer.CreateProject(model.Project{UserID: session.User.ID, Name: "Home"})().(WriteResultMsg)
	if created.Err != nil {
		t.Fatalf("CreateProject: %v", created.Err)
	}

	msg := syncer.UpdateProject(created.ID, model.ProjectPatch{Name: model.String("Work")})().(WriteResultMsg)
	if msg.Err != nil {
		t.Fatalf("UpdateProject: %v", msg.Err)
	}
	project, _ := store.ProjectByID(created.ID)
	if project.Name != "Work" {
		t.Errorf("project name = %q", project.Name)
	}

	if msg := syncer.DeleteProject(created.ID)().(WriteResultMsg); msg.Err != nil {
		t.Fatalf("DeleteProject: %v", msg.Err)
	}
	if _, ok := store.ProjectByID(created.ID); ok {
		t.Error("deleted project still in store")
	}
}

func TestSectionLifecycle(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	created := syncer.CreateSection(model.Section{UserID: session.User.ID, Name: "Morning"})().(WriteResultMsg)
	if created.Err != nil {
		t.Fatalf("CreateSection: %v", created.Err)
	}
	if len(store.Sections()) != 1 {
		t.Fatalf("sections = %+v", store.Sections())
	}

	section := store.Sections()[0]
	section.Collapsed = true
	if msg := syncer.UpdateSection(section)().(WriteResultMsg); msg.Err != nil {
		t.Fatalf("UpdateSection: %v", msg.Err)
	}
	if !store.Sections()[0].Collapsed {
		t.Error("collapsed flag not written back")
	}

	if msg := syncer.DeleteSection(section.ID)().(WriteResultMsg); msg.Err != nil {
		t.Fatalf("DeleteSection: %v", msg.Err)
	}
	if len(store.Sections()) != 0 {
		t.Error("deleted section still in store")
	}
}

func TestFeedMergesIntoStore(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "feed@example.com")
	store := state.New()
	store.SetUser(&session.User)
	syncer := New(store, b)
	defer syncer.StopFeed()

	wait := syncer.StartFeed(session.User.ID)

	// Write through the backend directly so the only path into the
	// store is the change feed.
	task, err := b.CreateTask(context.Background(), model.Task{
		UserID: session.User.ID, Title: "via feed",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	msg := waitForFeedMsg(t, wait)
	feedMsg, ok := msg.(ChangeFeedMsg)
	if !ok {
		t.Fatalf("unexpected msg %T", msg)
	}
	if feedMsg.Event.Type != backend.EventInsert {
		t.Errorf("event type = %s", feedMsg.Event.Type)
	}

	stored, ok := store.TaskByID(task.ID)
	if !ok {
		t.Fatal("feed insert did not reach the store")
	}
	if stored.SyncState != model.SyncCommitted {
		t.Errorf("sync state = %q, want committed", stored.SyncState)
	}
}

func TestSignOutClearsStore(t *testing.T) {
	syncer, store, session := newTestSyncer(t)

	if msg := syncer.CreateTask(model.Task{UserID: session.User.ID, Title: "x"})().(WriteResultMsg); msg.Err != nil {
		t.Fatalf("CreateTask: %v", msg.Err)
	}

	msg := syncer.SignOut()().(SignedOutMsg)
	if msg.Err != nil {
		t.Fatalf("SignOut: %v", msg.Err)
	}
	if store.User() != nil || len(store.Tasks()) != 0 {
		t.Error("store not cleared on sign-out")
	}
}

// expiryClient wraps a backend with a fixed token deadline so refresh
// scheduling can be exercised without real JWTs.
type expiryClient struct {
	backend.Client
	exp time.Time
}

func (c expiryClient) TokenExpiry(string) (time.Time, error) {
	return c.exp, nil
}

func TestScheduleRefreshSignalsBeforeExpiry(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "refresh@example.com")
	session.RefreshToken = "refresh-1"

	syncer := New(state.New(), expiryClient{Client: b, exp: time.Now().Add(refreshLeeway / 2)})

	cmd := syncer.ScheduleRefresh(session)
	if cmd == nil {
		t.Fatal("expected a refresh cmd for an expiring token")
	}
	raw := cmd()
	msg, ok := raw.(RefreshDueMsg)
	if !ok {
		t.Fatalf("cmd yielded %T, want RefreshDueMsg", raw)
	}
	if msg.RefreshToken != "refresh-1" {
		t.Errorf("refresh token = %q, want refresh-1", msg.RefreshToken)
	}
}

func TestScheduleRefreshSkipsBackendsWithoutExpiry(t *testing.T) {
	syncer, _, session := newTestSyncer(t)

	if cmd := syncer.ScheduleRefresh(session); cmd != nil {
		t.Error("expected no refresh cmd when the backend has no token expiry")
	}
}

func TestScheduleRefreshSkipsTokensWithoutDeadline(t *testing.T) {
	b := testutil.NewTestBackend(t)
	session := testutil.SignUpTestUser(t, b, "nodeadline@example.com")
	session.RefreshToken = "refresh-2"

	syncer := New(state.New(), expiryClient{Client: b})

	if cmd := syncer.ScheduleRefresh(session); cmd != nil {
		t.Error("expected no refresh cmd for a token without a deadline")
	}
}

func waitForFeedMsg(t *testing.T, wait tea.Cmd) tea.Msg {
	t.Helper()

	done := make(chan tea.Msg, 1)
	go func() { done <- wait() }()

	select {
	case msg := <-done:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed message")
		return nil
	}
}
