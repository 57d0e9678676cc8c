// Package sync bridges the backend and the local state store: session
// restore, initial load, the realtime change feed, and write commands
// with per-record pending/committed/failed tracking.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/state"
)

// writeTimeout bounds a single remote write.
const writeTimeout = 30 * time.Second

// restoreTimeout bounds the startup session restore; on expiry the app
// falls back to the sign-in screen.
const restoreTimeout = 10 * time.Second

// refreshLeeway is how long before access-token expiry the session is
// proactively renewed.
const refreshLeeway = time.Minute

// SessionMsg is a tea.Msg sent when a sign-in, sign-up, code exchange,
// or session restore completes.
type SessionMsg struct {
	Session backend.Session
	Err     error
}

// InitialLoadMsg is a tea.Msg sent when the post-sign-in fetch of all
// collections completes. The store is already populated on success.
type InitialLoadMsg struct {
	Err error
}

// ChangeFeedMsg is a tea.Msg sent for each realtime event after it has
// been merged into the store.
type ChangeFeedMsg struct {
	Event backend.ChangeEvent
}

// FeedDroppedMsg is a tea.Msg sent when the realtime feed closes; the
// app resubscribes on receipt.
type FeedDroppedMsg struct{}

// WriteResultMsg is a tea.Msg sent when a background write completes.
// ID identifies the affected record; Err is nil on success.
type WriteResultMsg struct {
	ID  string
	Err error
}

// SignedOutMsg is a tea.Msg sent when sign-out completes.
type SignedOutMsg struct {
	Err error
}

// RefreshDueMsg is a tea.Msg sent when the access token is close to
// expiry; the app resumes the session with the carried refresh token.
type RefreshDueMsg struct {
	RefreshToken string
}

// Syncer coordinates all backend traffic for the app. Reads and the
// change feed flow into the state store; writes are issued as tea.Cmds
// that write back to the store only after the backend acknowledges.
type Syncer struct {
	store  *state.Store
	client backend.Client

	feedCh chan tea.Msg

	mu         gosync.Mutex
	feedCancel context.CancelFunc
}

// New creates a Syncer wiring the given backend to the given store.
func New(store *state.Store, client backend.Client) *Syncer {
	return &Syncer{
		store:  store,
		client: client,
		feedCh: make(chan tea.Msg, 16),
	}
}

// RestoreSession attempts to resume a saved session. The restore runs
// under a fixed timeout so a dead network cannot hang startup.
func (s *Syncer) RestoreSession(refreshToken string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
		defer cancel()

		session, err := s.client.RestoreSession(ctx, refreshToken)
		return SessionMsg{Session: session, Err: err}
	}
}

type tokenExpirer interface {
	TokenExpiry(token string) (time.Time, error)
}

// ScheduleRefresh returns a cmd that waits until shortly before the
// access token expires, then signals a session refresh. Nil when the
// backend does not expose token expiry or the token has no deadline.
func (s *Syncer) ScheduleRefresh(session backend.Session) tea.Cmd {
	expirer, ok := s.client.(tokenExpirer)
	if !ok || session.RefreshToken == "" {
		return nil
	}
	exp, err := expirer.TokenExpiry(session.AccessToken)
	if err != nil || exp.IsZero() {
		return nil
	}
	wait := time.Until(exp) - refreshLeeway
	if wait < 0 {
		wait = 0
	}
	token := session.RefreshToken
	return func() tea.Msg {
		time.Sleep(wait)
		return RefreshDueMsg{RefreshToken: token}
	}
}

// SignIn performs the password grant in the background.
func (s *Syncer) SignIn(creds backend.Credentials) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		session, err := s.client.SignIn(ctx, creds)
		return SessionMsg{Session: session, Err: err}
	}
}

// SignUp registers a new account in the background.
func (s *Syncer) SignUp(creds backend.Credentials) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		session, err := s.client.SignUp(ctx, creds)
		return SessionMsg{Session: session, Err: err}
	}
}

// ExchangeCode trades a pasted OAuth code for a session.
func (s *Syncer) ExchangeCode(code string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		session, err := s.client.ExchangeCode(ctx, code)
		return SessionMsg{Session: session, Err: err}
	}
}

// SignOut revokes the session and clears the store back to its
// signed-out shape. UI prefs are untouched; they belong to the device.
func (s *Syncer) SignOut() tea.Cmd {
	return func() tea.Msg {
		s.StopFeed()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		err := s.client.SignOut(ctx)

		s.store.SetUser(nil)
		s.store.SetTasks(nil)
		s.store.SetProjects(nil)
		s.store.SetSections(nil)
		return SignedOutMsg{Err: err}
	}
}

// InitialLoad fetches every collection for the signed-in user and
// installs them in the store. The loading flag is held for the whole
// fetch so views can show a spinner.
func (s *Syncer) InitialLoad(userID string) tea.Cmd {
	return func() tea.Msg {
		s.store.SetLoading(true)
		defer s.store.SetLoading(false)

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		tasks, err := s.client.FetchTasks(ctx, userID)
		if err != nil {
			return InitialLoadMsg{Err: fmt.Errorf("loading tasks: %w", err)}
		}
		projects, err := s.client.FetchProjects(ctx, userID)
		if err != nil {
			return InitialLoadMsg{Err: fmt.Errorf("loading projects: %w", err)}
		}
		sections, err := s.client.FetchSections(ctx, userID)
		if err != nil {
			return InitialLoadMsg{Err: fmt.Errorf("loading sections: %w", err)}
		}

		for i := range tasks {
			tasks[i].SyncState = model.SyncCommitted
		}
		s.store.SetTasks(tasks)
		s.store.SetProjects(projects)
		s.store.SetSections(sections)
		return InitialLoadMsg{}
	}
}

// StartFeed subscribes to the realtime change feed and returns the
// command that delivers its first message. Each event is merged into
// the store before surfacing as a ChangeFeedMsg.
func (s *Syncer) StartFeed(userID string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.feedCancel != nil {
		s.feedCancel()
	}
	s.feedCancel = cancel
	s.mu.Unlock()

	go func() {
		events, err := s.client.Subscribe(ctx, userID)
		if err != nil {
			s.send(FeedDroppedMsg{})
			return
		}
		for event := range events {
			s.store.ApplyChange(event)
			s.send(ChangeFeedMsg{Event: event})
		}
		if ctx.Err() == nil {
			s.send(FeedDroppedMsg{})
		}
	}()

	return s.WaitForNextMsg()
}

// StopFeed cancels the active feed subscription, if any.
func (s *Syncer) StopFeed() {
	s.mu.Lock()
	if s.feedCancel != nil {
		s.feedCancel()
		s.feedCancel = nil
	}
	s.mu.Unlock()
}

// WaitForNextMsg returns a tea.Cmd that waits for the next feed
// message. Call it again after each delivery to keep listening.
func (s *Syncer) WaitForNextMsg() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-s.feedCh
		if !ok {
			return nil
		}
		return msg
	}
}

// send delivers a feed message without blocking the reader goroutine.
func (s *Syncer) send(msg tea.Msg) {
	select {
	case s.feedCh <- msg:
	default:
	}
}

// CreateTask stores a new task remotely, then adds the acknowledged
// record to the store.
func (s *Syncer) CreateTask(task model.Task) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		stored, err := s.client.CreateTask(ctx, task)
		if err != nil {
			return WriteResultMsg{Err: fmt.Errorf("creating task: %w", err)}
		}
		stored.SyncState = model.SyncCommitted
		s.store.AddTask(stored)
		return WriteResultMsg{ID: stored.ID}
	}
}

// UpdateTask marks the record pending, issues the patch, and writes the
// acknowledged record back on success. On failure the record is marked
// failed and keeps its local contents.
func (s *Syncer) UpdateTask(id string, patch model.TaskPatch) tea.Cmd {
	s.store.MarkPending(id)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		stored, err := s.client.UpdateTask(ctx, id, patch)
		if err != nil {
			s.store.MarkFailed(id)
			return WriteResultMsg{ID: id, Err: fmt.Errorf("updating task: %w", err)}
		}
		stored.SyncState = model.SyncCommitted
		s.store.ReplaceTask(stored)
		return WriteResultMsg{ID: id}
	}
}

// DeleteTask removes a task remotely, then drops it from the store.
func (s *Syncer) DeleteTask(id string) tea.Cmd {
	s.store.MarkPending(id)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := s.client.DeleteTask(ctx, id); err != nil {
			s.store.MarkFailed(id)
			return WriteResultMsg{ID: id, Err: fmt.Errorf("deleting task: %w", err)}
		}
		s.store.DeleteTask(id)
		return WriteResultMsg{ID: id}
	}
}

// ReorderTasks persists a batch of order index changes produced by a
// move. Each write is an independent patch; the first failure aborts
// the rest and flags the affected record.
func (s *Syncer) ReorderTasks(tasks []model.Task) tea.Cmd {
	for _, t := range tasks {
		s.store.MarkPending(t.ID)
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		for _, t := range tasks {
			stored, err := s.client.UpdateTask(ctx, t.ID, model.TaskPatch{
				OrderIndex: model.Int64(t.OrderIndex),
			})
			if err != nil {
				s.store.MarkFailed(t.ID)
				return WriteResultMsg{ID: t.ID, Err: fmt.Errorf("reordering tasks: %w", err)}
			}
			stored.SyncState = model.SyncCommitted
			s.store.ReplaceTask(stored)
		}
		return WriteResultMsg{}
	}
}

// AddChecklistItem appends a checklist item remotely; the parent task
// is refreshed by the feed's follow-up UPDATE event.
func (s *Syncer) AddChecklistItem(item model.ChecklistItem) tea.Cmd {
	s.store.MarkPending(item.TaskID)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if _, err := s.client.AddChecklistItem(ctx, item); err != nil {
			s.store.MarkFailed(item.TaskID)
			return WriteResultMsg{ID: item.TaskID, Err: fmt.Errorf("adding checklist item: %w", err)}
		}
		s.store.MarkCommitted(item.TaskID)
		return WriteResultMsg{ID: item.TaskID}
	}
}

// UpdateChecklistItem updates a checklist item remotely.
func (s *Syncer) UpdateChecklistItem(item model.ChecklistItem) tea.Cmd {
	s.store.MarkPending(item.TaskID)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := s.client.UpdateChecklistItem(ctx, item); err != nil {
			s.store.MarkFailed(item.TaskID)
			return WriteResultMsg{ID: item.TaskID, Err: fmt.Errorf("updating checklist item: %w", err)}
		}
		s.store.MarkCommitted(item.TaskID)
		return WriteResultMsg{ID: item.TaskID}
	}
}

// DeleteChecklistItem removes a checklist item remotely.
func (s *Syncer) DeleteChecklistItem(taskID, id string) tea.Cmd {
	s.store.MarkPending(taskID)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := s.client.DeleteChecklistItem(ctx, taskID, id); err != nil {
			s.store.MarkFailed(taskID)
			return WriteResultMsg{ID: taskID, Err: fmt.Errorf("deleting checklist item: %w", err)}
		}
		s.store.MarkCommitted(taskID)
		return WriteResultMsg{ID: taskID}
	}
}

// CreateProject stores a new project remotely, then adds the
// acknowledged record to the store.
func (s *Syncer) CreateProject(project model.Project) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		stored, err := s.client.CreateProject(ctx, project)
		if err != nil {
			return WriteResultMsg{Err: fmt.Errorf("creating project: %w", err)}
		}
		s.store.AddProject(stored)
		return WriteResultMsg{ID: stored.ID}
	}
}

// UpdateProject patches a project remotely, writing back on success.
func (s *Syncer) UpdateProject(id string, patch model.ProjectPatch) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		stored, err := s.client.UpdateProject(ctx, id, patch)
		if err != nil {
			return WriteResultMsg{ID: id, Err: fmt.Errorf("updating project: %w", err)}
		}
		s.store.ReplaceProject(stored)
		return WriteResultMsg{ID: id}
	}
}

// DeleteProject removes a project remotely, then drops it from the
// store. Tasks keep their project id; the views treat a dangling id as
// projectless.
func (s *Syncer) DeleteProject(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := s.client.DeleteProject(ctx, id); err != nil {
			return WriteResultMsg{ID: id, Err: fmt.Errorf("deleting project: %w", err)}
		}
		s.store.DeleteProject(id)
		return WriteResultMsg{ID: id}
	}
}

// CreateSection stores a new section remotely, then adds it to the store.
func (s *Syncer) CreateSection(section model.Section) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		stored, err := s.client.CreateSection(ctx, section)
		if err != nil {
			return WriteResultMsg{Err: fmt.Errorf("creating section: %w", err)}
		}
		s.store.ReplaceSection(stored)
		return WriteResultMsg{ID: stored.ID}
	}
}

// UpdateSection replaces a section's fields remotely, writing back on
// success.
func (s *Syncer) UpdateSection(section model.Section) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		stored, err := s.client.UpdateSection(ctx, section)
		if err != nil {
			return WriteResultMsg{ID: section.ID, Err: fmt.Errorf("updating section: %w", err)}
		}
		s.store.ReplaceSection(stored)
		return WriteResultMsg{ID: section.ID}
	}
}

// DeleteSection removes a section remotely, then drops it from the store.
func (s *Syncer) DeleteSection(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := s.client.DeleteSection(ctx, id); err != nil {
			return WriteResultMsg{ID: id, Err: fmt.Errorf("deleting section: %w", err)}
		}
		s.store.RemoveSection(id)
		return WriteResultMsg{ID: id}
	}
}
