// Package state holds the single source of truth for the running client:
// the current user, the task and project collections, and UI-only state.
// The store is an explicit, constructible object created in main and
// passed by reference; there is no package-level singleton.
package state

import (
	"sync"
	"time"

	"github.com/avhall/taskdeck/internal/model"
)

// View identifiers for the main content area.
const (
	ViewInbox     = "inbox"
	ViewToday     = "today"
	ViewUpcoming  = "upcoming"
	ViewCompleted = "completed"
	ViewProjects  = "projects"
	ViewDashboard = "dashboard"
)

// Store is the client state container. Every mutation goes through its
// methods, which serialize on an internal mutex so background sync
// goroutines interleave safely with UI mutations, and synchronously
// notify subscribers after the change is visible (read-after-write
// within the same tick).
type Store struct {
	mu sync.Mutex

	user     *model.User
	tasks    []model.Task
	projects []model.Project
	sections []model.Section

	view          string
	selectedDate  time.Time
	searchQuery   string
	taskModalOpen bool
	loading       bool

	subs   map[int]func()
	nextID int

	now func() time.Time
}

// New creates an empty store. The initial view is the inbox.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates a store with an injectable clock, used by tests
// to make UpdatedAt assertions deterministic.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		view: ViewInbox,
		subs: make(map[int]func()),
		now:  now,
	}
}

// Subscribe registers fn to be called synchronously after every mutation.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// notify invokes subscribers outside the lock so they may read the store.
func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// SetUser replaces the current user identity. A nil user signals the
// signed-out state. No other state is touched: an open modal stays open.
func (s *Store) SetUser(u *model.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	s.notify()
}

// User returns the current user, or nil when signed out.
func (s *Store) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// SetTasks replaces the entire task collection.
func (s *Store) SetTasks(tasks []model.Task) {
	s.mu.Lock()
	s.tasks = append([]model.Task(nil), tasks...)
	s.mu.Unlock()
	s.notify()
}

// ReplaceTasks applies fn to the current collection and stores the result.
func (s *Store) ReplaceTasks(fn func([]model.Task) []model.Task) {
	s.mu.Lock()
	s.tasks = fn(s.tasks)
	s.mu.Unlock()
	s.notify()
}

// AddTask appends a task to the collection. Inserting an id that already
// exists is ignored, which also makes re-delivered feed inserts harmless.
func (s *Store) AddTask(t model.Task) {
	s.mu.Lock()
	if s.indexOfTask(t.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	s.notify()
}

// UpdateTask merges patch onto the task with the given id and refreshes
// its UpdatedAt. Updating an unknown id is a no-op, not an error.
func (s *Store) UpdateTask(id string, patch model.TaskPatch) {
	s.mu.Lock()
	i := s.indexOfTask(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	patch.Apply(&s.tasks[i], s.now())
	s.mu.Unlock()
	s.notify()
}

// ReplaceTask swaps in a full record for the task with the same id,
// appending when no local copy exists. Used by the write-back path after
// a remote call succeeds and by feed reconciliation.
func (s *Store) ReplaceTask(t model.Task) {
	s.mu.Lock()
	if i := s.indexOfTask(t.ID); i >= 0 {
		s.tasks[i] = t
	} else {
		s.tasks = append(s.tasks, t)
	}
	s.mu.Unlock()
	s.notify()
}

// DeleteTask removes the task with the given id. Absence is a no-op.
func (s *Store) DeleteTask(id string) {
	s.mu.Lock()
	i := s.indexOfTask(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	s.mu.Unlock()
	s.notify()
}

// Tasks returns a copy of the task collection.
func (s *Store) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

// TaskByID returns the task with the given id.
func (s *Store) TaskByID(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfTask(id); i >= 0 {
		return s.tasks[i], true
	}
	return model.Task{}, false
}

// MarkPending flags a task's in-flight remote write.
func (s *Store) MarkPending(id string) { s.setSyncState(id, model.SyncPending) }

// MarkCommitted records that the backend acknowledged the task's last write.
func (s *Store) MarkCommitted(id string) { s.setSyncState(id, model.SyncCommitted) }

// MarkFailed records that the task's last remote write was rejected.
func (s *Store) MarkFailed(id string) { s.setSyncState(id, model.SyncFailed) }

func (s *Store) setSyncState(id, st string) {
	s.mu.Lock()
	i := s.indexOfTask(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.tasks[i].SyncState = st
	s.mu.Unlock()
	s.notify()
}

// SetProjects replaces the entire project collection.
func (s *Store) SetProjects(projects []model.Project) {
	s.mu.Lock()
	s.projects = append([]model.Project(nil), projects...)
	s.mu.Unlock()
	s.notify()
}

// AddProject appends a project. Duplicate ids are ignored.
func (s *Store) AddProject(p model.Project) {
	s.mu.Lock()
	if s.indexOfProject(p.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.projects = append(s.projects, p)
	s.mu.Unlock()
	s.notify()
}

// UpdateProject merges patch onto the project with the given id.
// Updating an unknown id is a no-op.
func (s *Store) UpdateProject(id string, patch model.ProjectPatch) {
	s.mu.Lock()
	i := s.indexOfProject(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	patch.Apply(&s.projects[i], s.now())
	s.mu.Unlock()
	s.notify()
}

// ReplaceProject swaps in a full project record, appending when absent.
func (s *Store) ReplaceProject(p model.Project) {
	s.mu.Lock()
	if i := s.indexOfProject(p.ID); i >= 0 {
		s.projects[i] = p
	} else {
		s.projects = append(s.projects, p)
	}
	s.mu.Unlock()
	s.notify()
}

// DeleteProject removes the project with the given id. Tasks referencing
// it are left untouched; they render as inbox tasks.
func (s *Store) DeleteProject(id string) {
	s.mu.Lock()
	i := s.indexOfProject(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.projects = append(s.projects[:i], s.projects[i+1:]...)
	s.mu.Unlock()
	s.notify()
}

// Projects returns a copy of the project collection.
func (s *Store) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Project(nil), s.projects...)
}

// ProjectByID returns the project with the given id.
func (s *Store) ProjectByID(id string) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfProject(id); i >= 0 {
		return s.projects[i], true
	}
	return model.Project{}, false
}

// SetSections replaces the section collection.
func (s *Store) SetSections(sections []model.Section) {
	s.mu.Lock()
	s.sections = append([]model.Section(nil), sections...)
	s.mu.Unlock()
	s.notify()
}

// Sections returns a copy of the section collection.
func (s *Store) Sections() []model.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Section(nil), s.sections...)
}

// ReplaceSection swaps in a full section record by id, appending when
// the id is unknown.
func (s *Store) ReplaceSection(sec model.Section) {
	s.mu.Lock()
	found := false
	for i := range s.sections {
		if s.sections[i].ID == sec.ID {
			s.sections[i] = sec
			found = true
			break
		}
	}
	if !found {
		s.sections = append(s.sections, sec)
	}
	s.mu.Unlock()
	s.notify()
}

// RemoveSection drops the section with the given id; unknown ids are a
// no-op.
func (s *Store) RemoveSection(id string) {
	s.mu.Lock()
	for i := range s.sections {
		if s.sections[i].ID == id {
			s.sections = append(s.sections[:i], s.sections[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// ToggleSection flips the collapsed flag of the section with the given id.
func (s *Store) ToggleSection(id string) {
	s.mu.Lock()
	for i := range s.sections {
		if s.sections[i].ID == id {
			s.sections[i].Collapsed = !s.sections[i].Collapsed
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// SetLoading flags an in-flight remote fetch for the loading affordance.
func (s *Store) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
	s.notify()
}

// Loading reports whether a remote fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// SetView selects the active view.
func (s *Store) SetView(view string) {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
	s.notify()
}

// View returns the active view.
func (s *Store) View() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetSelectedDate selects the date shown by date-scoped views.
func (s *Store) SetSelectedDate(d time.Time) {
	s.mu.Lock()
	s.selectedDate = d
	s.mu.Unlock()
	s.notify()
}

// SelectedDate returns the date selected for date-scoped views.
func (s *Store) SelectedDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedDate
}

// SetSearchQuery replaces the live search query.
func (s *Store) SetSearchQuery(q string) {
	s.mu.Lock()
	s.searchQuery = q
	s.mu.Unlock()
	s.notify()
}

// SearchQuery returns the live search query.
func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}

// SetTaskModalOpen shows or hides the task modal. Modal state is
// independent of user state: signing out does not close it.
func (s *Store) SetTaskModalOpen(open bool) {
	s.mu.Lock()
	s.taskModalOpen = open
	s.mu.Unlock()
	s.notify()
}

// TaskModalOpen reports whether the task modal is visible.
func (s *Store) TaskModalOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskModalOpen
}

func (s *Store) indexOfTask(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) indexOfProject(id string) int {
	for i := range s.projects {
		if s.projects[i].ID == id {
			return i
		}
	}
	return -1
}
