// Package backend defines the contract the client consumes from the
// hosted task service: CRUD, auth sessions, and the realtime change feed.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/avhall/taskdeck/internal/model"
)

// EventType tags a realtime change feed event.
type EventType string

// Change feed event types, matching the row-level events the service emits.
const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Table identifies which collection a change event belongs to.
type Table string

// Tables covered by the change feed.
const (
	TableTasks    Table = "tasks"
	TableProjects Table = "projects"
	TableSections Table = "sections"
)

// ChangeEvent is a single row-level event from the realtime feed.
// The populated payload pair depends on Table; Old carries the previous
// row for UPDATE and DELETE events when the service provides it.
type ChangeEvent struct {
	Table Table
	Type  EventType

	Task       *model.Task
	OldTask    *model.Task
	Project    *model.Project
	OldProject *model.Project
	Section    *model.Section
	OldSection *model.Section
}

// Credentials carries an email/password pair for the password grant.
type Credentials struct {
	Email    string
	Password string
}

// Session is an authenticated session with the backend.
type Session struct {
	User         model.User
	AccessToken  string
	RefreshToken string
}

// AuthError indicates that authentication failed or the session expired.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ErrNotFound is returned when an update or delete targets a record the
// backend does not have.
var ErrNotFound = errors.New("record not found")

// ErrConfirmationRequired is returned by SignUp when the service wants
// the user to confirm their email before the first sign-in.
var ErrConfirmationRequired = errors.New("email confirmation required")

// Client is the full surface the application consumes from a backend.
// Every create and update returns the stored record with server-stamped
// CreatedAt/UpdatedAt; callers write that record back into local state
// only after the call succeeds.
type Client interface {
	TaskService
	ChecklistService
	ProjectService
	SectionService
	AuthService

	// Subscribe opens the per-user realtime change feed. The channel is
	// closed when ctx is cancelled or the feed drops.
	Subscribe(ctx context.Context, userID string) (<-chan ChangeEvent, error)

	Close() error
}

// TaskService is the remote CRUD surface for tasks.
type TaskService interface {
	FetchTasks(ctx context.Context, userID string) ([]model.Task, error)
	CreateTask(ctx context.Context, task model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// ChecklistService manages the checklist items nested under a task.
// Checklist writes surface on the change feed as an UPDATE of the
// parent task.
type ChecklistService interface {
	AddChecklistItem(ctx context.Context, item model.ChecklistItem) (model.ChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, item model.ChecklistItem) error
	DeleteChecklistItem(ctx context.Context, taskID, id string) error
}

// ProjectService is the remote CRUD surface for projects.
type ProjectService interface {
	FetchProjects(ctx context.Context, userID string) ([]model.Project, error)
	CreateProject(ctx context.Context, project model.Project) (model.Project, error)
	UpdateProject(ctx context.Context, id string, patch model.ProjectPatch) (model.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// SectionService is the remote CRUD surface for sections.
type SectionService interface {
	FetchSections(ctx context.Context, userID string) ([]model.Section, error)
	CreateSection(ctx context.Context, section model.Section) (model.Section, error)
	UpdateSection(ctx context.Context, section model.Section) (model.Section, error)
	DeleteSection(ctx context.Context, id string) error
}

// AuthService is the session surface: password sign-up/sign-in, OAuth
// code exchange, session restore, and sign-out.
type AuthService interface {
	SignUp(ctx context.Context, creds Credentials) (Session, error)
	SignIn(ctx context.Context, creds Credentials) (Session, error)
	ExchangeCode(ctx context.Context, code string) (Session, error)

	// RestoreSession resumes a session from a refresh token. Callers
	// bound it with a timeout; on expiry the user is treated as signed out.
	RestoreSession(ctx context.Context, refreshToken string) (Session, error)

	SignOut(ctx context.Context) error
}
