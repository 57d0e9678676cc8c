package model

import "time"

// Task status constants. A task lives in exactly one of these buckets;
// the bucket doubles as the default view it appears in.
const (
	StatusInbox     = "inbox"
	StatusToday     = "today"
	StatusUpcoming  = "upcoming"
	StatusCompleted = "completed"
)

// Task priority constants.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Sync states for the per-record write lifecycle. A record is pending
// while a remote write is in flight, committed once the backend has
// acknowledged it, and failed when the last write was rejected.
const (
	SyncPending   = "pending"
	SyncCommitted = "committed"
	SyncFailed    = "failed"
)

// Task is a user-created unit of work with status, priority, scheduling,
// and ordering metadata.
type Task struct {
	ID          string  `json:"id" db:"id"`
	UserID      string  `json:"user_id" db:"user_id"`
	ProjectID   *string `json:"project_id,omitempty" db:"project_id"`
	SectionID   *string `json:"section_id,omitempty" db:"section_id"`
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description" db:"description"`

	DueDate           *time.Time `json:"due_date,omitempty" db:"due_date"`
	ScheduledTime     string     `json:"scheduled_time,omitempty" db:"scheduled_time"`
	EstimatedDuration int        `json:"estimated_duration,omitempty" db:"estimated_duration"`

	Priority   string   `json:"priority" db:"priority"`
	Status     string   `json:"status" db:"status"`
	Tags       []string `json:"tags,omitempty" db:"-"`
	Color      string   `json:"color,omitempty" db:"color"`
	RepeatRule string   `json:"repeat_rule,omitempty" db:"repeat_rule"`

	// OrderIndex defines relative position among tasks sharing the same
	// scope (section, project, or view). Values need not be contiguous.
	OrderIndex int64 `json:"order_index" db:"order_index"`

	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// Checklist is populated by queries that join with checklist items.
	Checklist []ChecklistItem `json:"checklist,omitempty" db:"-"`

	// SyncState tracks the local write lifecycle (pending/committed/failed).
	// It never leaves the process.
	SyncState string `json:"-" db:"-"`
}

// ChecklistItem is a simple sub-entry within a task. Its order is scoped
// to the parent task's checklist.
type ChecklistItem struct {
	ID        string    `json:"id" db:"id"`
	TaskID    string    `json:"task_id" db:"task_id"`
	Text      string    `json:"text" db:"text"`
	Done      bool      `json:"done" db:"done"`
	Order     int64     `json:"order" db:"sort_order"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsCompleted reports whether the task is in the completed bucket.
func (t Task) IsCompleted() bool { return t.Status == StatusCompleted }

// IsOverdue reports whether the task has a due date in the past and is
// not completed.
func (t Task) IsOverdue() bool {
	return t.DueDate != nil && t.DueDate.Before(time.Now()) && !t.IsCompleted()
}

// SetStatus moves the task to a new status bucket, maintaining the
// invariant that CompletedAt is set exactly when the task transitions to
// completed and cleared when it transitions away.
func (t *Task) SetStatus(status string, now time.Time) {
	if status == StatusCompleted && t.Status != StatusCompleted {
		completed := now
		t.CompletedAt = &completed
	} else if status != StatusCompleted {
		t.CompletedAt = nil
	}
	t.Status = status
}

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ValidStatus reports whether s is one of the known status buckets.
func ValidStatus(s string) bool {
	switch s {
	case StatusInbox, StatusToday, StatusUpcoming, StatusCompleted:
		return true
	}
	return false
}
