package model

import "time"

// TaskPatch is a partial-field update merged onto an existing task.
// Nil fields are left untouched. Nullable columns (project, section,
// due date) have explicit clear flags so "absent" and "set to null"
// stay distinguishable.
type TaskPatch struct {
	Title             *string
	Description       *string
	Status            *string
	Priority          *string
	DueDate           *time.Time
	ClearDueDate      bool
	ScheduledTime     *string
	EstimatedDuration *int
	ProjectID         *string
	ClearProject      bool
	SectionID         *string
	ClearSection      bool
	Tags              []string
	HasTags           bool
	Color             *string
	RepeatRule        *string
	OrderIndex        *int64
}

// Apply merges the patch onto t and refreshes UpdatedAt. Status changes
// go through SetStatus so the CompletedAt invariant holds.
func (p TaskPatch) Apply(t *Task, now time.Time) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.SetStatus(*p.Status, now)
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.ScheduledTime != nil {
		t.ScheduledTime = *p.ScheduledTime
	}
	if p.EstimatedDuration != nil {
		t.EstimatedDuration = *p.EstimatedDuration
	}
	switch {
	case p.ClearProject:
		t.ProjectID = nil
	case p.ProjectID != nil:
		id := *p.ProjectID
		t.ProjectID = &id
	}
	switch {
	case p.ClearSection:
		t.SectionID = nil
	case p.SectionID != nil:
		id := *p.SectionID
		t.SectionID = &id
	}
	if p.HasTags {
		t.Tags = append([]string(nil), p.Tags...)
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.RepeatRule != nil {
		t.RepeatRule = *p.RepeatRule
	}
	if p.OrderIndex != nil {
		t.OrderIndex = *p.OrderIndex
	}
	t.UpdatedAt = now
}

// ProjectPatch is a partial-field update merged onto an existing project.
type ProjectPatch struct {
	Name       *string
	Color      *string
	OrderIndex *int64
}

// Apply merges the patch onto p and refreshes UpdatedAt.
func (pp ProjectPatch) Apply(p *Project, now time.Time) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Color != nil {
		p.Color = *pp.Color
	}
	if pp.OrderIndex != nil {
		p.OrderIndex = *pp.OrderIndex
	}
	p.UpdatedAt = now
}

// String returns a pointer to s, for building patches inline.
func String(s string) *string { return &s }

// Int returns a pointer to n, for building patches inline.
func Int(n int) *int { return &n }

// Int64 returns a pointer to n, for building patches inline.
func Int64(n int64) *int64 { return &n }

// Time returns a pointer to t, for building patches inline.
func Time(t time.Time) *time.Time { return &t }
