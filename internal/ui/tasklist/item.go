package tasklist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/theme"
)

// TaskItem wraps a model.Task so it can be used in a bubbles/list.
type TaskItem struct {
	Task model.Task
}

// FilterValue returns the string used for fuzzy filtering.
func (i TaskItem) FilterValue() string { return i.Task.Title }

// Title returns the task title for the list.
func (i TaskItem) Title() string { return i.Task.Title }

// Description returns a short summary line for the list.
func (i TaskItem) Description() string {
	parts := []string{i.Task.Status}
	if i.Task.DueDate != nil {
		parts = append(parts, i.Task.DueDate.Format("Jan 02"))
	}
	return strings.Join(parts, " | ")
}

// SectionItem is a non-selectable header row labelling a section group.
type SectionItem struct {
	Section model.Section
	// Count is how many tasks the section holds, shown when collapsed.
	Count int
}

// FilterValue returns an empty string; headers never match a filter.
func (i SectionItem) FilterValue() string { return "" }

// ItemDelegate implements list.ItemDelegate for rendering task rows and
// section headers.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single list row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	switch it := item.(type) {
	case SectionItem:
		d.renderSection(w, it)
	case TaskItem:
		d.renderTask(w, it, index == m.Index())
	}
}

func (d ItemDelegate) renderSection(w io.Writer, it SectionItem) {
	marker := "▾"
	suffix := ""
	if it.Section.Collapsed {
		marker = "▸"
		suffix = fmt.Sprintf(" (%d)", it.Count)
	}
	fmt.Fprint(w, theme.SectionHeaderStyle.Render(marker+" "+it.Section.Name+suffix))
}

func (d ItemDelegate) renderTask(w io.Writer, it TaskItem, isSelected bool) {
	task := it.Task

	prefix := "○"
	if task.IsCompleted() {
		prefix = "✓"
	}

	priBadge := theme.PriorityStyle(task.Priority).Render(priorityLabel(task.Priority))

	title := task.Title
	if task.IsCompleted() {
		title = theme.CompletedStyle.Render(title)
	}

	checklistStr := ""
	if len(task.Checklist) > 0 {
		done := 0
		for _, item := range task.Checklist {
			if item.Done {
				done++
			}
		}
		checklistStr = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Render(fmt.Sprintf(" [%d/%d]", done, len(task.Checklist)))
	}

	dueStr := ""
	if task.DueDate != nil {
		formatted := " " + task.DueDate.Format("Jan 02")
		if task.IsOverdue() {
			dueStr = theme.OverdueStyle.Render(formatted + " overdue")
		} else {
			dueStr = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(formatted)
		}
	}

	syncStr := ""
	if badge := theme.SyncBadge(task.SyncState); badge != "" {
		syncStr = theme.ErrorStyle.Render(" " + badge)
	}

	line := fmt.Sprintf("%s %s %s%s%s%s", prefix, priBadge, title, checklistStr, dueStr, syncStr)

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// priorityLabel returns a short label for the given priority level.
func priorityLabel(p string) string {
	switch p {
	case model.PriorityHigh:
		return "P1"
	case model.PriorityMedium:
		return "P2"
	case model.PriorityLow:
		return "P3"
	default:
		return "P?"
	}
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
