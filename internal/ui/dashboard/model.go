// Package dashboard renders a summary of the workspace: bucket counts,
// overdue tasks, and per-project progress.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/state"
	"github.com/avhall/taskdeck/internal/theme"
)

// Model is the Bubble Tea model for the dashboard view.
type Model struct {
	store  *state.Store
	width  int
	height int
}

// New creates the dashboard bound to the shared store.
func New(store *state.Store, width, height int) Model {
	return Model{store: store, width: width, height: height}
}

// Update handles messages for the dashboard. The view is read-only and
// recomputes from the store on every render.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = ws.Width
		m.height = ws.Height
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	tasks := m.store.Tasks()
	projects := m.store.Projects()
	now := time.Now()

	var inbox, today, upcoming, overdue, doneToday int
	projOpen := make(map[string]int, len(projects))
	projDone := make(map[string]int, len(projects))

	for _, t := range tasks {
		switch t.Status {
		case model.StatusInbox:
			inbox++
		case model.StatusToday:
			today++
		case model.StatusUpcoming:
			upcoming++
		case model.StatusCompleted:
			if t.CompletedAt != nil && sameDay(*t.CompletedAt, now) {
				doneToday++
			}
		}
		if t.IsOverdue() {
			overdue++
		}
		if t.ProjectID != nil {
			if t.IsCompleted() {
				projDone[*t.ProjectID]++
			} else {
				projOpen[*t.ProjectID]++
			}
		}
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue).Render("Dashboard")

	counts := lipgloss.JoinVertical(lipgloss.Left,
		statLine("Inbox", inbox, theme.ColorWhite),
		statLine("Today", today, theme.ColorGreen),
		statLine("Upcoming", upcoming, theme.ColorYellow),
		statLine("Overdue", overdue, theme.ColorRed),
		statLine("Done today", doneToday, theme.ColorGray),
	)

	var projLines []string
	projHeader := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render("Projects")
	projLines = append(projLines, projHeader)
	if len(projects) == 0 {
		projLines = append(projLines, theme.HelpStyle.Render("no projects yet"))
	}
	for _, p := range projects {
		open, done := projOpen[p.ID], projDone[p.ID]
		total := open + done
		bar := progressBar(done, total, 20)
		line := fmt.Sprintf("%-20s %s %d/%d", truncate(p.Name, 20), bar, done, total)
		projLines = append(projLines, theme.ListItemStyle.Render(line))
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		title, "",
		counts, "",
		lipgloss.JoinVertical(lipgloss.Left, projLines...),
	)

	return lipgloss.NewStyle().Padding(1, 2).Render(body)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func statLine(label string, n int, color lipgloss.AdaptiveColor) string {
	value := lipgloss.NewStyle().Bold(true).Foreground(color).Render(fmt.Sprintf("%3d", n))
	return fmt.Sprintf("%s  %s", value, label)
}

func progressBar(done, total, width int) string {
	if total == 0 {
		return theme.HelpStyle.Render(strings.Repeat("░", width))
	}
	filled := done * width / total
	bar := lipgloss.NewStyle().Foreground(theme.ColorGreen).Render(strings.Repeat("█", filled))
	rest := theme.HelpStyle.Render(strings.Repeat("░", width-filled))
	return bar + rest
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
