// Package ui holds shared terminal layout helpers used by the view
// packages.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/avhall/taskdeck/internal/theme"
)

const sidebarWidth = 24

// Layout manages the multi-panel terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
	ShowSidebar     bool
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the width available for the main content area,
// accounting for the sidebar when it is visible.
func (l Layout) ContentWidth() int {
	if l.ShowSidebar && l.Width > sidebarWidth*2 {
		return l.Width - sidebarWidth
	}
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// SidebarVisible reports whether the sidebar fits and is enabled.
func (l Layout) SidebarVisible() bool {
	return l.ShowSidebar && l.Width > sidebarWidth*2
}

// RenderHeader renders the top header bar with a title and sync status.
func (l Layout) RenderHeader(title string, syncStatus string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(syncStatus)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.HeaderStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.HeaderStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// SidebarEntry is one navigable row in the sidebar.
type SidebarEntry struct {
	Label  string
	Count  int
	Active bool
}

// RenderSidebar renders the view navigation panel.
func (l Layout) RenderSidebar(entries []SidebarEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := e.Label
		if e.Count > 0 {
			line = fmt.Sprintf("%s %d", e.Label, e.Count)
		}
		if e.Active {
			lines = append(lines, theme.SelectedItemStyle.Render("> "+line))
			continue
		}
		lines = append(lines, theme.ListItemStyle.Render("  "+line))
	}

	body := strings.Join(lines, "\n")
	return theme.SidebarStyle.
		Width(sidebarWidth - 2).
		Height(l.ContentHeight() - 1).
		Render(body)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar. When the sidebar is visible
// it is joined to the left of the content.
func (l Layout) RenderWithFrame(
	header string,
	sidebar string,
	content string,
	statusBar string,
) string {
	middle := content
	if l.SidebarVisible() && sidebar != "" {
		middle = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		middle,
		statusBar,
	)
}
