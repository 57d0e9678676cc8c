package tasklist

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avhall/taskdeck/internal/keys"
	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/ordering"
	"github.com/avhall/taskdeck/internal/state"
	"github.com/avhall/taskdeck/internal/theme"
)

// RowsMsg is sent when the visible rows have been rebuilt from the store.
type RowsMsg struct {
	Items []list.Item
}

// SelectedTaskMsg is sent when the user opens a task.
type SelectedTaskMsg struct {
	TaskID string
}

// EditRequestMsg is sent when the user asks to edit the selected task.
type EditRequestMsg struct {
	Task model.Task
}

// DeleteRequestMsg is sent when the user asks to delete the selected task.
type DeleteRequestMsg struct {
	TaskID string
}

// ToggleCompleteMsg is sent when the user toggles the selected task's
// completion.
type ToggleCompleteMsg struct {
	Task model.Task
}

// ReorderMsg carries the reindexed scope after a move; every task in it
// needs its order index persisted.
type ReorderMsg struct {
	Tasks []model.Task
}

// ToggleSectionMsg is sent when the user folds or unfolds a section.
type ToggleSectionMsg struct {
	SectionID string
}

// Model is the task list view: one status bucket or project, grouped by
// section, ordered by the ordering rules.
type Model struct {
	list        list.Model
	store       *state.Store
	keys        *keys.KeyMap
	view        string
	projectID   string
	searchMode  bool
	searchInput textinput.Model
	query       string
	width       int
	height      int
}

// New creates a new task list model reading from the given store.
func New(s *state.Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search tasks..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		store:       s,
		keys:        k,
		view:        state.ViewInbox,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// SetScope switches the view to a status bucket, or to a project when
// projectID is non-empty, and rebuilds the rows.
func (m *Model) SetScope(view, projectID string) tea.Cmd {
	m.view = view
	m.projectID = projectID
	m.list.Title = m.scopeTitle()
	return m.Reload()
}

// Init returns a command that builds the initial rows.
func (m Model) Init() tea.Cmd {
	return m.Reload()
}

// Searching reports whether the search input has keyboard focus, so the
// app layer can stop intercepting global shortcuts.
func (m Model) Searching() bool {
	return m.searchMode
}

// Update handles messages for the task list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RowsMsg:
		cmd := m.list.SetItems(msg.Items)
		m.skipHeader(1)
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = strings.TrimSpace(m.searchInput.Value())
		m.store.SetSearchQuery(m.query)
		return m, m.Reload()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query = ""
		m.store.SetSearchQuery("")
		return m, m.Reload()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		if task, ok := m.selectedTask(); ok {
			return m, func() tea.Msg { return SelectedTaskMsg{TaskID: task.ID} }
		}
		return m, nil

	case key.Matches(msg, m.keys.EditTask):
		if task, ok := m.selectedTask(); ok {
			return m, func() tea.Msg { return EditRequestMsg{Task: task} }
		}
		return m, nil

	case key.Matches(msg, m.keys.DeleteTask):
		if task, ok := m.selectedTask(); ok {
			return m, func() tea.Msg { return DeleteRequestMsg{TaskID: task.ID} }
		}
		return m, nil

	case key.Matches(msg, m.keys.Complete):
		if task, ok := m.selectedTask(); ok {
			return m, func() tea.Msg { return ToggleCompleteMsg{Task: task} }
		}
		return m, nil

	case key.Matches(msg, m.keys.MoveUp):
		return m.moveSelected(-1)

	case key.Matches(msg, m.keys.MoveDown):
		return m.moveSelected(+1)

	case key.Matches(msg, m.keys.ToggleSection):
		if id, ok := m.selectedSectionID(); ok {
			m.store.ToggleSection(id)
			reload := m.Reload()
			return m, tea.Batch(reload, func() tea.Msg { return ToggleSectionMsg{SectionID: id} })
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()
	}

	before := m.list.Index()
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	// Section headers are labels, not selectable rows.
	if m.list.Index() > before {
		m.skipHeader(1)
	} else if m.list.Index() < before {
		m.skipHeader(-1)
	}
	return m, cmd
}

// moveSelected moves the selected task one slot within its section
// scope and emits the reindexed scope for persistence.
func (m Model) moveSelected(delta int) (Model, tea.Cmd) {
	task, ok := m.selectedTask()
	if !ok {
		return m, nil
	}

	scope := m.scopeOf(task)
	src := -1
	for i := range scope {
		if scope[i].ID == task.ID {
			src = i
			break
		}
	}
	dst := src + delta
	if src < 0 || dst < 0 || dst >= len(scope) {
		return m, nil
	}

	moved := ordering.MoveTasks(scope, src, dst)
	for _, t := range moved {
		m.store.UpdateTask(t.ID, model.TaskPatch{OrderIndex: model.Int64(t.OrderIndex)})
	}

	reload := m.Reload()
	return m, tea.Batch(reload, func() tea.Msg { return ReorderMsg{Tasks: moved} })
}

// View renders the task list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no tasks are available.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.query != "" {
		return style.Render("No matching tasks.\nPress / to change the search.")
	}
	return style.Render("Nothing here.\n\nPress n to add a task.")
}

// Reload returns a tea.Cmd that rebuilds the rows from the store.
func (m Model) Reload() tea.Cmd {
	s := m.store
	view, projectID, query := m.view, m.projectID, m.query
	return func() tea.Msg {
		return RowsMsg{Items: buildRows(s, view, projectID, query)}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}

// selectedTask returns the task under the cursor, if any.
func (m Model) selectedTask() (model.Task, bool) {
	item, ok := m.list.SelectedItem().(TaskItem)
	if !ok {
		return model.Task{}, false
	}
	return item.Task, true
}

// selectedSectionID resolves the section the cursor is in: either the
// header itself or the section of the task under the cursor.
func (m Model) selectedSectionID() (string, bool) {
	switch item := m.list.SelectedItem().(type) {
	case SectionItem:
		return item.Section.ID, true
	case TaskItem:
		if item.Task.SectionID != nil {
			return *item.Task.SectionID, true
		}
	}
	return "", false
}

// scopeOf returns the ordered tasks sharing the selected task's
// reordering scope: its section within the current view.
func (m Model) scopeOf(task model.Task) []model.Task {
	var scope []model.Task
	for _, t := range visibleTasks(m.store, m.view, m.projectID, m.query) {
		if sameSection(t.SectionID, task.SectionID) {
			scope = append(scope, t)
		}
	}
	return scope
}

// skipHeader nudges the cursor off section header rows in the given
// direction, bouncing back when it runs off the end.
func (m *Model) skipHeader(direction int) {
	items := m.list.Items()
	idx := m.list.Index()
	for idx >= 0 && idx < len(items) {
		if _, isHeader := items[idx].(SectionItem); !isHeader {
			m.list.Select(idx)
			return
		}
		idx += direction
	}
	for i := range items {
		if _, isHeader := items[i].(SectionItem); !isHeader {
			m.list.Select(i)
			return
		}
	}
}

func (m Model) scopeTitle() string {
	if m.projectID != "" {
		if p, ok := m.store.ProjectByID(m.projectID); ok {
			return p.Name
		}
		return "Project"
	}
	switch m.view {
	case state.ViewToday:
		return "Today"
	case state.ViewUpcoming:
		return "Upcoming"
	case state.ViewCompleted:
		return "Completed"
	default:
		return "Inbox"
	}
}

// visibleTasks filters the store's tasks to the current scope and
// search query and sorts them with the view ordering rules.
func visibleTasks(s *state.Store, view, projectID, query string) []model.Task {
	sectionOrder := make(map[string]int64)
	for _, sec := range s.Sections() {
		sectionOrder[sec.ID] = sec.Order
	}

	var tasks []model.Task
	for _, t := range s.Tasks() {
		if !inScope(t, view, projectID) {
			continue
		}
		if query != "" && !matchesQuery(t, query) {
			continue
		}
		tasks = append(tasks, t)
	}

	return ordering.SortForView(tasks, sectionOrder)
}

func inScope(t model.Task, view, projectID string) bool {
	if projectID != "" {
		return t.ProjectID != nil && *t.ProjectID == projectID && !t.IsCompleted()
	}
	switch view {
	case state.ViewToday:
		return t.Status == model.StatusToday
	case state.ViewUpcoming:
		return t.Status == model.StatusUpcoming
	case state.ViewCompleted:
		return t.IsCompleted()
	default:
		return t.Status == model.StatusInbox
	}
}

func matchesQuery(t model.Task, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

// buildRows flattens tasks into list rows, inserting section headers
// and hiding tasks under collapsed sections.
func buildRows(s *state.Store, view, projectID, query string) []list.Item {
	tasks := visibleTasks(s, view, projectID, query)

	sections := make(map[string]model.Section)
	for _, sec := range s.Sections() {
		sections[sec.ID] = sec
	}

	counts := make(map[string]int)
	for _, t := range tasks {
		if t.SectionID != nil {
			counts[*t.SectionID]++
		}
	}

	var items []list.Item
	var currentSection string
	headerEmitted := make(map[string]bool)

	for _, t := range tasks {
		sectionID := ""
		if t.SectionID != nil {
			sectionID = *t.SectionID
		}

		sec, known := sections[sectionID]
		if known && sectionID != currentSection && !headerEmitted[sectionID] {
			items = append(items, SectionItem{Section: sec, Count: counts[sectionID]})
			headerEmitted[sectionID] = true
			currentSection = sectionID
		}

		if known && sec.Collapsed {
			continue
		}
		items = append(items, TaskItem{Task: t})
	}

	return items
}

func sameSection(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
