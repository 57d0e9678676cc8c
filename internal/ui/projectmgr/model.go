// Package projectmgr is the project management view: listing, creating,
// renaming, recoloring, and deleting projects.
package projectmgr

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/state"
	"github.com/avhall/taskdeck/internal/theme"
)

// Messages emitted to the app layer, which forwards them to the syncer.
type (
	// OpenProjectMsg asks the app to switch to the project's task view.
	OpenProjectMsg struct{ ID string }
	// CreateProjectMsg asks the app to create the project.
	CreateProjectMsg struct{ Project model.Project }
	// UpdateProjectMsg asks the app to apply the patch.
	UpdateProjectMsg struct {
		ID    string
		Patch model.ProjectPatch
	}
	// DeleteProjectMsg asks the app to delete the project.
	DeleteProjectMsg struct{ ID string }
	// RowsMsg refreshes the list from the store.
	RowsMsg struct{ Projects []model.Project }
)

// colorChoices are the palette options offered when creating or
// recoloring a project.
var colorChoices = []huh.Option[string]{
	huh.NewOption("Blue", "blue"),
	huh.NewOption("Green", "green"),
	huh.NewOption("Yellow", "yellow"),
	huh.NewOption("Red", "red"),
	huh.NewOption("Orange", "orange"),
	huh.NewOption("Magenta", "magenta"),
	huh.NewOption("Gray", "gray"),
}

type projectItem struct {
	project model.Project
	count   int
}

func (p projectItem) FilterValue() string { return p.project.Name }

type itemDelegate struct{}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(projectItem)
	if !ok {
		return
	}

	dot := lipgloss.NewStyle().Foreground(projectColor(item.project.Color)).Render("●")
	line := fmt.Sprintf("%s %s (%d)", dot, item.project.Name, item.count)

	if index == m.Index() {
		fmt.Fprint(w, theme.SelectedItemStyle.Render("> "+line))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render("  "+line))
}

func projectColor(name string) lipgloss.AdaptiveColor {
	switch name {
	case "green":
		return theme.ColorGreen
	case "yellow":
		return theme.ColorYellow
	case "red":
		return theme.ColorRed
	case "orange":
		return theme.ColorOrange
	case "magenta":
		return theme.ColorMagenta
	case "gray":
		return theme.ColorGray
	}
	return theme.ColorBlue
}

type formBindings struct {
	name  string
	color string
}

// Model is the Bubble Tea model for the project manager.
type Model struct {
	list  list.Model
	store *state.Store

	form     *huh.Form
	fb       *formBindings
	editID   string
	deleting string

	width  int
	height int
}

// New creates the project manager bound to the shared store.
func New(store *state.Store, width, height int) Model {
	l := list.New(nil, itemDelegate{}, width, height)
	l.Title = "Projects"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return Model{
		list:   l,
		store:  store,
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Reload rebuilds the rows from the store.
func (m Model) Reload() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		return RowsMsg{Projects: store.Projects()}
	}
}

// Update handles messages for the project manager.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case RowsMsg:
		m.setRows(msg.Projects)
		return m, nil
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	}

	if m.form != nil {
		return m.updateForm(msg)
	}
	if m.deleting != "" {
		return m.updateConfirm(msg)
	}

	if key, ok := msg.(tea.KeyMsg); ok {
		if cmd, handled := m.handleKey(key); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the project manager.
func (m Model) View() string {
	if m.form != nil {
		title := "New Project"
		if m.editID != "" {
			title = "Edit Project"
		}
		header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render(title)
		return lipgloss.NewStyle().Padding(1, 2).Render(header + "\n" + m.form.View())
	}
	if m.deleting != "" {
		name := m.deleting
		if p, ok := m.store.ProjectByID(m.deleting); ok {
			name = p.Name
		}
		prompt := fmt.Sprintf("Delete project %q? Its tasks move back to the inbox. (y/n)", name)
		return lipgloss.NewStyle().Padding(1, 2).Render(theme.OverdueStyle.Render(prompt))
	}
	return m.list.View()
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
		if item, ok := m.list.SelectedItem().(projectItem); ok {
			id := item.project.ID
			return func() tea.Msg { return OpenProjectMsg{ID: id} }, true
		}
	case key.Matches(msg, key.NewBinding(key.WithKeys("n"))):
		m.editID = ""
		*m.fb = formBindings{color: "blue"}
		m.form = m.buildForm()
		return m.form.Init(), true
	case key.Matches(msg, key.NewBinding(key.WithKeys("e"))):
		if item, ok := m.list.SelectedItem().(projectItem); ok {
			m.editID = item.project.ID
			*m.fb = formBindings{name: item.project.Name, color: item.project.Color}
			if m.fb.color == "" {
				m.fb.color = "blue"
			}
			m.form = m.buildForm()
			return m.form.Init(), true
		}
	case key.Matches(msg, key.NewBinding(key.WithKeys("d"))):
		if item, ok := m.list.SelectedItem().(projectItem); ok {
			m.deleting = item.project.ID
			return nil, true
		}
	}
	return nil, false
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		name := strings.TrimSpace(m.fb.name)
		color := m.fb.color
		editID := m.editID
		m.form = nil
		m.editID = ""
		if editID != "" {
			return m, func() tea.Msg {
				return UpdateProjectMsg{
					ID:    editID,
					Patch: model.ProjectPatch{Name: model.String(name), Color: model.String(color)},
				}
			}
		}
		return m, func() tea.Msg {
			return CreateProjectMsg{Project: model.Project{Name: name, Color: color}}
		}
	case huh.StateAborted:
		m.form = nil
		m.editID = ""
		return m, nil
	}

	return m, cmd
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		id := m.deleting
		m.deleting = ""
		return m, func() tea.Msg { return DeleteProjectMsg{ID: id} }
	case "n", "N", "esc":
		m.deleting = ""
	}
	return m, nil
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Name").
			Placeholder("Project name").
			Value(&m.fb.name).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("Name is required")
				}
				return nil
			}),
		huh.NewSelect[string]().
			Title("Color").
			Options(colorChoices...).
			Value(&m.fb.color),
	)).WithWidth(48)
}

func (m *Model) setRows(projects []model.Project) {
	tasks := m.store.Tasks()
	counts := make(map[string]int, len(projects))
	for _, t := range tasks {
		if t.ProjectID != nil && !t.IsCompleted() {
			counts[*t.ProjectID]++
		}
	}

	items := make([]list.Item, 0, len(projects))
	for _, p := range projects {
		items = append(items, projectItem{project: p, count: counts[p.ID]})
	}
	m.list.SetItems(items)
}
