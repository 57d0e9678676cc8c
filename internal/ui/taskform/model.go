// Package taskform is the create/edit form for tasks, built on huh.
package taskform

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/theme"
)

// TaskCreatedMsg is dispatched when a new task is submitted via the form.
type TaskCreatedMsg struct {
	Task model.Task
}

// TaskUpdatedMsg is dispatched when an existing task is edited via the
// form. The patch carries only the fields the form controls.
type TaskUpdatedMsg struct {
	ID    string
	Patch model.TaskPatch
}

// CancelMsg is dispatched when the user abandons the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title         string
	description   string
	priority      string
	status        string
	dueDate       string
	scheduledTime string
	estimated     string
	projectID     string
	sectionID     string
	tags          string
}

// Model is the Bubble Tea model for the task create/edit form.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	editMode bool
	editID   string
	projects []model.Project
	sections []model.Section
	width    int
	height   int
}

// New creates a new task form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{priority: model.PriorityMedium, status: model.StatusInbox},
		width:  width,
		height: height,
	}
}

// SetOptions sets the available projects and sections for the selectors.
func (m *Model) SetOptions(projects []model.Project, sections []model.Section) {
	m.projects = projects
	m.sections = sections
}

// StartCreate initializes the form for creating a new task in the given
// status bucket.
func (m *Model) StartCreate(status string) tea.Cmd {
	m.editMode = false
	m.editID = ""
	*m.fb = formBindings{
		priority: model.PriorityMedium,
		status:   status,
	}
	if !model.ValidStatus(m.fb.status) || m.fb.status == model.StatusCompleted {
		m.fb.status = model.StatusInbox
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// StartEdit initializes the form with an existing task's fields.
func (m *Model) StartEdit(task model.Task) tea.Cmd {
	m.editMode = true
	m.editID = task.ID
	*m.fb = formBindings{
		title:         task.Title,
		description:   task.Description,
		priority:      task.Priority,
		status:        task.Status,
		scheduledTime: task.ScheduledTime,
		tags:          strings.Join(task.Tags, ", "),
	}
	if task.DueDate != nil {
		m.fb.dueDate = task.DueDate.Format("2006-01-02")
	}
	if task.EstimatedDuration > 0 {
		m.fb.estimated = fmt.Sprintf("%d", task.EstimatedDuration)
	}
	if task.ProjectID != nil {
		m.fb.projectID = *task.ProjectID
	}
	if task.SectionID != nil {
		m.fb.sectionID = *task.SectionID
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the task form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.handleSubmit()
	}
	if m.form.State == huh.StateAborted {
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the task form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Task"
	if m.editMode {
		titleText = "Edit Task"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fields := []huh.Field{
		huh.NewInput().
			Title("Title").
			Placeholder("What needs doing?").
			Value(&m.fb.title).
			Validate(validateRequired("Title")),
		huh.NewText().
			Title("Description").
			Placeholder("Optional details...").
			Value(&m.fb.description),
		huh.NewSelect[string]().
			Title("Priority").
			Options(
				huh.NewOption("High", model.PriorityHigh),
				huh.NewOption("Medium", model.PriorityMedium),
				huh.NewOption("Low", model.PriorityLow),
			).
			Value(&m.fb.priority),
		huh.NewSelect[string]().
			Title("When").
			Options(
				huh.NewOption("Inbox", model.StatusInbox),
				huh.NewOption("Today", model.StatusToday),
				huh.NewOption("Upcoming", model.StatusUpcoming),
			).
			Value(&m.fb.status),
		huh.NewInput().
			Title("Due Date").
			Placeholder("YYYY-MM-DD (optional)").
			Value(&m.fb.dueDate).
			Validate(validateOptionalDate),
		huh.NewInput().
			Title("Time").
			Placeholder("HH:MM (optional)").
			Value(&m.fb.scheduledTime).
			Validate(validateOptionalClock),
		huh.NewInput().
			Title("Estimate (minutes)").
			Placeholder("optional").
			Value(&m.fb.estimated).
			Validate(validateOptionalInt),
		m.projectField(),
		m.sectionField(),
		huh.NewInput().
			Title("Tags").
			Placeholder("comma, separated").
			Value(&m.fb.tags),
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m *Model) projectField() huh.Field {
	opts := []huh.Option[string]{
		huh.NewOption("None", ""),
	}
	for _, p := range m.projects {
		opts = append(opts, huh.NewOption(p.Name, p.ID))
	}
	return huh.NewSelect[string]().
		Title("Project").
		Options(opts...).
		Value(&m.fb.projectID)
}

func (m *Model) sectionField() huh.Field {
	opts := []huh.Option[string]{
		huh.NewOption("None", ""),
	}
	for _, s := range m.sections {
		opts = append(opts, huh.NewOption(s.Name, s.ID))
	}
	return huh.NewSelect[string]().
		Title("Section").
		Options(opts...).
		Value(&m.fb.sectionID)
}

func (m Model) handleSubmit() tea.Cmd {
	if m.editMode {
		patch := m.buildPatch()
		id := m.editID
		return func() tea.Msg { return TaskUpdatedMsg{ID: id, Patch: patch} }
	}

	task := model.Task{
		Title:         m.fb.title,
		Description:   m.fb.description,
		Priority:      m.fb.priority,
		Status:        m.fb.status,
		ScheduledTime: m.fb.scheduledTime,
		Tags:          parseTags(m.fb.tags),
	}
	// Copy out of the bindings: they are reused by the next form.
	if m.fb.projectID != "" {
		task.ProjectID = model.String(m.fb.projectID)
	}
	if m.fb.sectionID != "" {
		task.SectionID = model.String(m.fb.sectionID)
	}
	if due, ok := parseDate(m.fb.dueDate); ok {
		task.DueDate = &due
	}
	if est, ok := parseInt(m.fb.estimated); ok {
		task.EstimatedDuration = est
	}
	return func() tea.Msg { return TaskCreatedMsg{Task: task} }
}

// buildPatch converts the form state into a sparse patch. Cleared
// nullable fields use the explicit clear flags so the backend nulls
// them instead of leaving them.
func (m Model) buildPatch() model.TaskPatch {
	patch := model.TaskPatch{
		Title:         model.String(m.fb.title),
		Description:   model.String(m.fb.description),
		Priority:      model.String(m.fb.priority),
		Status:        model.String(m.fb.status),
		ScheduledTime: model.String(m.fb.scheduledTime),
		Tags:          parseTags(m.fb.tags),
		HasTags:       true,
	}

	if due, ok := parseDate(m.fb.dueDate); ok {
		patch.DueDate = &due
	} else {
		patch.ClearDueDate = true
	}
	if m.fb.projectID != "" {
		patch.ProjectID = model.String(m.fb.projectID)
	} else {
		patch.ClearProject = true
	}
	if m.fb.sectionID != "" {
		patch.SectionID = model.String(m.fb.sectionID)
	} else {
		patch.ClearSection = true
	}
	if est, ok := parseInt(m.fb.estimated); ok {
		patch.EstimatedDuration = model.Int(est)
	}

	return patch
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func parseTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateOptionalDate(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}

func validateOptionalClock(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := time.Parse("15:04", strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("invalid time, use HH:MM")
	}
	return nil
}

func validateOptionalInt(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, ok := parseInt(s); !ok {
		return fmt.Errorf("enter a whole number of minutes")
	}
	return nil
}
