// Package app is the root Bubble Tea model: view routing, layout, and
// the glue between the UI packages, the state store, and the syncer.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/avhall/taskdeck/internal/backend"
	"github.com/avhall/taskdeck/internal/credential"
	"github.com/avhall/taskdeck/internal/keys"
	"github.com/avhall/taskdeck/internal/model"
	"github.com/avhall/taskdeck/internal/ordering"
	"github.com/avhall/taskdeck/internal/prefs"
	"github.com/avhall/taskdeck/internal/state"
	appsync "github.com/avhall/taskdeck/internal/sync"
	"github.com/avhall/taskdeck/internal/theme"
	"github.com/avhall/taskdeck/internal/ui"
	"github.com/avhall/taskdeck/internal/ui/command"
	"github.com/avhall/taskdeck/internal/ui/dashboard"
	helpview "github.com/avhall/taskdeck/internal/ui/help"
	loginview "github.com/avhall/taskdeck/internal/ui/login"
	"github.com/avhall/taskdeck/internal/ui/projectmgr"
	"github.com/avhall/taskdeck/internal/ui/taskform"
	"github.com/avhall/taskdeck/internal/ui/tasklist"
)

// feedRetryDelay is how long the app waits before resubscribing after
// the change feed drops.
const feedRetryDelay = 3 * time.Second

// CaptureFunc runs one email capture pass and reports how many tasks it
// created. Nil when capture is not configured.
type CaptureFunc func(ctx context.Context) (int, error)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewTasks
	ViewProjectList
	ViewDashboard
	ViewHelp
	ViewCommand
	ViewTaskCreate
	ViewTaskEdit
)

type feedRetryMsg struct{}

type captureResultMsg struct {
	count int
	err   error
}

type prefsSavedMsg struct {
	err error
}

// Model is the root Bubble Tea model that manages view routing, layout,
// and access to the sync layer.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        *state.Store
	syncer       *appsync.Syncer
	keys         *keys.KeyMap
	prefs        prefs.Prefs
	prefsPath    string
	capture      CaptureFunc

	taskList    tasklist.Model
	taskForm    taskform.Model
	loginView   loginview.Model
	projectView projectmgr.Model
	dashView    dashboard.Model
	helpView    helpview.Model
	commandView command.Model

	ready      bool
	statusText string
	statusErr  bool
}

// New creates the root application model. capture may be nil when email
// capture is not configured.
func New(store *state.Store, syncer *appsync.Syncer, p prefs.Prefs, prefsPath string, capture CaptureFunc) Model {
	km := keys.DefaultKeyMap()
	theme.SetDarkMode(p.DarkMode)

	m := Model{
		currentView: ViewLogin,
		store:       store,
		syncer:      syncer,
		keys:        km,
		prefs:       p,
		prefsPath:   prefsPath,
		capture:     capture,
		taskList:    tasklist.New(store, km, 80, 24),
		taskForm:    taskform.New(80, 24),
		loginView:   loginview.New(80, 24),
		projectView: projectmgr.New(store, 80, 24),
		dashView:    dashboard.New(store, 80, 24),
		helpView:    helpview.New(km, 80, 24),
		commandView: command.New(80, 24),
	}
	m.layout.ShowSidebar = !p.SidebarCollapsed
	return m
}

// Init tries to restore the saved session; the login screen is shown
// when no session can be resumed.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loginView.Init(), m.restoreSession())
}

// restoreSession reads the saved refresh token and asks the backend to
// resume the session. A missing token just leaves the login screen up.
func (m Model) restoreSession() tea.Cmd {
	syncer := m.syncer
	return func() tea.Msg {
		token, err := credential.Get(credential.KeyRefreshToken)
		if err != nil || token == "" {
			return nil
		}
		return syncer.RestoreSession(token)()
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case appsync.SessionMsg:
		return m.handleSession(msg)

	case appsync.InitialLoadMsg:
		if msg.Err != nil {
			m.setStatus("load failed: "+msg.Err.Error(), true)
		}
		return m, m.reloadViews()

	case appsync.ChangeFeedMsg:
		return m, tea.Batch(m.reloadViews(), m.syncer.WaitForNextMsg())

	case appsync.FeedDroppedMsg:
		m.setStatus("realtime feed dropped, reconnecting...", true)
		return m, tea.Tick(feedRetryDelay, func(time.Time) tea.Msg {
			return feedRetryMsg{}
		})

	case feedRetryMsg:
		if u := m.store.User(); u != nil {
			return m, m.syncer.StartFeed(u.ID)
		}
		return m, nil

	case appsync.WriteResultMsg:
		if msg.Err != nil {
			m.setStatus(msg.Err.Error(), true)
		} else {
			m.clearStatus()
		}
		return m, m.reloadViews()

	case appsync.RefreshDueMsg:
		// A stale timer after sign-out must not resume the session.
		if m.store.User() != nil {
			return m, m.syncer.RestoreSession(msg.RefreshToken)
		}
		return m, nil

	case appsync.SignedOutMsg:
		if err := credential.Delete(credential.KeyRefreshToken); err != nil {
			m.setStatus("could not clear saved session: "+err.Error(), true)
		}
		m.currentView = ViewLogin
		m.loginView = loginview.New(m.layout.Width, m.layout.Height)
		return m, m.loginView.Init()

	case loginview.SubmitMsg:
		return m, m.dispatchAuth(msg)

	case tasklist.SelectedTaskMsg, tasklist.EditRequestMsg:
		return m.startEdit(msg)

	case tasklist.DeleteRequestMsg:
		return m, m.syncer.DeleteTask(msg.TaskID)

	case tasklist.ToggleCompleteMsg:
		return m, m.toggleComplete(msg.Task)

	case tasklist.ReorderMsg:
		return m, m.syncer.ReorderTasks(msg.Tasks)

	case tasklist.ToggleSectionMsg:
		return m, m.toggleSection(msg.SectionID)

	case taskform.TaskCreatedMsg:
		m.currentView = m.previousView
		task := msg.Task
		if u := m.store.User(); u != nil {
			task.UserID = u.ID
		}
		task.OrderIndex = m.nextOrderIndex(task)
		return m, tea.Batch(m.syncer.CreateTask(task), m.reloadViews())

	case taskform.TaskUpdatedMsg:
		m.currentView = m.previousView
		return m, tea.Batch(m.syncer.UpdateTask(msg.ID, msg.Patch), m.reloadViews())

	case taskform.CancelMsg:
		m.currentView = m.previousView
		return m, m.reloadViews()

	case projectmgr.OpenProjectMsg:
		m.currentView = ViewTasks
		return m, m.taskList.SetScope(state.ViewProjects, msg.ID)

	case projectmgr.CreateProjectMsg:
		project := msg.Project
		if u := m.store.User(); u != nil {
			project.UserID = u.ID
		}
		return m, tea.Batch(m.syncer.CreateProject(project), m.projectView.Reload())

	case projectmgr.UpdateProjectMsg:
		return m, tea.Batch(m.syncer.UpdateProject(msg.ID, msg.Patch), m.projectView.Reload())

	case projectmgr.DeleteProjectMsg:
		return m, tea.Batch(m.syncer.DeleteProject(msg.ID), m.projectView.Reload())

	case command.ExecuteMsg:
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case captureResultMsg:
		if msg.err != nil {
			m.setStatus("capture failed: "+msg.err.Error(), true)
		} else {
			m.setStatus(fmt.Sprintf("captured %d flagged emails", msg.count), false)
		}
		return m, m.reloadViews()

	case prefsSavedMsg:
		if msg.err != nil {
			m.setStatus("saving preferences: "+msg.err.Error(), true)
		}
		return m, nil

	case tea.KeyMsg:
		if newModel, cmd, handled := m.handleGlobalKey(msg); handled {
			return newModel, cmd
		}
	}

	return m.updateActiveView(msg)
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	showSidebar := m.layout.ShowSidebar
	m.layout = ui.NewLayout(msg.Width, msg.Height)
	m.layout.ShowSidebar = showSidebar
	m.ready = true

	cw := m.layout.ContentWidth()
	ch := m.layout.ContentHeight()
	m.taskList.SetSize(cw, ch)
	m.taskForm.SetSize(cw, ch)
	m.loginView.SetSize(msg.Width, msg.Height)
	m.projectView.SetSize(cw, ch)
	m.dashView.SetSize(cw, ch)
	m.helpView.SetSize(cw, ch)
	m.commandView.SetSize(cw, ch)

	// Forward to the active view so huh forms can recalculate.
	return m.updateActiveView(msg)
}

func (m Model) handleSession(msg appsync.SessionMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		if errors.Is(msg.Err, backend.ErrConfirmationRequired) {
			m.loginView.ShowConfirmationNotice()
			m.currentView = ViewLogin
			return m, nil
		}
		m.currentView = ViewLogin
		if backend.IsAuthError(msg.Err) {
			var authErr *backend.AuthError
			errors.As(msg.Err, &authErr)
			return m, m.loginView.SetError(errors.New(authErr.Message))
		}
		return m, m.loginView.SetError(msg.Err)
	}

	user := msg.Session.User
	m.store.SetUser(&user)
	m.clearStatus()

	var cmds []tea.Cmd
	if msg.Session.RefreshToken != "" {
		if err := credential.Set(credential.KeyRefreshToken, msg.Session.RefreshToken); err != nil {
			m.setStatus("could not save session: "+err.Error(), true)
		}
	}

	m.currentView = m.viewFromPrefs()
	cmds = append(cmds,
		m.syncer.InitialLoad(user.ID),
		m.syncer.StartFeed(user.ID),
		m.reloadViews(),
	)
	if c := m.syncer.ScheduleRefresh(msg.Session); c != nil {
		cmds = append(cmds, c)
	}
	return m, tea.Batch(cmds...)
}

// viewFromPrefs maps the persisted view name to a view state, scoping
// the task list accordingly.
func (m *Model) viewFromPrefs() ViewState {
	switch m.prefs.CurrentView {
	case state.ViewProjects:
		return ViewProjectList
	case state.ViewDashboard:
		return ViewDashboard
	case state.ViewToday, state.ViewUpcoming, state.ViewCompleted, state.ViewInbox:
		m.taskList.SetScope(m.prefs.CurrentView, "")
		return ViewTasks
	}
	return ViewTasks
}

func (m Model) dispatchAuth(msg loginview.SubmitMsg) tea.Cmd {
	creds := backend.Credentials{Email: msg.Email, Password: msg.Password}
	switch msg.Mode {
	case loginview.ModeSignUp:
		return m.syncer.SignUp(creds)
	case loginview.ModeCode:
		return m.syncer.ExchangeCode(msg.Code)
	}
	return m.syncer.SignIn(creds)
}

func (m Model) startEdit(msg tea.Msg) (tea.Model, tea.Cmd) {
	var task model.Task
	switch msg := msg.(type) {
	case tasklist.SelectedTaskMsg:
		t, ok := m.store.TaskByID(msg.TaskID)
		if !ok {
			return m, nil
		}
		task = t
	case tasklist.EditRequestMsg:
		task = msg.Task
	}

	m.previousView = m.currentView
	m.currentView = ViewTaskEdit
	m.taskForm.SetOptions(m.store.Projects(), m.store.Sections())
	return m, m.taskForm.StartEdit(task)
}

// nextOrderIndex assigns a client-side creation index for the new
// task's scope (its section, project, and status bucket): the current
// clock in UnixMilli, clamped strictly above the scope's maximum, so
// both backends receive the same approximately insertion-ordered index.
func (m Model) nextOrderIndex(task model.Task) int64 {
	var existing []int64
	for _, t := range m.store.Tasks() {
		if t.Status != task.Status {
			continue
		}
		if !sameRef(t.ProjectID, task.ProjectID) || !sameRef(t.SectionID, task.SectionID) {
			continue
		}
		existing = append(existing, t.OrderIndex)
	}
	return ordering.NextAt(existing, time.Now())
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m Model) toggleComplete(task model.Task) tea.Cmd {
	status := model.StatusCompleted
	if task.IsCompleted() {
		status = model.StatusInbox
	}
	return m.syncer.UpdateTask(task.ID, model.TaskPatch{Status: model.String(status)})
}

// toggleSection persists a collapse state the task list already applied
// to the store.
func (m Model) toggleSection(sectionID string) tea.Cmd {
	for _, sec := range m.store.Sections() {
		if sec.ID == sectionID {
			return m.syncer.UpdateSection(sec)
		}
	}
	return nil
}

// handleGlobalKey processes shortcuts that work across views. Returns
// handled=false when the key should flow to the active view instead.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	// Text-entry surfaces get every key.
	switch m.currentView {
	case ViewLogin, ViewTaskCreate, ViewTaskEdit, ViewCommand:
		if msg.String() == "ctrl+c" {
			m.syncer.StopFeed()
			return m, tea.Quit, true
		}
		return m, nil, false
	case ViewTasks:
		if m.taskList.Searching() {
			return m, nil, false
		}
	}

	switch msg.String() {
	case "ctrl+c":
		m.syncer.StopFeed()
		return m, tea.Quit, true

	case "q":
		if m.currentView == ViewTasks || m.currentView == ViewDashboard {
			m.syncer.StopFeed()
			return m, tea.Quit, true
		}

	case "?":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case ":":
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus(), true

	case "n":
		if m.currentView == ViewTasks {
			m.previousView = m.currentView
			m.currentView = ViewTaskCreate
			m.taskForm.SetOptions(m.store.Projects(), m.store.Sections())
			return m, m.taskForm.StartCreate(m.store.View()), true
		}

	case "T":
		m.prefs.DarkMode = !m.prefs.DarkMode
		theme.SetDarkMode(m.prefs.DarkMode)
		return m, m.savePrefs(), true

	case "b":
		m.layout.ShowSidebar = !m.layout.ShowSidebar
		m.prefs.SidebarCollapsed = !m.layout.ShowSidebar
		cw, ch := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.taskList.SetSize(cw, ch)
		m.projectView.SetSize(cw, ch)
		m.dashView.SetSize(cw, ch)
		return m, m.savePrefs(), true

	case "esc":
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
	}

	if view, ok := m.matchViewKey(msg); ok {
		return m.switchView(view)
	}

	return m, nil, false
}

func (m Model) matchViewKey(msg tea.KeyMsg) (string, bool) {
	switch msg.String() {
	case "1":
		return state.ViewInbox, true
	case "2":
		return state.ViewToday, true
	case "3":
		return state.ViewUpcoming, true
	case "4":
		return state.ViewCompleted, true
	case "5":
		return state.ViewProjects, true
	case "0":
		return state.ViewDashboard, true
	}
	return "", false
}

func (m Model) switchView(view string) (tea.Model, tea.Cmd, bool) {
	m.store.SetView(view)
	m.prefs.CurrentView = view
	saveCmd := m.savePrefs()

	switch view {
	case state.ViewProjects:
		m.previousView = m.currentView
		m.currentView = ViewProjectList
		return m, tea.Batch(m.projectView.Reload(), saveCmd), true
	case state.ViewDashboard:
		m.previousView = m.currentView
		m.currentView = ViewDashboard
		return m, saveCmd, true
	default:
		m.previousView = m.currentView
		m.currentView = ViewTasks
		return m, tea.Batch(m.taskList.SetScope(view, ""), saveCmd), true
	}
}

// executeCommand handles a parsed command from the palette.
func (m Model) executeCommand(msg command.ExecuteMsg) (tea.Model, tea.Cmd) {
	switch msg.Name {
	case "quit", "q":
		m.syncer.StopFeed()
		return m, tea.Quit

	case "inbox", "today", "upcoming", "completed", "projects", "dashboard":
		newModel, cmd, _ := m.switchView(msg.Name)
		return newModel, cmd

	case "project":
		for _, p := range m.store.Projects() {
			if p.Name == msg.Args {
				m.currentView = ViewTasks
				m.store.SetView(state.ViewProjects)
				return m, m.taskList.SetScope(state.ViewProjects, p.ID)
			}
		}
		m.setStatus(fmt.Sprintf("no project named %q", msg.Args), true)
		return m, nil

	case "capture":
		if m.capture == nil {
			m.setStatus("email capture is not configured", true)
			return m, nil
		}
		capture := m.capture
		m.setStatus("capturing flagged emails...", false)
		return m, func() tea.Msg {
			count, err := capture(context.Background())
			return captureResultMsg{count: count, err: err}
		}

	case "signout", "logout":
		return m, m.syncer.SignOut()

	default:
		m.setStatus(fmt.Sprintf("unknown command: %s", msg.Name), true)
		return m, nil
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewTasks:
		m.taskList, cmd = m.taskList.Update(msg)
	case ViewProjectList:
		m.projectView, cmd = m.projectView.Update(msg)
	case ViewDashboard:
		m.dashView, cmd = m.dashView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewTaskCreate, ViewTaskEdit:
		m.taskForm, cmd = m.taskForm.Update(msg)
	}

	return m, cmd
}

// reloadViews rebuilds the row-based views from the store.
func (m Model) reloadViews() tea.Cmd {
	return tea.Batch(m.taskList.Reload(), m.projectView.Reload())
}

func (m Model) savePrefs() tea.Cmd {
	p := m.prefs
	path := m.prefsPath
	return func() tea.Msg {
		return prefsSavedMsg{err: prefs.Save(path, p)}
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.statusText = text
	m.statusErr = isErr
}

func (m *Model) clearStatus() {
	m.statusText = ""
	m.statusErr = false
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.currentView == ViewLogin {
		return m.loginView.View()
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.syncStatus())
	sidebar := ""
	if m.layout.SidebarVisible() {
		sidebar = m.layout.RenderSidebar(m.sidebarEntries())
	}
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.statusLine())

	return m.layout.RenderWithFrame(header, sidebar, content, statusBar)
}

func (m Model) headerTitle() string {
	title := "taskdeck"
	if u := m.store.User(); u != nil && u.Email != "" {
		title = "taskdeck · " + u.Email
	}
	return title
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewTasks:
		return m.taskList.View()
	case ViewProjectList:
		return m.projectView.View()
	case ViewDashboard:
		return m.dashView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewTaskCreate, ViewTaskEdit:
		return m.taskForm.View()
	default:
		return ""
	}
}

// syncStatus summarizes the per-record write lifecycle for the header.
func (m Model) syncStatus() string {
	if m.store.Loading() {
		return "loading..."
	}

	pending, failed := 0, 0
	for _, t := range m.store.Tasks() {
		switch t.SyncState {
		case model.SyncPending:
			pending++
		case model.SyncFailed:
			failed++
		}
	}
	if failed > 0 {
		return fmt.Sprintf("%d failed", failed)
	}
	if pending > 0 {
		return fmt.Sprintf("syncing (%d)", pending)
	}
	return "synced"
}

func (m Model) sidebarEntries() []ui.SidebarEntry {
	counts := map[string]int{}
	for _, t := range m.store.Tasks() {
		counts[t.Status]++
	}

	active := m.store.View()
	entries := []ui.SidebarEntry{
		{Label: "1 Inbox", Count: counts[model.StatusInbox], Active: active == state.ViewInbox},
		{Label: "2 Today", Count: counts[model.StatusToday], Active: active == state.ViewToday},
		{Label: "3 Upcoming", Count: counts[model.StatusUpcoming], Active: active == state.ViewUpcoming},
		{Label: "4 Completed", Active: active == state.ViewCompleted},
		{Label: "5 Projects", Count: len(m.store.Projects()), Active: active == state.ViewProjects},
		{Label: "0 Dashboard", Active: active == state.ViewDashboard},
	}
	return entries
}

// statusLine returns the status bar content: the last error or notice
// when present, keyboard hints otherwise.
func (m Model) statusLine() string {
	if m.statusText != "" {
		return m.statusText
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewTaskCreate, ViewTaskEdit:
		return "enter submit | esc cancel"
	case ViewProjectList:
		return "enter open | n new | e edit | d delete | ? help"
	case ViewDashboard:
		return "1-5 views | ? help | q quit"
	default:
		return "q quit | ? help | n new | / search | J/K move | z fold | : command"
	}
}
