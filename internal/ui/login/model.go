// Package login is the sign-in / sign-up screen shown before a session
// exists.
package login

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/avhall/taskdeck/internal/theme"
)

// Mode selects which credential flow the form collects input for.
type Mode int

const (
	ModeSignIn Mode = iota
	ModeSignUp
	ModeCode
)

// SubmitMsg carries the credentials the user entered. The app layer
// turns it into the matching auth command.
type SubmitMsg struct {
	Mode     Mode
	Email    string
	Password string
	Code     string
}

// formBindings holds field values on the heap so huh Value() pointers
// survive Bubble Tea model copies.
type formBindings struct {
	email    string
	password string
	confirm  string
	code     string
}

// Model is the Bubble Tea model for the authentication screen.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	mode    Mode
	errText string
	// awaitingConfirm is set after a sign-up that requires email
	// confirmation; the form is replaced with an instruction screen.
	awaitingConfirm bool
	width           int
	height          int
}

// New creates the login model in sign-in mode.
func New(width, height int) Model {
	m := Model{
		fb:     &formBindings{},
		mode:   ModeSignIn,
		width:  width,
		height: height,
	}
	m.form = m.buildForm()
	return m
}

// SetError shows an inline error message and resets the form so the
// user can retry.
func (m *Model) SetError(err error) tea.Cmd {
	if err == nil {
		m.errText = ""
		return nil
	}
	m.errText = err.Error()
	m.fb.password = ""
	m.fb.confirm = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// ShowConfirmationNotice replaces the form with a "check your email"
// screen after a sign-up that requires confirmation.
func (m *Model) ShowConfirmationNotice() {
	m.awaitingConfirm = true
	m.errText = ""
}

// Init starts the underlying form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles key input and form state transitions.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		// huh consumes tab for field navigation, so mode switching is
		// bound to ctrl+t.
		case "ctrl+t":
			return m.cycleMode()
		case "enter":
			if m.awaitingConfirm {
				m.awaitingConfirm = false
				m.mode = ModeSignIn
				m.form = m.buildForm()
				return m, m.form.Init()
			}
		}
	}

	if m.awaitingConfirm {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		return m, m.submit()
	}
	if m.form.State == huh.StateAborted {
		// Rebuild so the screen stays usable after esc.
		m.form = m.buildForm()
		return m, m.form.Init()
	}

	return m, cmd
}

// View renders the login screen centered in the window.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorBlue).
		Render("taskdeck")

	var body string
	switch {
	case m.awaitingConfirm:
		body = lipgloss.NewStyle().Foreground(theme.ColorGreen).
			Render("Account created. Check your email to confirm,\nthen press enter to sign in.")
	default:
		body = m.form.View()
	}

	var parts []string
	parts = append(parts, title, "", m.modeLabel(), "")
	if m.errText != "" {
		parts = append(parts, theme.ErrorStyle.Render(m.errText), "")
	}
	parts = append(parts, body, "",
		theme.HelpStyle.Render("ctrl+t: switch mode · ctrl+c: quit"))

	content := lipgloss.JoinVertical(lipgloss.Left, parts...)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// SetSize updates the screen dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) cycleMode() (Model, tea.Cmd) {
	m.mode = (m.mode + 1) % 3
	m.errText = ""
	m.awaitingConfirm = false
	m.form = m.buildForm()
	return m, m.form.Init()
}

func (m Model) modeLabel() string {
	var label string
	switch m.mode {
	case ModeSignIn:
		label = "Sign in with email and password"
	case ModeSignUp:
		label = "Create a new account"
	case ModeCode:
		label = "Sign in with an OAuth code"
	}
	return lipgloss.NewStyle().Foreground(theme.ColorGray).Render(label)
}

func (m Model) submit() tea.Cmd {
	msg := SubmitMsg{
		Mode:     m.mode,
		Email:    strings.TrimSpace(strings.ToLower(m.fb.email)),
		Password: m.fb.password,
		Code:     strings.TrimSpace(m.fb.code),
	}
	return func() tea.Msg { return msg }
}

func (m *Model) buildForm() *huh.Form {
	var fields []huh.Field

	switch m.mode {
	case ModeCode:
		fields = append(fields,
			huh.NewInput().
				Title("Authorization Code").
				Placeholder("paste the code from your browser").
				Value(&m.fb.code).
				Validate(required("Code")),
		)
	default:
		fields = append(fields,
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(required("Password")),
		)
		if m.mode == ModeSignUp {
			fields = append(fields,
				huh.NewInput().
					Title("Confirm Password").
					EchoMode(huh.EchoModePassword).
					Value(&m.fb.confirm).
					Validate(m.validateConfirm),
			)
		}
	}

	return huh.NewForm(huh.NewGroup(fields...)).WithWidth(48)
}

func (m *Model) validateConfirm(s string) error {
	if s != m.fb.password {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("Email is required")
	}
	if !strings.Contains(s, "@") {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}
