package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Search
	Search key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// View switching
	ViewInbox     key.Binding
	ViewToday     key.Binding
	ViewUpcoming  key.Binding
	ViewCompleted key.Binding
	ViewProjects  key.Binding
	ViewDashboard key.Binding

	// Task actions
	NewTask    key.Binding
	EditTask   key.Binding
	DeleteTask key.Binding
	Complete   key.Binding

	// Reordering
	MoveUp   key.Binding
	MoveDown key.Binding

	// Section handling
	ToggleSection key.Binding

	// Appearance
	ToggleDark    key.Binding
	ToggleSidebar key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open task"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command palette"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		ViewInbox: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "inbox"),
		),
		ViewToday: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "today"),
		),
		ViewUpcoming: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "upcoming"),
		),
		ViewCompleted: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "completed"),
		),
		ViewProjects: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "projects"),
		),
		ViewDashboard: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "dashboard"),
		),
		NewTask: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new task"),
		),
		EditTask: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit task"),
		),
		DeleteTask: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete task"),
		),
		Complete: key.NewBinding(
			key.WithKeys("x", " "),
			key.WithHelp("x", "toggle done"),
		),
		MoveUp: key.NewBinding(
			key.WithKeys("K", "shift+up"),
			key.WithHelp("K", "move up"),
		),
		MoveDown: key.NewBinding(
			key.WithKeys("J", "shift+down"),
			key.WithHelp("J", "move down"),
		),
		ToggleSection: key.NewBinding(
			key.WithKeys("z"),
			key.WithHelp("z", "fold section"),
		),
		ToggleDark: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "toggle theme"),
		),
		ToggleSidebar: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "toggle sidebar"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Select, k.NewTask,
		k.Complete, k.Quit, k.Help,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.ViewInbox, k.ViewToday, k.ViewUpcoming, k.ViewCompleted, k.ViewProjects, k.ViewDashboard},
		{k.NewTask, k.EditTask, k.DeleteTask, k.Complete},
		{k.MoveUp, k.MoveDown, k.ToggleSection, k.Search, k.Command},
		{k.ToggleDark, k.ToggleSidebar, k.Help},
	}
}
