package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	NextTab key.Binding
	PrevTab key.Binding
	Toggle  key.Binding
	Add     key.Binding
	Rename  key.Binding
	Delete  key.Binding
	Adopt   key.Binding
	SignIn  key.Binding
	Dismiss key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		NextTab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next view"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "prev view"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "toggle today"),
		),
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Rename: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "rename"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Adopt: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "use sync ID"),
		),
		SignIn: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "sign in"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "dismiss notice"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTab, k.Add, k.Delete, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextTab, k.PrevTab},
		{k.Toggle, k.Add, k.Rename, k.Delete},
		{k.Adopt, k.SignIn, k.Dismiss},
		{k.Help, k.Quit},
	}
}
