package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the history browser's bindings. Copy and export act on the
// selected notification or on everything the current filter shows.
type KeyMap struct {
	Up, Down         key.Binding
	PageUp, PageDown key.Binding
	Home, End        key.Binding

	Enter, Back key.Binding

	CopyBody    key.Binding
	CopyURL     key.Binding
	CopyAllJSON key.Binding
	CopyAllYAML key.Binding

	Dismiss         key.Binding
	ToggleDismissed key.Binding
	Search          key.Binding
	Refresh         key.Binding

	Quit key.Binding
	Help key.Binding
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Dismiss, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap. Columns are movement, the selected
// notification, the visible list, and the browser itself.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Home, k.End},
		{k.Enter, k.Back, k.CopyBody, k.CopyURL, k.Dismiss},
		{k.Search, k.ToggleDismissed, k.CopyAllJSON, k.CopyAllYAML},
		{k.Refresh, k.Help, k.Quit},
	}
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

// DefaultKeyMap returns vim-style bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       bind("↑/k", "newer", "up", "k"),
		Down:     bind("↓/j", "older", "down", "j"),
		PageUp:   bind("pgup", "newer page", "pgup", "ctrl+u"),
		PageDown: bind("pgdn", "older page", "pgdown", "ctrl+d"),
		Home:     bind("g", "newest", "home", "g"),
		End:      bind("G", "oldest", "end", "G"),

		Enter: bind("enter", "open notification", "enter"),
		Back:  bind("esc", "back to list", "esc", "backspace"),

		CopyBody:    bind("c", "copy message text", "c"),
		CopyURL:     bind("u", "copy room link", "u"),
		CopyAllJSON: bind("C", "export list as JSON", "C"),
		CopyAllYAML: bind("Y", "export list as YAML", "Y"),

		Dismiss:         bind("d", "mark read", "d"),
		ToggleDismissed: bind("a", "show/hide read", "a"),
		Search:          bind("/", "filter (kind: room: tag: status:)", "/"),
		Refresh:         bind("r", "reload history", "r"),

		Quit: bind("q", "quit", "q", "ctrl+c"),
		Help: bind("?", "keys", "?"),
	}
}
