package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	SelectPrevMessage key.Binding
	SelectNextMessage key.Binding
	UnfocusMessage    key.Binding
	FocusMessage      key.Binding
	SubmitMessage     key.Binding
	ScrollUp          key.Binding
	ScrollDown        key.Binding

	Reformat      key.Binding
	CopyCode      key.Binding
	NextCodeBlock key.Binding
	PrevCodeBlock key.Binding

	DismissError key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	SelectPrevMessage: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "previous message"),
	),
	SelectNextMessage: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "next message"),
	),
	UnfocusMessage: key.NewBinding(
		key.WithKeys("esc", "ctrl+g"),
		key.WithHelp("esc", "browse messages"),
	),
	FocusMessage: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "write message"),
	),
	SubmitMessage: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "send"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("shift+pgup"),
		key.WithHelp("shift+pgup", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("shift+pgdown"),
		key.WithHelp("shift+pgdown", "scroll down"),
	),
	Reformat: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "beautify"),
	),
	CopyCode: key.NewBinding(
		key.WithKeys("c", "y"),
		key.WithHelp("c", "copy code"),
	),
	NextCodeBlock: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→", "next code block"),
	),
	PrevCodeBlock: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←", "previous code block"),
	),
	DismissError: key.NewBinding(
		key.WithKeys("esc", "enter"),
		key.WithHelp("esc", "dismiss error"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.SubmitMessage,
		k.UnfocusMessage,
		k.FocusMessage,
		k.Reformat,
		k.CopyCode,
		k.DismissError,
		k.Help,
		k.Quit,
	}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SubmitMessage, k.UnfocusMessage, k.FocusMessage},
		{k.SelectPrevMessage, k.SelectNextMessage, k.ScrollUp, k.ScrollDown},
		{k.Reformat, k.CopyCode, k.PrevCodeBlock, k.NextCodeBlock},
		{k.DismissError, k.Help, k.Quit},
	}
}
