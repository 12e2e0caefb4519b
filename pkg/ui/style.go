package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	UnselectedMessage lipgloss.Style
	SelectedMessage   lipgloss.Style
	FocusedMessage    lipgloss.Style

	Header     lipgloss.Style
	Subtitle   lipgloss.Style
	Role       lipgloss.Style
	CodeHeader lipgloss.Style
	Copied     lipgloss.Style
	Hint       lipgloss.Style
	Loading    lipgloss.Style
	Error      lipgloss.Style
}

type BorderColors struct {
	Unselected string
	Selected   string
	Focused    string
	Error      string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Unselected: "#CCCCCC",
		Selected:   "#FFB6C1", // Light pink
		Focused:    "#FFFF99", // Light yellow
		Error:      "#D70000",
	}

	darkModeColors := BorderColors{
		Unselected: "#444444",
		Selected:   "#DD7090",
		Focused:    "#DDDD77",
		Error:      "#FF5F5F",
	}

	return &Style{
		UnselectedMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Unselected,
				Dark:  darkModeColors.Unselected,
			}),
		SelectedMessage: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Selected,
				Dark:  darkModeColors.Selected,
			}),
		FocusedMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Focused,
				Dark:  darkModeColors.Focused,
			}),

		Header:     lipgloss.NewStyle().Bold(true),
		Subtitle:   lipgloss.NewStyle().Faint(true),
		Role:       lipgloss.NewStyle().Bold(true),
		CodeHeader: lipgloss.NewStyle().Faint(true),
		Copied: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#008700", Dark: "#87FF87"}),
		Hint:    lipgloss.NewStyle().Faint(true).Italic(true),
		Loading: lipgloss.NewStyle().Italic(true),
		Error: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Error,
				Dark:  darkModeColors.Error,
			}),
	}
}
