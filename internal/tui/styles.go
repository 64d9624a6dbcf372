package tui

import "github.com/charmbracelet/lipgloss"

// Colors adapt to the terminal background.
var (
	accent  = lipgloss.AdaptiveColor{Light: "125", Dark: "205"}
	brand   = lipgloss.AdaptiveColor{Light: "57", Dark: "99"}
	subtle  = lipgloss.AdaptiveColor{Light: "250", Dark: "238"}
	faint   = lipgloss.AdaptiveColor{Light: "245", Dark: "244"}
	success = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}
	caution = lipgloss.AdaptiveColor{Light: "166", Dark: "214"}
	alarm   = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
)

var (
	tabStyle         = lipgloss.NewStyle().Padding(0, 1)
	activeTabStyle   = tabStyle.Foreground(accent).Bold(true).Underline(true)
	inactiveTabStyle = tabStyle.Foreground(faint)

	titleStyle = lipgloss.NewStyle().Foreground(brand).Bold(true).MarginBottom(1)

	// statStyle frames one dashboard metric card.
	statStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brand).
			Padding(0, 2).
			MarginRight(1)

	doneStyle = lipgloss.NewStyle().Foreground(success)
	missStyle = lipgloss.NewStyle().Foreground(subtle)

	dangerStyle  = lipgloss.NewStyle().Foreground(alarm).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(caution)
	mutedStyle   = lipgloss.NewStyle().Foreground(faint)

	docStyle = lipgloss.NewStyle().Margin(1, 2)
)
