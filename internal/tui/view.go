package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/studyplanner/internal/constants"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(constants.DisplayName))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	if m.view.Notice != "" {
		b.WriteString(warningStyle.Render(m.view.Notice + "  (x to dismiss)"))
		b.WriteString("\n")
	}
	if !m.view.Authenticated {
		b.WriteString(warningStyle.Render("Not signed in: changes are disabled (i to retry)"))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.state != StateBrowse && m.form != nil {
		b.WriteString(m.form.View())
		return docStyle.Render(b.String())
	}

	switch {
	case m.view.Loading:
		b.WriteString(mutedStyle.Render("Loading…"))
	case m.view.LoadErr != nil && m.tab != TabSync:
		b.WriteString(dangerStyle.Render(m.view.LoadErr.Error()))
	default:
		switch m.tab {
		case TabHabits:
			b.WriteString(m.renderHabits())
		case TabScores:
			b.WriteString(m.renderScores())
		case TabSync:
			b.WriteString(m.renderSync())
		}
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(mutedStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return docStyle.Render(b.String())
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if Tab(i) == m.tab {
			tabs[i] = activeTabStyle.Render(name)
		} else {
			tabs[i] = inactiveTabStyle.Render(name)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderHabits() string {
	st := m.view.Stats
	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		statStyle.Render(fmt.Sprintf("Today\n%d/%d · %d%%", st.TodayCount, st.TotalCount, st.DailyRate)),
		statStyle.Render(fmt.Sprintf("7-day consistency\n%d%%", st.WeeklyConsistency)),
		statStyle.Render(fmt.Sprintf("Lifetime\n%d", st.LifetimeTotal)),
	)
	if len(m.view.Habits) == 0 {
		return cards + "\n" + mutedStyle.Render("No habits yet. Press a to add one.")
	}
	days := make([]string, len(m.view.Days))
	for i, d := range m.view.Days {
		days[i] = d[len(d)-2:]
	}
	header := mutedStyle.Render("last 7 days: " + strings.Join(days, " "))
	return cards + "\n" + header + "\n" + m.habits.View()
}

func (m Model) renderScores() string {
	sum := m.view.Summary
	if sum.Count == 0 {
		return mutedStyle.Render("No mock scores logged. Press a to log one.")
	}
	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		statStyle.Render(fmt.Sprintf("Mocks\n%d", sum.Count)),
		statStyle.Render(fmt.Sprintf("Average\n%.1f%%", sum.AveragePercent)),
		statStyle.Render(fmt.Sprintf("Best\n%.1f%%", sum.BestPercent)),
	)
	return cards + "\n" + m.scores.View()
}

func (m Model) renderSync() string {
	var b strings.Builder
	b.WriteString("Sync ID\n")
	b.WriteString(activeTabStyle.Render(m.sess.Identity()))
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("Enter this ID on another device to share habits and scores.\nPress s to switch this device to another ID."))
	if m.view.LoadErr != nil {
		b.WriteString("\n\n")
		b.WriteString(dangerStyle.Render(m.view.LoadErr.Error()))
	}
	return b.String()
}
