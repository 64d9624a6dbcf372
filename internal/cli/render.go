package cli

import (
	"fmt"
	"strings"

	"github.com/julianstephens/studyplanner/internal/session"
)

// PrintHabits lists habits with their trailing 7-day grid, oldest day first.
func (c *Context) PrintHabits(v session.View) {
	if len(v.Habits) == 0 {
		c.Printf("No habits found.\n")
		return
	}
	header := make([]string, len(v.Days))
	for i, d := range v.Days {
		header[i] = d[len(d)-2:]
	}
	c.Printf("%-36s  %-24s  %s\n", "ID", "TITLE", strings.Join(header, " "))
	for _, row := range v.Grid {
		cells := make([]string, len(row.Done))
		for i, done := range row.Done {
			if done {
				cells[i] = " ✓"
			} else {
				cells[i] = " ·"
			}
		}
		c.Printf("%-36s  %-24s  %s\n", row.Habit.ID, truncate(row.Habit.Title, 24), strings.Join(cells, " "))
	}
}

// PrintScores lists the score log, newest first.
func (c *Context) PrintScores(v session.View) {
	if len(v.Scores) == 0 {
		c.Printf("No mock scores logged.\n")
		return
	}
	c.Printf("%-36s  %-10s  %-24s  %s\n", "ID", "DATE", "TITLE", "SCORE")
	for _, s := range v.Scores {
		c.Printf("%-36s  %-10s  %-24s  %g/%g (%.0f%%)\n",
			s.ID, s.Date, truncate(s.DisplayTitle(), 24), s.Score, s.Total, s.Percent())
	}
}

// PrintStats prints the dashboard metrics for the view's day.
func (c *Context) PrintStats(v session.View) {
	st := v.Stats
	c.Printf("Today (%s): %d/%d habits done (%d%%)\n", v.Today, st.TodayCount, st.TotalCount, st.DailyRate)
	c.Printf("Weekly consistency: %d%%\n", st.WeeklyConsistency)
	c.Printf("Lifetime completions: %d\n", st.LifetimeTotal)

	sum := v.Summary
	if sum.Count == 0 {
		c.Printf("Mock scores: none logged\n")
		return
	}
	c.Printf("Mock scores: %d logged, average %.1f%%, best %.1f%%\n", sum.Count, sum.AveragePercent, sum.BestPercent)
	if sum.Latest != nil {
		c.Printf("Latest: %s on %s, %s\n", sum.Latest.DisplayTitle(), sum.Latest.Date, formatPercent(sum.Latest.Percent()))
	}
}

// PrintNotice prints the pending notice, if any.
func (c *Context) PrintNotice(v session.View) {
	if v.Notice != "" {
		c.Printf("! %s\n", v.Notice)
	}
	if !v.Authenticated {
		c.Printf("! Not signed in: changes are disabled.\n")
	}
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.0f%%", p)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
