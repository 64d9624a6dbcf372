package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/studyplanner/internal/session"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		h, v := docStyle.GetFrameSize()
		listHeight := msg.Height - v - 9
		if listHeight < 3 {
			listHeight = 3
		}
		m.habits.SetSize(msg.Width-h, listHeight)
		m.scores.SetSize(msg.Width-h, listHeight)
		m.help.Width = msg.Width - h
		return m, nil

	case viewMsg:
		// A view from before a switch may still be in flight.
		if msg.Identity == "" || msg.Identity == m.sess.Identity() {
			m.setView(session.View(msg))
		}
		return m, waitForView(m.sess.Views())

	case writeDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = msg.action
		}
		return m, nil
	}

	if m.state != StateBrowse {
		return m.updateForm(msg)
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(msg)
	}
	return m.updateList(msg)
}

func (m Model) filtering() bool {
	switch m.tab {
	case TabHabits:
		return m.habits.FilterState() == list.Filtering
	case TabScores:
		return m.scores.FilterState() == list.Filtering
	}
	return false
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering() {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextTab):
		m.tab = (m.tab + 1) % Tab(len(tabNames))
		return m, nil
	case key.Matches(msg, m.keys.PrevTab):
		m.tab = (m.tab + Tab(len(tabNames)) - 1) % Tab(len(tabNames))
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Dismiss):
		m.status = ""
		m.sess.DismissNotice()
		return m, nil
	case key.Matches(msg, m.keys.SignIn):
		if m.view.Authenticated {
			return m, nil
		}
		return m, m.write("Signed in", m.sess.SignIn)
	}

	switch m.tab {
	case TabHabits:
		return m.handleHabitKey(msg)
	case TabScores:
		return m.handleScoreKey(msg)
	case TabSync:
		if key.Matches(msg, m.keys.Adopt) {
			m.syncForm = &SyncFormModel{}
			fm := m.syncForm
			return m.openForm(StateForm, NewSyncForm(fm), func() tea.Cmd {
				return m.write("Switched sync ID", func(ctx context.Context) error {
					_, err := m.sess.SwitchIdentity(ctx, fm.ID)
					return err
				})
			})
		}
	}
	return m, nil
}

func (m Model) handleHabitKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Add):
		m.habitForm = &HabitFormModel{}
		fm := m.habitForm
		return m.openForm(StateForm, NewHabitForm(fm, "New habit"), func() tea.Cmd {
			return m.write("Added habit", func(ctx context.Context) error {
				_, err := m.sess.AddHabit(ctx, fm.Title)
				return err
			})
		})

	case key.Matches(msg, m.keys.Toggle):
		habit, ok := m.selectedHabit()
		if !ok {
			return m, nil
		}
		return m, m.write("Updated "+habit.Title, func(ctx context.Context) error {
			return m.sess.Toggle(ctx, habit.ID, "")
		})

	case key.Matches(msg, m.keys.Rename):
		habit, ok := m.selectedHabit()
		if !ok {
			return m, nil
		}
		m.habitForm = &HabitFormModel{Title: habit.Title}
		fm := m.habitForm
		return m.openForm(StateForm, NewHabitForm(fm, "Rename habit"), func() tea.Cmd {
			return m.write("Renamed habit", func(ctx context.Context) error {
				return m.sess.RenameHabit(ctx, habit.ID, fm.Title)
			})
		})

	case key.Matches(msg, m.keys.Delete):
		habit, ok := m.selectedHabit()
		if !ok {
			return m, nil
		}
		m.confirmForm = &ConfirmFormModel{}
		fm := m.confirmForm
		title := fmt.Sprintf("Delete %q and its whole history?", habit.Title)
		return m.openForm(StateConfirm, NewConfirmForm(fm, title), func() tea.Cmd {
			if !fm.Confirmed {
				return nil
			}
			return m.write("Deleted habit", func(ctx context.Context) error {
				return m.sess.DeleteHabit(ctx, habit.ID)
			})
		})
	}
	return m.updateList(msg)
}

func (m Model) handleScoreKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Add):
		m.scoreForm = &ScoreFormModel{}
		fm := m.scoreForm
		return m.openForm(StateForm, NewScoreForm(fm), func() tea.Cmd {
			return m.write("Logged score", func(ctx context.Context) error {
				_, err := m.sess.AddScore(ctx, fm.Title, fm.Score, fm.Total)
				return err
			})
		})

	case key.Matches(msg, m.keys.Delete):
		score, ok := m.selectedScore()
		if !ok {
			return m, nil
		}
		m.confirmForm = &ConfirmFormModel{}
		fm := m.confirmForm
		title := fmt.Sprintf("Delete %s from %s?", score.DisplayTitle(), score.Date)
		return m.openForm(StateConfirm, NewConfirmForm(fm, title), func() tea.Cmd {
			if !fm.Confirmed {
				return nil
			}
			return m.write("Deleted score", func(ctx context.Context) error {
				return m.sess.DeleteScore(ctx, score.ID)
			})
		})
	}
	return m.updateList(msg)
}

func (m Model) openForm(state State, form *huh.Form, submit func() tea.Cmd) (tea.Model, tea.Cmd) {
	m.form = form
	m.submit = submit
	m.state = state
	m.status = ""
	return m, m.form.Init()
}

func (m *Model) closeForm() {
	m.form = nil
	m.submit = nil
	m.habitForm = nil
	m.scoreForm = nil
	m.syncForm = nil
	m.confirmForm = nil
	m.state = StateBrowse
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.closeForm()
		return m, nil
	}

	var cmds []tea.Cmd
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	cmds = append(cmds, cmd)

	switch m.form.State {
	case huh.StateCompleted:
		if m.submit != nil {
			cmds = append(cmds, m.submit())
		}
		m.closeForm()
	case huh.StateAborted:
		m.closeForm()
	}
	return m, tea.Batch(cmds...)
}

func (m Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.tab {
	case TabHabits:
		m.habits, cmd = m.habits.Update(msg)
	case TabScores:
		m.scores, cmd = m.scores.Update(msg)
	}
	return m, cmd
}
