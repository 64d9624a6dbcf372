// Package tui is the interactive dashboard: habits with a 7-day grid, the
// mock score log and the sync identity, each a tab over one live session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/studyplanner/internal/models"
	"github.com/julianstephens/studyplanner/internal/session"
	"github.com/julianstephens/studyplanner/internal/stats"
)

type Tab int

const (
	TabHabits Tab = iota
	TabScores
	TabSync
)

var tabNames = []string{"Habits", "Scores", "Sync"}

// ParseTab maps a tab name, case-insensitively, to its Tab. Unknown names
// select the habits tab.
func ParseTab(name string) Tab {
	for i, n := range tabNames {
		if strings.EqualFold(n, name) {
			return Tab(i)
		}
	}
	return TabHabits
}

type State int

const (
	StateBrowse State = iota
	StateForm
	StateConfirm
)

// Session is the part of session.Session the dashboard drives.
type Session interface {
	Current() session.View
	Views() <-chan session.View
	Identity() string
	SignIn(ctx context.Context) error
	SwitchIdentity(ctx context.Context, candidate string) (bool, error)
	Toggle(ctx context.Context, habitID, dateKey string) error
	DismissNotice()
	AddHabit(ctx context.Context, title string) (string, error)
	RenameHabit(ctx context.Context, id, title string) error
	DeleteHabit(ctx context.Context, id string) error
	AddScore(ctx context.Context, title, score, total string) (string, error)
	DeleteScore(ctx context.Context, id string) error
}

type HabitFormModel struct {
	Title string
}

type ScoreFormModel struct {
	Title string
	Score string
	Total string
}

type SyncFormModel struct {
	ID string
}

type ConfirmFormModel struct {
	Confirmed bool
}

type viewMsg session.View

type writeDoneMsg struct {
	action string
	err    error
}

type habitItem struct {
	row   stats.Row
	today string
}

func (i habitItem) Title() string {
	if i.row.Habit.HasCompleted(i.today) {
		return "✓ " + i.row.Habit.Title
	}
	return "○ " + i.row.Habit.Title
}

func (i habitItem) Description() string {
	cells := make([]string, len(i.row.Done))
	for d, done := range i.row.Done {
		if done {
			cells[d] = doneStyle.Render("■")
		} else {
			cells[d] = missStyle.Render("□")
		}
	}
	return strings.Join(cells, " ")
}

func (i habitItem) FilterValue() string { return i.row.Habit.Title }

type scoreItem struct {
	score models.MockScore
}

func (i scoreItem) Title() string { return i.score.DisplayTitle() }

func (i scoreItem) Description() string {
	return fmt.Sprintf("%g/%g · %.0f%% · %s", i.score.Score, i.score.Total, i.score.Percent(), i.score.Date)
}

func (i scoreItem) FilterValue() string { return i.score.DisplayTitle() }

type Model struct {
	sess  Session
	view  session.View
	tab   Tab
	state State
	keys  KeyMap
	help  help.Model

	habits list.Model
	scores list.Model

	form        *huh.Form
	habitForm   *HabitFormModel
	scoreForm   *ScoreFormModel
	syncForm    *SyncFormModel
	confirmForm *ConfirmFormModel
	submit      func() tea.Cmd

	status   string
	width    int
	height   int
	quitting bool
}

func NewModel(sess Session) Model {
	habits := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	habits.SetShowTitle(false)
	habits.SetShowHelp(false)
	habits.SetShowStatusBar(false)

	scores := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	scores.SetShowTitle(false)
	scores.SetShowHelp(false)
	scores.SetShowStatusBar(false)

	m := Model{
		sess:   sess,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		habits: habits,
		scores: scores,
	}
	m.setView(sess.Current())
	return m
}

// SetTab selects the tab shown first.
func (m *Model) SetTab(t Tab) {
	if t >= 0 && int(t) < len(tabNames) {
		m.tab = t
	}
}

func (m Model) Init() tea.Cmd {
	return waitForView(m.sess.Views())
}

func waitForView(ch <-chan session.View) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return viewMsg(v)
	}
}

func (m *Model) setView(v session.View) {
	m.view = v

	items := make([]list.Item, len(v.Grid))
	for i, row := range v.Grid {
		items[i] = habitItem{row: row, today: v.Today}
	}
	m.habits.SetItems(items)

	scoreItems := make([]list.Item, len(v.Scores))
	for i, s := range v.Scores {
		scoreItems[i] = scoreItem{score: s}
	}
	m.scores.SetItems(scoreItems)
}

// write runs fn off the update loop. Failures already reach the view as the
// session notice.
func (m Model) write(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return writeDoneMsg{action: action, err: fn(context.Background())}
	}
}

func (m Model) selectedHabit() (models.Habit, bool) {
	if i, ok := m.habits.SelectedItem().(habitItem); ok {
		return i.row.Habit, true
	}
	return models.Habit{}, false
}

func (m Model) selectedScore() (models.MockScore, bool) {
	if i, ok := m.scores.SelectedItem().(scoreItem); ok {
		return i.score, true
	}
	return models.MockScore{}, false
}
