package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/studyplanner/internal/models"
	"github.com/julianstephens/studyplanner/internal/session"
	"github.com/julianstephens/studyplanner/internal/stats"
)

type fakeSession struct {
	mu        sync.Mutex
	view      session.View
	views     chan session.View
	calls     []string
	dismissed bool
}

func newFakeSession(v session.View) *fakeSession {
	return &fakeSession{view: v, views: make(chan session.View, 1)}
}

func (f *fakeSession) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSession) Current() session.View      { return f.view }
func (f *fakeSession) Views() <-chan session.View { return f.views }
func (f *fakeSession) Identity() string           { return "device-a" }
func (f *fakeSession) DismissNotice()             { f.dismissed = true }

func (f *fakeSession) SignIn(ctx context.Context) error {
	f.record("signin")
	return nil
}

func (f *fakeSession) SwitchIdentity(ctx context.Context, candidate string) (bool, error) {
	f.record("switch:" + candidate)
	return true, nil
}

func (f *fakeSession) Toggle(ctx context.Context, habitID, dateKey string) error {
	f.record("toggle:" + habitID)
	return nil
}

func (f *fakeSession) AddHabit(ctx context.Context, title string) (string, error) {
	f.record("add:" + title)
	return "new", nil
}

func (f *fakeSession) RenameHabit(ctx context.Context, id, title string) error {
	f.record("rename:" + id)
	return nil
}

func (f *fakeSession) DeleteHabit(ctx context.Context, id string) error {
	f.record("delete:" + id)
	return nil
}

func (f *fakeSession) AddScore(ctx context.Context, title, score, total string) (string, error) {
	f.record("score:" + score)
	return "s1", nil
}

func (f *fakeSession) DeleteScore(ctx context.Context, id string) error {
	f.record("delete-score:" + id)
	return nil
}

func sampleView() session.View {
	habit := models.Habit{ID: "h1", Title: "Quant drills", OwnerID: "device-a", CompletedDates: []string{"2024-03-10"}}
	days := []string{"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08", "2024-03-09", "2024-03-10"}
	v := session.View{
		Today:         "2024-03-10",
		Days:          days,
		Grid:          []stats.Row{{Habit: habit, Done: []bool{false, false, false, false, false, false, true}}},
		Stats:         stats.Stats{DailyRate: 100, WeeklyConsistency: 14, LifetimeTotal: 1, TodayCount: 1, TotalCount: 1},
		Authenticated: true,
	}
	v.Identity = "device-a"
	v.Habits = []models.Habit{habit}
	v.Scores = []models.MockScore{{ID: "s1", Title: "Sectional", Score: 45, Total: 50, Date: "2024-03-10"}}
	v.Summary = stats.SummarizeScores(v.Scores)
	return v
}

func press(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func sized(m Model) Model {
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func TestTabCycling(t *testing.T) {
	m := sized(NewModel(newFakeSession(sampleView())))

	m, _ = update(m, press("tab"))
	if m.tab != TabScores {
		t.Errorf("tab = %v, want scores", m.tab)
	}
	m, _ = update(m, press("tab"))
	m, _ = update(m, press("tab"))
	if m.tab != TabHabits {
		t.Errorf("tab = %v, want wrap to habits", m.tab)
	}
	m, _ = update(m, press("shift+tab"))
	if m.tab != TabSync {
		t.Errorf("tab = %v, want sync", m.tab)
	}
	if !strings.Contains(m.View(), "device-a") {
		t.Error("sync tab should show the sync ID")
	}
}

func TestToggleRunsWrite(t *testing.T) {
	fs := newFakeSession(sampleView())
	m := sized(NewModel(fs))

	_, cmd := update(m, press(" "))
	if cmd == nil {
		t.Fatal("toggle should return a write command")
	}
	msg := cmd()
	done, ok := msg.(writeDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("write result = %#v", msg)
	}
	if len(fs.calls) != 1 || fs.calls[0] != "toggle:h1" {
		t.Errorf("calls = %v, want toggle:h1", fs.calls)
	}
}

func TestAddOpensFormAndEscCancels(t *testing.T) {
	fs := newFakeSession(sampleView())
	m := sized(NewModel(fs))

	m, _ = update(m, press("a"))
	if m.state != StateForm || m.form == nil {
		t.Fatalf("state = %v, want form", m.state)
	}
	m, _ = update(m, press("esc"))
	if m.state != StateBrowse || m.form != nil {
		t.Errorf("state = %v after esc, want browse", m.state)
	}
	if len(fs.calls) != 0 {
		t.Errorf("calls = %v, want none after cancel", fs.calls)
	}
}

func TestDeleteOpensConfirmation(t *testing.T) {
	m := sized(NewModel(newFakeSession(sampleView())))

	m, _ = update(m, press("d"))
	if m.state != StateConfirm {
		t.Fatalf("state = %v, want confirm", m.state)
	}
	if m.submit() != nil {
		t.Error("unconfirmed delete should not produce a write")
	}
	m.confirmForm.Confirmed = true
	if m.submit() == nil {
		t.Error("confirmed delete should produce a write")
	}
}

func TestViewMsgRefreshesLists(t *testing.T) {
	fs := newFakeSession(session.View{})
	m := sized(NewModel(fs))
	if len(m.habits.Items()) != 0 {
		t.Fatalf("items = %d, want 0", len(m.habits.Items()))
	}

	m, cmd := update(m, viewMsg(sampleView()))
	if len(m.habits.Items()) != 1 || len(m.scores.Items()) != 1 {
		t.Errorf("items = %d habits, %d scores", len(m.habits.Items()), len(m.scores.Items()))
	}
	if cmd == nil {
		t.Error("view update should re-arm the view subscription")
	}
}

func TestViewOfOtherIdentityIgnored(t *testing.T) {
	m := sized(NewModel(newFakeSession(session.View{})))

	stale := sampleView()
	stale.Identity = "device-b"
	m, cmd := update(m, viewMsg(stale))
	if len(m.habits.Items()) != 0 {
		t.Errorf("items = %d, want a view of another identity ignored", len(m.habits.Items()))
	}
	if cmd == nil {
		t.Error("ignored view should still re-arm the view subscription")
	}
}

func TestNoticeAndDismiss(t *testing.T) {
	v := sampleView()
	v.Notice = "Could not add habit: store is closed"
	v.Authenticated = false
	fs := newFakeSession(v)
	m := sized(NewModel(fs))

	out := m.View()
	if !strings.Contains(out, "Could not add habit") {
		t.Error("view should show the notice")
	}
	if !strings.Contains(out, "Not signed in") {
		t.Error("view should flag read-only mode")
	}

	m, _ = update(m, press("x"))
	if !fs.dismissed {
		t.Error("x should dismiss the notice")
	}

	_, cmd := update(m, press("i"))
	if cmd == nil {
		t.Fatal("i should retry sign-in when unauthenticated")
	}
	cmd()
	if len(fs.calls) != 1 || fs.calls[0] != "signin" {
		t.Errorf("calls = %v, want signin", fs.calls)
	}
}

func TestLoadingView(t *testing.T) {
	v := session.View{}
	v.Loading = true
	m := sized(NewModel(newFakeSession(v)))
	if !strings.Contains(m.View(), "Loading") {
		t.Error("view should show loading until the first snapshot")
	}
}

func TestParseTabAndSetTab(t *testing.T) {
	tests := map[string]Tab{"habits": TabHabits, "Scores": TabScores, "SYNC": TabSync, "bogus": TabHabits}
	for name, want := range tests {
		if got := ParseTab(name); got != want {
			t.Errorf("ParseTab(%q) = %v, want %v", name, got, want)
		}
	}

	m := NewModel(newFakeSession(sampleView()))
	m.SetTab(TabScores)
	if m.tab != TabScores {
		t.Errorf("tab = %v, want scores", m.tab)
	}
	m.SetTab(Tab(9))
	if m.tab != TabScores {
		t.Errorf("out-of-range SetTab changed tab to %v", m.tab)
	}
}
