package habits

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/config"
	"github.com/julianstephens/studyplanner/internal/docstore/memory"
	"github.com/julianstephens/studyplanner/internal/identity"
	"github.com/julianstephens/studyplanner/internal/session"
)

func newContext(t *testing.T) (*cli.Context, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Store = "memory"
	out := &bytes.Buffer{}
	ctx := &cli.Context{
		Ctx:         context.Background(),
		Config:      cfg,
		Out:         out,
		Store:       memory.New(),
		Slot:        &identity.MemorySlot{Value: "device-a"},
		WaitTimeout: 3 * time.Second,
	}
	t.Cleanup(ctx.Close)
	return ctx, out
}

func current(t *testing.T, ctx *cli.Context) session.View {
	t.Helper()
	_, v, err := ctx.Ready()
	if err != nil {
		t.Fatalf("Ready() failed: %v", err)
	}
	return v
}

func TestHabitLifecycle(t *testing.T) {
	ctx, out := newContext(t)

	if err := (&HabitAddCmd{Title: "  Quant drills "}).Run(ctx); err != nil {
		t.Fatalf("HabitAddCmd.Run() failed: %v", err)
	}
	if !strings.Contains(out.String(), "Added habit") {
		t.Errorf("add output = %q", out.String())
	}
	v := current(t, ctx)
	if len(v.Habits) != 1 || v.Habits[0].Title != "Quant drills" {
		t.Fatalf("habits = %+v, want one trimmed habit", v.Habits)
	}
	id := v.Habits[0].ID

	if err := (&HabitToggleCmd{Habit: "quant drills"}).Run(ctx); err != nil {
		t.Fatalf("HabitToggleCmd.Run() failed: %v", err)
	}
	v = current(t, ctx)
	if !v.Habits[0].HasCompleted(v.Today) {
		t.Error("habit should be completed today after toggle")
	}
	if v.Stats.DailyRate != 100 {
		t.Errorf("DailyRate = %d, want 100", v.Stats.DailyRate)
	}

	if err := (&HabitToggleCmd{Habit: id}).Run(ctx); err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if v = current(t, ctx); v.Habits[0].HasCompleted(v.Today) {
		t.Error("second toggle should undo the completion")
	}

	if err := (&HabitRenameCmd{Habit: id, Title: "Verbal"}).Run(ctx); err != nil {
		t.Fatalf("HabitRenameCmd.Run() failed: %v", err)
	}
	if v = current(t, ctx); v.Habits[0].Title != "Verbal" {
		t.Errorf("title = %q, want Verbal", v.Habits[0].Title)
	}

	out.Reset()
	if err := (&HabitListCmd{}).Run(ctx); err != nil {
		t.Fatalf("HabitListCmd.Run() failed: %v", err)
	}
	if !strings.Contains(out.String(), "Verbal") {
		t.Errorf("list output = %q", out.String())
	}

	if err := (&HabitDeleteCmd{Habit: "Verbal", Yes: true}).Run(ctx); err != nil {
		t.Fatalf("HabitDeleteCmd.Run() failed: %v", err)
	}
	if v = current(t, ctx); len(v.Habits) != 0 {
		t.Errorf("habits after delete = %+v", v.Habits)
	}
}

func TestHabitCommandErrors(t *testing.T) {
	ctx, _ := newContext(t)

	if err := (&HabitAddCmd{Title: "   "}).Run(ctx); err == nil {
		t.Error("adding a blank habit should fail")
	}
	if err := (&HabitToggleCmd{Habit: "missing"}).Run(ctx); err == nil {
		t.Error("toggling an unknown habit should fail")
	}
	if err := (&HabitAddCmd{Title: "Reading"}).Run(ctx); err != nil {
		t.Fatalf("HabitAddCmd.Run() failed: %v", err)
	}
	if err := (&HabitToggleCmd{Habit: "Reading", Date: "03/10/2024"}).Run(ctx); err == nil {
		t.Error("toggling with a malformed date should fail")
	}
	if err := (&HabitRenameCmd{Habit: "Reading", Title: " "}).Run(ctx); err == nil {
		t.Error("renaming to a blank title should fail")
	}
}

func TestHabitToggleOtherDay(t *testing.T) {
	ctx, _ := newContext(t)
	if err := (&HabitAddCmd{Title: "Reading"}).Run(ctx); err != nil {
		t.Fatalf("HabitAddCmd.Run() failed: %v", err)
	}
	if err := (&HabitToggleCmd{Habit: "Reading", Date: "2024-03-09"}).Run(ctx); err != nil {
		t.Fatalf("HabitToggleCmd.Run() failed: %v", err)
	}
	v := current(t, ctx)
	if !v.Habits[0].HasCompleted("2024-03-09") {
		t.Errorf("completedDates = %v, want 2024-03-09", v.Habits[0].CompletedDates)
	}
	if v.Stats.LifetimeTotal != 1 {
		t.Errorf("LifetimeTotal = %d, want 1", v.Stats.LifetimeTotal)
	}
}

func TestFindHabitAmbiguous(t *testing.T) {
	ctx, _ := newContext(t)
	for i := 0; i < 2; i++ {
		if err := (&HabitAddCmd{Title: "Reading"}).Run(ctx); err != nil {
			t.Fatalf("HabitAddCmd.Run() failed: %v", err)
		}
	}
	if _, err := cli.FindHabit(current(t, ctx), "reading"); err == nil {
		t.Error("FindHabit() with a duplicated title should fail")
	}
}
