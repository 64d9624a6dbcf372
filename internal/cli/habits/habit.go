package habits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/session"
	"github.com/julianstephens/studyplanner/internal/utils"
)

type HabitCmd struct {
	Add    HabitAddCmd    `cmd:"" help:"Add a new habit."`
	Rename HabitRenameCmd `cmd:"" help:"Rename a habit."`
	Delete HabitDeleteCmd `cmd:"" help:"Delete a habit permanently."`
	Toggle HabitToggleCmd `cmd:"" help:"Toggle a habit's completion for a day."`
	List   HabitListCmd   `cmd:"" help:"List habits with the last 7 days."`
}

type HabitAddCmd struct {
	Title string `arg:"" help:"Habit title."`
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	sess, _, err := ctx.Ready()
	if err != nil {
		return err
	}

	id, err := sess.Habits().Add(ctx.Context(), c.Title)
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("habit title cannot be empty")
	}

	if _, err := ctx.WaitFor(func(v session.View) bool {
		_, err := cli.FindHabit(v, id)
		return err == nil
	}); err != nil {
		return err
	}

	ctx.Printf("Added habit: %s (ID: %s)\n", c.Title, id)
	return nil
}

type HabitRenameCmd struct {
	Habit string `arg:"" help:"Habit ID or title."`
	Title string `arg:"" help:"New title."`
}

func (c *HabitRenameCmd) Run(ctx *cli.Context) error {
	sess, v, err := ctx.Ready()
	if err != nil {
		return err
	}
	habit, err := cli.FindHabit(v, c.Habit)
	if err != nil {
		return err
	}
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return errors.New("habit title cannot be empty")
	}
	if title == habit.Title {
		ctx.Printf("Habit already named %s\n", title)
		return nil
	}

	if err := sess.Habits().Rename(ctx.Context(), habit.ID, c.Title); err != nil {
		return err
	}

	updated, err := ctx.WaitFor(func(v session.View) bool {
		h, err := cli.FindHabit(v, habit.ID)
		return err == nil && h.Title != habit.Title
	})
	if err != nil {
		return err
	}
	h, _ := cli.FindHabit(updated, habit.ID)
	ctx.Printf("Renamed habit: %s -> %s\n", habit.Title, h.Title)
	return nil
}

type HabitDeleteCmd struct {
	Habit string `arg:"" help:"Habit ID or title."`
	Yes   bool   `help:"Skip the confirmation prompt." short:"y"`
}

func (c *HabitDeleteCmd) Run(ctx *cli.Context) error {
	sess, v, err := ctx.Ready()
	if err != nil {
		return err
	}
	habit, err := cli.FindHabit(v, c.Habit)
	if err != nil {
		return err
	}

	ok, err := cli.Confirm(fmt.Sprintf("Delete habit %q and its whole history?", habit.Title), c.Yes)
	if err != nil {
		return err
	}
	if !ok {
		ctx.Printf("Cancelled.\n")
		return nil
	}

	if err := sess.Habits().Delete(ctx.Context(), habit.ID); err != nil {
		return err
	}
	if _, err := ctx.WaitFor(func(v session.View) bool {
		_, err := cli.FindHabit(v, habit.ID)
		return err != nil
	}); err != nil {
		return err
	}

	ctx.Printf("Deleted habit: %s (ID: %s)\n", habit.Title, habit.ID)
	return nil
}

type HabitToggleCmd struct {
	Habit string `arg:"" help:"Habit ID or title."`
	Date  string `help:"Date in YYYY-MM-DD format (default: today)." default:""`
}

func (c *HabitToggleCmd) Run(ctx *cli.Context) error {
	sess, v, err := ctx.Ready()
	if err != nil {
		return err
	}
	habit, err := cli.FindHabit(v, c.Habit)
	if err != nil {
		return err
	}

	day := c.Date
	if day == "" {
		day = v.Today
	} else if !utils.ValidateDateKey(day) {
		return fmt.Errorf("invalid date format: %s (expected YYYY-MM-DD)", day)
	}

	was := habit.HasCompleted(day)
	if err := sess.Toggle(ctx.Context(), habit.ID, day); err != nil {
		return err
	}
	if _, err := ctx.WaitFor(func(v session.View) bool {
		h, err := cli.FindHabit(v, habit.ID)
		return err == nil && h.HasCompleted(day) != was
	}); err != nil {
		return err
	}

	if was {
		ctx.Printf("Unmarked %s for %s\n", habit.Title, day)
	} else {
		ctx.Printf("Marked %s done for %s\n", habit.Title, day)
	}
	return nil
}

type HabitListCmd struct{}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	_, v, err := ctx.Ready()
	if err != nil {
		return err
	}
	ctx.PrintNotice(v)
	ctx.PrintHabits(v)
	return nil
}
