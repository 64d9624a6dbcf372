package scores

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/service"
	"github.com/julianstephens/studyplanner/internal/session"
)

type ScoreCmd struct {
	Add    ScoreAddCmd    `cmd:"" help:"Log a mock test score."`
	Delete ScoreDeleteCmd `cmd:"" help:"Delete a logged score."`
	List   ScoreListCmd   `cmd:"" help:"List logged scores, newest first."`
}

type ScoreAddCmd struct {
	Score string `arg:"" help:"Points scored."`
	Total string `arg:"" optional:"" help:"Points available (default: 100)."`
	Title string `help:"Mock title (default: Mock)." short:"t"`
}

func (c *ScoreAddCmd) Run(ctx *cli.Context) error {
	if _, ok := service.ParseNumber(c.Score); !ok {
		return fmt.Errorf("invalid score %q", c.Score)
	}
	if strings.TrimSpace(c.Total) != "" {
		if _, ok := service.ParseNumber(c.Total); !ok {
			return fmt.Errorf("invalid total %q", c.Total)
		}
	}

	sess, _, err := ctx.Ready()
	if err != nil {
		return err
	}

	id, err := sess.Scores().Add(ctx.Context(), c.Title, c.Score, c.Total)
	if err != nil {
		return err
	}
	if id == "" {
		return errors.New("score was not recorded: no active sync identity")
	}

	v, err := ctx.WaitFor(func(v session.View) bool {
		_, err := cli.FindScore(v, id)
		return err == nil
	})
	if err != nil {
		return err
	}
	s, _ := cli.FindScore(v, id)
	ctx.Printf("Logged %s: %g/%g (%.0f%%) on %s\n", s.DisplayTitle(), s.Score, s.Total, s.Percent(), s.Date)
	return nil
}

type ScoreDeleteCmd struct {
	ID  string `arg:"" help:"Score ID to delete."`
	Yes bool   `help:"Skip the confirmation prompt." short:"y"`
}

func (c *ScoreDeleteCmd) Run(ctx *cli.Context) error {
	sess, v, err := ctx.Ready()
	if err != nil {
		return err
	}
	score, err := cli.FindScore(v, c.ID)
	if err != nil {
		return err
	}

	ok, err := cli.Confirm(fmt.Sprintf("Delete %s from %s?", score.DisplayTitle(), score.Date), c.Yes)
	if err != nil {
		return err
	}
	if !ok {
		ctx.Printf("Cancelled.\n")
		return nil
	}

	if err := sess.Scores().Delete(ctx.Context(), score.ID); err != nil {
		return err
	}
	if _, err := ctx.WaitFor(func(v session.View) bool {
		_, err := cli.FindScore(v, score.ID)
		return err != nil
	}); err != nil {
		return err
	}

	ctx.Printf("Deleted score: %s (ID: %s)\n", score.DisplayTitle(), score.ID)
	return nil
}

type ScoreListCmd struct{}

func (c *ScoreListCmd) Run(ctx *cli.Context) error {
	_, v, err := ctx.Ready()
	if err != nil {
		return err
	}
	ctx.PrintNotice(v)
	ctx.PrintScores(v)
	return nil
}
