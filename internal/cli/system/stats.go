package system

import (
	"github.com/julianstephens/studyplanner/internal/cli"
)

type StatsCmd struct{}

func (c *StatsCmd) Run(ctx *cli.Context) error {
	_, v, err := ctx.Ready()
	if err != nil {
		return err
	}
	ctx.PrintNotice(v)
	ctx.PrintStats(v)
	return nil
}
