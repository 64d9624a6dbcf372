package system

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/tui"
)

type TuiCmd struct {
	Tab string `help:"Tab to open on." enum:"habits,scores,sync" default:"habits"`
}

func (c *TuiCmd) Run(ctx *cli.Context) error {
	sess, err := ctx.Session()
	if err != nil {
		return err
	}

	model := tui.NewModel(tui.FromSession(sess))
	model.SetTab(tui.ParseTab(c.Tab))

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx.Context()))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard exited with error: %w", err)
	}
	return nil
}
