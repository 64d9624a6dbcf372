package system

import (
	"errors"

	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/session"
)

type SyncCmd struct {
	Show  SyncShowCmd  `cmd:"" help:"Print this device's sync ID." default:"1"`
	Adopt SyncAdoptCmd `cmd:"" help:"Switch to another device's sync ID."`
}

type SyncShowCmd struct{}

func (c *SyncShowCmd) Run(ctx *cli.Context) error {
	sess, err := ctx.Session()
	if err != nil {
		return err
	}
	ctx.Printf("%s\n", sess.Identity())
	return nil
}

type SyncAdoptCmd struct {
	ID string `arg:"" help:"Sync ID copied from another device."`
}

func (c *SyncAdoptCmd) Run(ctx *cli.Context) error {
	sess, err := ctx.Session()
	if err != nil {
		return err
	}
	before := sess.Identity()

	ok, err := sess.SwitchIdentity(ctx.Context(), c.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("sync ID cannot be empty")
	}
	if sess.Identity() == before {
		ctx.Printf("Already using sync ID %s\n", before)
		return nil
	}

	id := sess.Identity()
	v, err := ctx.WaitFor(func(v session.View) bool {
		return v.Identity == id && !v.Loading
	})
	if err != nil {
		return err
	}
	if v.LoadErr != nil {
		return v.LoadErr
	}
	ctx.Printf("Now syncing as %s (%d habits, %d scores)\n", id, len(v.Habits), len(v.Scores))
	return nil
}
