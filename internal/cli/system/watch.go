package system

import (
	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/docstore/remote"
	"github.com/julianstephens/studyplanner/internal/session"
)

// connection is implemented by stores that sit on a live connection.
type connection interface {
	Done() <-chan struct{}
}

type WatchCmd struct{}

// Run prints every republished view until interrupted or until a remote
// store loses its connection.
func (c *WatchCmd) Run(ctx *cli.Context) error {
	sess, err := ctx.Session()
	if err != nil {
		return err
	}

	render := func(v session.View) {
		if v.Loading {
			ctx.Printf("Loading…\n")
			return
		}
		if v.LoadErr != nil {
			ctx.Printf("! %v\n", v.LoadErr)
			return
		}
		ctx.Printf("── %s ── sync ID %s\n", v.Today, v.Identity)
		ctx.PrintNotice(v)
		ctx.PrintStats(v)
		ctx.PrintHabits(v)
		ctx.PrintScores(v)
		ctx.Printf("\n")
	}

	var lost <-chan struct{}
	if conn, ok := ctx.Store.(connection); ok {
		lost = conn.Done()
	}

	render(sess.Current())
	for {
		select {
		case <-ctx.Context().Done():
			return nil
		case <-lost:
			return remote.ErrDisconnected
		case v := <-sess.Views():
			render(v)
		}
	}
}
