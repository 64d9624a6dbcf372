package system

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/julianstephens/studyplanner/internal/backup"
	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/config"
	"github.com/julianstephens/studyplanner/internal/constants"
)

type BackupCmd struct {
	Create  BackupCreateCmd  `cmd:"" help:"Snapshot the sqlite store." default:"1"`
	List    BackupListCmd    `cmd:"" help:"List snapshots, newest first."`
	Restore BackupRestoreCmd `cmd:"" help:"Replace the sqlite store with a snapshot."`
}

func backupManager(ctx *cli.Context) (*backup.Manager, error) {
	target, err := config.ParseStore(ctx.Config.Store)
	if err != nil {
		return nil, err
	}
	if target.Kind != config.StoreSQLite {
		return nil, fmt.Errorf("backups are only supported for the sqlite store, not %s", target.Kind)
	}
	return backup.NewManager(target.DSN), nil
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	mgr, err := backupManager(ctx)
	if err != nil {
		return err
	}
	snap, err := mgr.Create(ctx.Context())
	if err != nil {
		return err
	}
	ctx.Printf("Created backup %s (%s)\n", snap.Path, humanize.Bytes(uint64(snap.Size)))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	mgr, err := backupManager(ctx)
	if err != nil {
		return err
	}
	snaps, err := mgr.List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		ctx.Printf("No backups in %s\n", mgr.Dir())
		return nil
	}
	ctx.Printf("%-36s  %-19s  %-9s  %s\n", "NAME", "TAKEN", "SIZE", "AGE")
	for _, s := range snaps {
		ctx.Printf("%-36s  %-19s  %-9s  %s\n", s.Name(), s.Taken.Format("2006-01-02 15:04:05"),
			humanize.Bytes(uint64(s.Size)), humanize.Time(s.Taken))
	}
	return nil
}

type BackupRestoreCmd struct {
	Name string `arg:"" help:"Snapshot file name (see backup list) or path."`
	Yes  bool   `help:"Skip the confirmation prompt." short:"y"`
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	mgr, err := backupManager(ctx)
	if err != nil {
		return err
	}
	snap, err := mgr.Resolve(c.Name)
	if err != nil {
		return err
	}

	if !c.Yes {
		ctx.Printf("Stop every %s process using %s before restoring, including other devices sharing the file.\n", constants.AppName, mgr.DBPath())
	}
	ok, err := cli.ConfirmAction(fmt.Sprintf("Replace the store with %s?", snap.Name()), "Restore", c.Yes)
	if err != nil {
		return err
	}
	if !ok {
		ctx.Printf("Restore cancelled.\n")
		return nil
	}

	previous, err := mgr.Restore(ctx.Context(), snap.Path)
	if previous != nil {
		ctx.Printf("Saved the current store as %s\n", previous.Name())
	}
	if err != nil {
		return err
	}
	ctx.Printf("Restored %s\n", snap.Name())
	return nil
}
