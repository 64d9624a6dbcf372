package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/studyplanner/internal/cli"
)

type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (current, latest int, err error)
}

type MigrateCmd struct{}

// Run opens the store, which applies pending migrations, and reports the
// resulting schema version.
func (c *MigrateCmd) Run(ctx *cli.Context) error {
	store, err := ctx.OpenStore()
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	v, ok := store.(schemaVersioner)
	if !ok {
		return fmt.Errorf("migrate command only supports sqlite and postgres stores")
	}
	current, latest, err := v.SchemaVersion(ctx.Context())
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf("schema version %d is behind latest %d", current, latest)
	}
	ctx.Printf("Database is up to date (schema version %d).\n", current)
	return nil
}
