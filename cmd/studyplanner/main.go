package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/cli/habits"
	"github.com/julianstephens/studyplanner/internal/cli/scores"
	"github.com/julianstephens/studyplanner/internal/cli/system"
	"github.com/julianstephens/studyplanner/internal/config"
	"github.com/julianstephens/studyplanner/internal/constants"
	apperrors "github.com/julianstephens/studyplanner/internal/errors"
	"github.com/julianstephens/studyplanner/internal/logger"
	"github.com/julianstephens/studyplanner/internal/telemetry"
)

var CLI struct {
	Version   kong.VersionFlag
	Config    string `help:"Config file path." type:"string" default:"~/.config/studyplanner/config.yaml"`
	Store     string `help:"Store DSN: memory, a sqlite path, a PostgreSQL connection string (no embedded password), 'postgres' for the keyring-held connection string, or a ws(s):// sync server." default:""`
	Namespace string `help:"Application namespace shared by all devices." default:""`
	Debug     bool   `help:"Enable debug logging."`

	Tui     system.TuiCmd     `cmd:"" help:"Launch the interactive dashboard." default:"1"`
	Habit   habits.HabitCmd   `cmd:"" help:"Manage habits and daily completions."`
	Score   scores.ScoreCmd   `cmd:"" help:"Manage the mock score log."`
	Stats   system.StatsCmd   `cmd:"" help:"Show today's habit statistics and the score summary."`
	Sync    system.SyncCmd    `cmd:"" help:"Show or change the sync ID shared across devices."`
	Watch   system.WatchCmd   `cmd:"" help:"Print the dashboard every time it changes."`
	Serve   system.ServeCmd   `cmd:"" help:"Run a sync server over the configured store."`
	Migrate system.MigrateCmd `cmd:"" help:"Run database migrations."`
	Backup  system.BackupCmd  `cmd:"" help:"Manage snapshots of the sqlite store."`
	Keyring system.KeyringCmd `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker and mock score log for exam prep, synced across devices"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		apperrors.Fatal(err)
	}
	cfg.Apply(config.Overrides{
		Store:     CLI.Store,
		Namespace: CLI.Namespace,
		Debug:     CLI.Debug,
	})
	if err := cfg.Validate(); err != nil {
		apperrors.Fatal(err)
	}

	command := ""
	if ctx.Selected() != nil {
		command = ctx.Selected().Name
	}
	if command == "serve" {
		logger.SetOutput(os.Stderr, logger.Options{Debug: cfg.Debug, JSON: cfg.Server.LogJSON})
	} else if err := logger.Init(logger.Config{
		Debug:     cfg.Debug,
		ConfigDir: cfg.Dir,
		Console:   command != "tui",
	}); err != nil {
		apperrors.Fatal(fmt.Errorf("failed to initialize logger: %w", err))
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(runCtx, cfg.OTelEndpoint, constants.AppName)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	appCtx := &cli.Context{
		Ctx:    runCtx,
		Config: cfg,
		Out:    os.Stdout,
	}

	err = ctx.Run(appCtx)
	appCtx.Close()
	if err != nil {
		apperrors.Fatal(err)
	}
	_ = logger.Close()
}
