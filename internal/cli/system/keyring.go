package system

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/studyplanner/internal/cli"
	"github.com/julianstephens/studyplanner/internal/config"
	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore/postgres"
	apperrors "github.com/julianstephens/studyplanner/internal/errors"
	"github.com/julianstephens/studyplanner/internal/keyring"
)

type KeyringCmd struct {
	Set    KeyringSetCmd    `cmd:"" help:"Store a PostgreSQL connection string in the OS keyring."`
	Get    KeyringGetCmd    `cmd:"" help:"Show the stored connection string with the password masked."`
	Delete KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
}

var errNoStoredConnString = apperrors.WithHint(
	errors.New("no connection string found in keyring"),
	fmt.Sprintf("run '%s keyring set' to store one", constants.AppName))

// KeyringSetCmd stores the connection string used by "store: postgres". The
// keyring is encrypted, so unlike the config file it may hold a password.
type KeyringSetCmd struct {
	ConnectionString string `arg:"" optional:"" help:"PostgreSQL connection string. Prompted for when omitted, keeping it out of shell history."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	connStr := strings.TrimSpace(cmd.ConnectionString)
	if connStr == "" {
		if err := huh.NewInput().
			Title("PostgreSQL connection string").
			EchoMode(huh.EchoModePassword).
			Value(&connStr).
			Run(); err != nil {
			return err
		}
		connStr = strings.TrimSpace(connStr)
	}

	_, err := postgres.ValidateConnString(connStr)
	switch {
	case errors.Is(err, postgres.ErrEmbeddedCredentials):
	case err != nil:
		return fmt.Errorf("invalid connection string: %w", err)
	default:
		if target, perr := config.ParseStore(connStr); perr != nil || target.Kind != config.StorePostgres {
			return errors.New("connection string must be a PostgreSQL URL or a key=value DSN with host=")
		}
	}

	if err := keyring.SetConnectionString(connStr); err != nil {
		return err
	}
	ctx.Printf("Stored %s in the OS keyring. Set store: postgres to use it.\n", MaskPassword(connStr))
	return nil
}

type KeyringGetCmd struct{}

func (cmd *KeyringGetCmd) Run(ctx *cli.Context) error {
	connStr, err := keyring.GetConnectionString()
	if errors.Is(err, keyring.ErrNotFound) {
		return errNoStoredConnString
	}
	if err != nil {
		return err
	}
	ctx.Printf("%s\n", MaskPassword(connStr))
	return nil
}

type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	err := keyring.DeleteConnectionString()
	if errors.Is(err, keyring.ErrNotFound) {
		return errNoStoredConnString
	}
	if err != nil {
		return err
	}
	ctx.Printf("Connection string removed from OS keyring.\n")
	return nil
}

var dsnPassword = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// MaskPassword hides the password in a URL or key=value connection string.
func MaskPassword(connStr string) string {
	if !strings.Contains(connStr, "://") {
		return dsnPassword.ReplaceAllString(connStr, "${1}xxxxx")
	}
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}
