package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/studyplanner/internal/auth"
	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/docstore"
	"github.com/julianstephens/studyplanner/internal/docstore/memory"
	"github.com/julianstephens/studyplanner/internal/docstore/postgres"
	"github.com/julianstephens/studyplanner/internal/docstore/remote"
	"github.com/julianstephens/studyplanner/internal/docstore/sqlite"
	apperrors "github.com/julianstephens/studyplanner/internal/errors"
	"github.com/julianstephens/studyplanner/internal/identity"
	"github.com/julianstephens/studyplanner/internal/keyring"
	"github.com/julianstephens/studyplanner/internal/logger"
)

// StoreKind names a docstore backend.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
	StoreRemote   StoreKind = "remote"
)

// postgresKeyword selects the connection string stored in the OS keyring.
const postgresKeyword = "postgres"

// StoreTarget is a parsed store setting.
type StoreTarget struct {
	Kind StoreKind
	// DSN is the path, connection string or server URL. Empty for memory and
	// for a keyring-held postgres connection string.
	DSN string
}

// ParseStore classifies a store setting. Postgres connection strings with an
// embedded password are rejected.
func ParseStore(s string) (StoreTarget, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return StoreTarget{}, errors.New("store cannot be empty")
	case s == "memory":
		return StoreTarget{Kind: StoreMemory}, nil
	case s == postgresKeyword:
		return StoreTarget{Kind: StorePostgres}, nil
	case strings.HasPrefix(s, "ws://"), strings.HasPrefix(s, "wss://"):
		return StoreTarget{Kind: StoreRemote, DSN: s}, nil
	case strings.HasPrefix(s, "postgres://"), strings.HasPrefix(s, "postgresql://"), strings.Contains(s, "host="):
		if _, err := postgres.ValidateConnString(s); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return StoreTarget{}, apperrors.WithHint(err, "store the password in the keyring (store: postgres) or use .pgpass")
			}
			return StoreTarget{}, err
		}
		return StoreTarget{Kind: StorePostgres, DSN: s}, nil
	default:
		path := strings.TrimPrefix(s, "sqlite://")
		if path == "" {
			return StoreTarget{}, errors.New("sqlite store needs a path")
		}
		expanded, err := ExpandHome(path)
		if err != nil {
			return StoreTarget{}, err
		}
		return StoreTarget{Kind: StoreSQLite, DSN: expanded}, nil
	}
}

// OpenStore opens the configured backend together with the identity provider
// sessions on it should sign in with. For a sync server the device signs in
// before dialing, so the returned provider replays that principal.
func (c Config) OpenStore(ctx context.Context) (docstore.Store, auth.Provider, error) {
	target, err := ParseStore(c.Store)
	if err != nil {
		return nil, nil, err
	}

	switch target.Kind {
	case StoreMemory:
		return memory.New(), auth.LocalProvider{}, nil
	case StoreSQLite:
		store, err := sqlite.Open(ctx, target.DSN, sqlite.WithPollInterval(c.PollInterval))
		if err != nil {
			return nil, nil, err
		}
		return store, auth.LocalProvider{}, nil
	case StorePostgres:
		dsn := target.DSN
		if dsn == "" {
			dsn, err = keyring.GetConnectionString()
			if err != nil {
				if errors.Is(err, keyring.ErrNotFound) {
					return nil, nil, apperrors.WithHint(errors.New("no connection string in keyring"),
						fmt.Sprintf("run '%s keyring set <connection-string>'", constants.AppName))
				}
				return nil, nil, err
			}
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, auth.LocalProvider{}, nil
	case StoreRemote:
		provider, err := auth.NewHTTPProvider(target.DSN)
		if err != nil {
			return nil, nil, err
		}
		// Snapshots need a token, so there is no read-only fallback here.
		principal, err := provider.SignIn(ctx)
		if err != nil {
			return nil, nil, apperrors.WithHint(fmt.Errorf("failed to sign in to %s: %w", target.DSN, err),
				fmt.Sprintf("start the sync server with '%s serve' or point store at a local database", constants.AppName))
		}
		store, err := remote.Dial(ctx, target.DSN, principal.Token)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("Connected to sync server", "url", target.DSN)
		return store, auth.StaticProvider{Principal: principal}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store kind %q", target.Kind)
	}
}

// OpenIdentity returns the slot holding the sync identity. The auto slot uses
// the OS keyring when one is reachable and the identity file otherwise.
func (c Config) OpenIdentity() (identity.Slot, error) {
	switch c.IdentitySlot {
	case SlotKeyring:
		return identity.KeyringSlot{Key: constants.DefaultIdentityKey}, nil
	case SlotFile:
		return identity.FileSlot{Path: c.IdentityPath()}, nil
	case SlotAuto, "":
		if keyring.IsAvailable() {
			return identity.KeyringSlot{Key: constants.DefaultIdentityKey}, nil
		}
		logger.Debug("OS keyring unavailable, storing sync identity in file", "path", c.IdentityPath())
		return identity.FileSlot{Path: c.IdentityPath()}, nil
	default:
		return nil, fmt.Errorf("unknown identity_slot %q", c.IdentitySlot)
	}
}
