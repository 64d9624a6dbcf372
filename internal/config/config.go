// Package config resolves settings from built-in defaults, an optional YAML
// file, STUDYPLANNER_* environment variables and command-line overrides, in
// that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/studyplanner/internal/constants"
	"github.com/julianstephens/studyplanner/internal/syncserver"
	"github.com/julianstephens/studyplanner/internal/utils"
)

// Identity slot kinds.
const (
	SlotAuto    = "auto"
	SlotKeyring = "keyring"
	SlotFile    = "file"
)

type Config struct {
	// Store selects the backend: "memory", a sqlite path (optionally
	// prefixed with sqlite://), a postgres URL or DSN, the bare keyword
	// "postgres" for a connection string kept in the keyring, or a ws(s)://
	// sync server.
	Store        string        `yaml:"store" env:"STUDYPLANNER_STORE"`
	Namespace    string        `yaml:"namespace" env:"STUDYPLANNER_NAMESPACE"`
	IdentitySlot string        `yaml:"identity_slot" env:"STUDYPLANNER_IDENTITY_SLOT"`
	IdentityFile string        `yaml:"identity_file" env:"STUDYPLANNER_IDENTITY_FILE"`
	Timezone     string        `yaml:"timezone" env:"STUDYPLANNER_TIMEZONE"`
	Debug        bool          `yaml:"debug" env:"STUDYPLANNER_DEBUG"`
	PollInterval time.Duration `yaml:"poll_interval" env:"STUDYPLANNER_POLL_INTERVAL"`
	OTelEndpoint string        `yaml:"otel_endpoint" env:"STUDYPLANNER_OTEL_ENDPOINT"`

	Server syncserver.Config `yaml:"server"`

	// Dir holds logs, the default database and the identity file.
	Dir string `yaml:"-" env:"STUDYPLANNER_CONFIG_DIR"`
}

// Overrides are the global command-line flags. Empty values leave the
// resolved setting alone.
type Overrides struct {
	Store     string
	Namespace string
	Debug     bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Store:        constants.DefaultStoreDSN,
		Namespace:    constants.DefaultNamespace,
		IdentitySlot: SlotAuto,
		PollInterval: constants.DefaultPollInterval,
		Server:       syncserver.DefaultConfig(),
		Dir:          constants.DefaultConfigDir,
	}
}

// DefaultPath is the YAML file read when no path is given.
func DefaultPath() string {
	return filepath.Join(constants.DefaultConfigDir, constants.DefaultConfigFile)
}

// Load resolves the file and environment layers. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	expanded, err := ExpandHome(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", expanded, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file %s: %w", expanded, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Apply layers command-line overrides on top of c.
func (c *Config) Apply(o Overrides) {
	if o.Store != "" {
		c.Store = o.Store
	}
	if o.Namespace != "" {
		c.Namespace = o.Namespace
	}
	if o.Debug {
		c.Debug = true
	}
}

func (c *Config) normalize() error {
	var err error
	if c.Dir, err = ExpandHome(c.Dir); err != nil {
		return err
	}
	if c.IdentityFile != "" {
		if c.IdentityFile, err = ExpandHome(c.IdentityFile); err != nil {
			return err
		}
	}
	c.Store = strings.TrimSpace(c.Store)
	c.Namespace = strings.TrimSpace(c.Namespace)
	c.IdentitySlot = strings.ToLower(strings.TrimSpace(c.IdentitySlot))
	if c.IdentitySlot == "" {
		c.IdentitySlot = SlotAuto
	}
	return nil
}

// Validate checks the resolved settings for values no command can use.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace cannot be empty")
	}
	if strings.Contains(c.Namespace, "/") {
		return fmt.Errorf("namespace %q must not contain '/'", c.Namespace)
	}
	switch c.IdentitySlot {
	case SlotAuto, SlotKeyring, SlotFile:
	default:
		return fmt.Errorf("unknown identity_slot %q (want auto, keyring or file)", c.IdentitySlot)
	}
	if !utils.ValidateTimezone(c.Timezone) {
		return fmt.Errorf("invalid timezone %q", c.Timezone)
	}
	if c.PollInterval < 0 {
		return errors.New("poll_interval cannot be negative")
	}
	if _, err := ParseStore(c.Store); err != nil {
		return err
	}
	return nil
}

// Location is the zone calendar days are computed in.
func (c Config) Location() (*time.Location, error) {
	loc, err := utils.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IdentityPath is the file used by the file identity slot.
func (c Config) IdentityPath() string {
	if c.IdentityFile != "" {
		return c.IdentityFile
	}
	return filepath.Join(c.Dir, constants.DefaultIdentityKey)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
