package syncserver

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/julianstephens/studyplanner/internal/constants"
)

// Config holds sync server settings. Zero values fall back to defaults.
type Config struct {
	Addr         string        `yaml:"addr" env:"STUDYPLANNER_ADDR"`
	TokenSecret  string        `yaml:"token_secret" env:"STUDYPLANNER_TOKEN_SECRET"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"STUDYPLANNER_TOKEN_TTL"`
	PingInterval time.Duration `yaml:"ping_interval" env:"STUDYPLANNER_PING_INTERVAL"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"STUDYPLANNER_WRITE_TIMEOUT"`
	// LogJSON switches the server's stderr log to JSON lines.
	LogJSON bool `yaml:"log_json" env:"STUDYPLANNER_LOG_JSON"`
}

// DefaultConfig returns the built-in server settings.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// LoadConfigFromEnv reads server settings from the environment.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse sync server env: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = constants.DefaultServerAddr
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = constants.DefaultTokenTTL
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}
