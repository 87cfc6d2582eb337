// Package config loads configuration from an optional YAML file layered
// under BIRDWATCH_-prefixed environment variables. Nested keys use a double
// underscore in the environment, e.g. BIRDWATCH_TWITTER__BEARER_TOKEN maps
// to twitter.bearer_token.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "BIRDWATCH_"

// Source modes selectable via source.mode.
const (
	ModePoll   = "poll"
	ModeStream = "stream"
	ModeScrape = "scrape"
)

// Config holds all configuration for the monitor.
type Config struct {
	// Port is the HTTP/websocket server port.
	Port int `koanf:"port"`

	// DatabasePath is the SQLite database file path.
	DatabasePath string `koanf:"database_path"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	Twitter TwitterConfig `koanf:"twitter"`
	Source  SourceConfig  `koanf:"source"`
	Driver  DriverConfig  `koanf:"driver"`
}

// TwitterConfig configures the upstream API client.
type TwitterConfig struct {
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string `koanf:"base_url"`

	BearerToken string `koanf:"bearer_token"`

	// ListID is the list whose tweets the poll source fetches.
	ListID string `koanf:"list_id"`

	// Accounts are the tracked usernames, used for stream rules and
	// scrape pages.
	Accounts []string `koanf:"accounts"`
}

// SourceConfig selects and configures the source adapter.
type SourceConfig struct {
	// Mode is poll, stream or scrape.
	Mode string `koanf:"mode"`

	// SnapshotURL is the page-snapshot endpoint for scrape mode.
	SnapshotURL string `koanf:"snapshot_url"`
}

// DriverConfig controls pipeline cycle timing.
type DriverConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	Backoff      time.Duration `koanf:"backoff"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

func defaults() *Config {
	return &Config{
		Port:         3000,
		DatabasePath: "birdwatch.db",
		LogLevel:     "info",
		Source: SourceConfig{
			Mode: ModePoll,
		},
		Driver: DriverConfig{
			PollInterval: 65 * time.Second,
			Backoff:      5 * time.Second,
			FetchTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from the given YAML file (skipped when path is
// empty or the file does not exist) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func (c *Config) validate() error {
	switch c.Source.Mode {
	case ModePoll:
		if c.Twitter.BearerToken == "" {
			return fmt.Errorf("twitter.bearer_token is required in %s mode", c.Source.Mode)
		}
		if c.Twitter.ListID == "" {
			return fmt.Errorf("twitter.list_id is required in poll mode")
		}
	case ModeStream:
		if c.Twitter.BearerToken == "" {
			return fmt.Errorf("twitter.bearer_token is required in %s mode", c.Source.Mode)
		}
		if len(c.Twitter.Accounts) == 0 {
			return fmt.Errorf("twitter.accounts is required in stream mode")
		}
	case ModeScrape:
		if c.Source.SnapshotURL == "" {
			return fmt.Errorf("source.snapshot_url is required in scrape mode")
		}
		if len(c.Twitter.Accounts) == 0 {
			return fmt.Errorf("twitter.accounts is required in scrape mode")
		}
	default:
		return fmt.Errorf("unknown source.mode %q", c.Source.Mode)
	}
	return nil
}
