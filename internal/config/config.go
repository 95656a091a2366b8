// Package config loads skimmer settings from a TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/skimmer/internal/database"
	"github.com/bryan-buckman/skimmer/internal/fetch"
	"github.com/bryan-buckman/skimmer/internal/rss"
)

// Database selects the storage backend.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"` // file path for sqlite, connection URL for postgres
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `toml:"addr"`
}

// Fetch configures outgoing requests.
type Fetch struct {
	Timeout      time.Duration `toml:"timeout"`
	UserAgent    string        `toml:"user_agent"`
	MaxBodyBytes int64         `toml:"max_body_bytes"`
}

// Updater configures feed updates.
type Updater struct {
	Workers      int           `toml:"workers"`
	PollInterval time.Duration `toml:"poll_interval"`
	DomainDelay  time.Duration `toml:"domain_delay"`
}

// Log configures logrus.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// Config is the top-level configuration.
type Config struct {
	Database Database `toml:"database"`
	HTTP     HTTP     `toml:"http"`
	Fetch    Fetch    `toml:"fetch"`
	Updater  Updater  `toml:"updater"`
	Log      Log      `toml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: Database{Driver: database.DriverSQLite, DSN: "skimmer.db"},
		HTTP:     HTTP{Addr: ":8080"},
		Fetch: Fetch{
			Timeout:      fetch.DefaultTimeout,
			UserAgent:    fetch.DefaultUserAgent,
			MaxBodyBytes: fetch.DefaultMaxBodyBytes,
		},
		Updater: Updater{
			Workers:      rss.DefaultWorkers,
			PollInterval: 30 * time.Minute,
			DomainDelay:  rss.DefaultDomainDelay,
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads the TOML file at path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.WithField("keys", undecoded).Warn("Unknown configuration keys")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is empty")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Updater.Workers < 1 {
		return fmt.Errorf("updater workers must be at least 1, got %d", c.Updater.Workers)
	}
	if c.Updater.PollInterval < rss.MinPollInterval {
		return fmt.Errorf("updater poll interval must be at least %s, got %s", rss.MinPollInterval, c.Updater.PollInterval)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// ConfigureLogging applies the log settings to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
