package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables and
// applying defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.SetDefaults()
	return &cfg
}

// SetDefaults fills zero values.
func (c *AppConfig) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Indexer.Name == "" {
		c.Indexer.Name = "kv"
	}
	if c.Indexer.Version == 0 {
		c.Indexer.Version = 1
	}
	if c.Indexer.MaxBatch == 0 {
		c.Indexer.MaxBatch = 50
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = "./data/logs"
	}
	if c.Logs.Fsync == "" {
		c.Logs.Fsync = "always"
	}
	if c.View.Dir == "" {
		c.View.Dir = "./data/view"
	}
	if c.Checkpoint.Driver == "" {
		c.Checkpoint.Driver = DriverPebble
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "logindex:"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "pgx"
	}
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logs.Fsync {
	case "always", "interval", "never":
	default:
		return fmt.Errorf("logs.fsync: unknown mode %q", c.Logs.Fsync)
	}
	if c.Indexer.MaxBatch == 0 {
		return fmt.Errorf("indexer.max_batch: must be positive")
	}
	if c.Checkpoint.MaxRetries < 0 {
		return fmt.Errorf("checkpoint.max_retries: must not be negative")
	}

	switch c.Checkpoint.Driver {
	case DriverMemory, DriverBadger:
	case DriverPebble:
		if c.Checkpoint.Dir == "" && c.Logs.InMemory {
			return fmt.Errorf("checkpoint.dir: required by the pebble driver when logs are in memory")
		}
	case DriverRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url: required by the redis checkpoint driver")
		}
	case DriverSQL:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url: required by the sql checkpoint driver")
		}
	default:
		return fmt.Errorf("checkpoint.driver: unknown driver %q", c.Checkpoint.Driver)
	}
	return nil
}
