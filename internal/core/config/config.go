package config

import (
	redisclient "github.com/vietddude/logindex/internal/infra/redis"
	"github.com/vietddude/logindex/internal/infra/storage/sqldb"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Indexer    IndexerConfig      `yaml:"indexer"`
	Logs       LogsConfig         `yaml:"logs"`
	View       ViewConfig         `yaml:"view"`
	Checkpoint CheckpointConfig   `yaml:"checkpoint"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   sqldb.Config       `yaml:"database"`
}

// ServerConfig holds health server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`      // negative disables the HTTP health server
	GRPCPort int `yaml:"grpc_port"` // 0 disables the gRPC health service
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// IndexerConfig holds settings of the indexing engine.
type IndexerConfig struct {
	Name     string `yaml:"name"`
	Version  uint32 `yaml:"version"`
	MaxBatch uint32 `yaml:"max_batch"`
}

// LogsConfig locates the append-only logs.
type LogsConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
	Fsync    string `yaml:"fsync"` // always, interval, never
}

// ViewConfig locates the materialized key/value view.
type ViewConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// Checkpoint drivers.
const (
	DriverMemory = "memory"
	DriverPebble = "pebble"
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverSQL    = "sql"
)

// CheckpointConfig selects where checkpoints are persisted.
type CheckpointConfig struct {
	Driver string `yaml:"driver"`
	// Dir is used by the pebble driver. Empty shares the logs database.
	Dir string `yaml:"dir"`
	// MaxRetries retries transient store failures. 0 disables retrying.
	MaxRetries int `yaml:"max_retries"`
}
