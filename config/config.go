// Package config loads daemon configuration from a YAML file with
// environment variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meridianbio/pipeline/cache"
)

// AppConfig is the top-level daemon configuration
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Stages  []StageConfig `yaml:"stages"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port        int `yaml:"port"`
	MetricsPort int `yaml:"metrics_port"`
}

// StoreConfig selects the snapshot store backend
type StoreConfig struct {
	// Backend is "memory" or "dynamodb"
	Backend string `yaml:"backend"`

	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// DynamoDBConfig holds DynamoDB store settings
type DynamoDBConfig struct {
	TableName string `yaml:"table_name"`
	Region    string `yaml:"region"`

	// SnapshotTTL expires finished workflow snapshots server-side
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// CacheConfig selects the result cache backend
type CacheConfig struct {
	// Backend is "memory", "redis" or "none"
	Backend string `yaml:"backend"`

	// Capacity bounds the memory backend
	Capacity int `yaml:"capacity"`

	Redis cache.RedisConfig `yaml:"redis"`
}

// StageConfig overrides one stage's executor endpoint
type StageConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file, expanding ${VAR} references
// from the environment and filling defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 4096
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *AppConfig) validate() error {
	switch c.Store.Backend {
	case "memory":
	case "dynamodb":
		if c.Store.DynamoDB.TableName == "" {
			return fmt.Errorf("store.dynamodb.table_name is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.URL == "" {
			return fmt.Errorf("cache.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}
