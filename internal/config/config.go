// Package config provides unified configuration for the timeline binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ExecutorType selects how the store reaches the SNL executor.
type ExecutorType string

const (
	// ExecutorLocal runs the reference engine in process.
	ExecutorLocal ExecutorType = "local"
	// ExecutorHTTP talks to a remote executor over HTTP.
	ExecutorHTTP ExecutorType = "http"
	// ExecutorGRPC talks to a remote executor over gRPC.
	ExecutorGRPC ExecutorType = "grpc"
)

// Config holds the unified configuration of the timeline binaries.
type Config struct {
	// DataDir is the base directory for local files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Store      StoreConfig      `json:"store" yaml:"store"`
	Executor   ExecutorConfig   `json:"executor" yaml:"executor"`
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Archive    ArchiveConfig    `json:"archive" yaml:"archive"`
	ChangeFeed ChangeFeedConfig `json:"change_feed" yaml:"change_feed"`
	Log        LogConfig        `json:"log" yaml:"log"`
}

// StoreConfig configures the timeline store.
type StoreConfig struct {
	// Database is the first path segment of every command.
	Database string `json:"database" yaml:"database"`

	// Strategy is the partition layout: flat or bucketed.
	Strategy string `json:"strategy" yaml:"strategy"`

	// IncludeTime adds an HHMM segment to flat keys.
	IncludeTime bool `json:"include_time" yaml:"include_time"`

	// Credential is passed to the executor with every command.
	Credential string `json:"credential" yaml:"credential"`
}

// ExecutorConfig selects the executor.
type ExecutorConfig struct {
	// Type is local, http or grpc.
	Type ExecutorType `json:"type" yaml:"type"`

	// Endpoint is the base URL (http) or address (grpc) of a remote executor.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Timeout bounds a single remote call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// EngineConfig configures the reference engine.
type EngineConfig struct {
	// Backend is memory or sqlite.
	Backend string `json:"backend" yaml:"backend"`

	// Path is the sqlite database file.
	Path string `json:"path" yaml:"path"`

	// Shards is the shard count of the memory backend.
	Shards int `json:"shards" yaml:"shards"`

	// Tokens are the accepted credentials. Empty means open.
	Tokens []string `json:"tokens" yaml:"tokens"`
}

// ServerConfig configures snld.
type ServerConfig struct {
	// HTTPAddr serves /v1/execute, /healthz and /metrics.
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`

	// GRPCAddr serves the executor service. Empty disables gRPC.
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"`

	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ArchiveConfig configures archive before purge.
type ArchiveConfig struct {
	// Enabled turns archiving on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Type is local or s3.
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (for local type).
	Path string `json:"path" yaml:"path"`

	// Prefix is the object path prefix of archives.
	Prefix string `json:"prefix" yaml:"prefix"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// ChangeFeedConfig configures Kafka publishing of entry events.
type ChangeFeedConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled"`
	Brokers []string      `json:"brokers" yaml:"brokers"`
	Topic   string        `json:"topic" yaml:"topic"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/timeline",
		Store: StoreConfig{
			Database: "timeline",
			Strategy: "flat",
		},
		Executor: ExecutorConfig{
			Type:    ExecutorLocal,
			Timeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			Backend: "sqlite",
			Shards:  16,
		},
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":9090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Archive: ArchiveConfig{
			Type:   "local",
			Prefix: "archive",
		},
		ChangeFeed: ChangeFeedConfig{
			Topic:   "timeline.entries",
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/timeline"
	}
	if c.Engine.Backend == "sqlite" && c.Engine.Path == "" {
		c.Engine.Path = filepath.Join(c.DataDir, "timeline.db")
	}
	if c.Archive.Type == "local" && c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(c.DataDir, "archive")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Database == "" {
		return fmt.Errorf("store.database is required")
	}
	switch c.Store.Strategy {
	case "", "flat", "bucketed":
	default:
		return fmt.Errorf("invalid store.strategy: %s (must be flat or bucketed)", c.Store.Strategy)
	}

	switch c.Executor.Type {
	case ExecutorLocal:
		switch c.Engine.Backend {
		case "memory":
			if c.Engine.Shards < 1 {
				return fmt.Errorf("engine.shards must be >= 1, got %d", c.Engine.Shards)
			}
		case "sqlite":
			if c.Engine.Path == "" {
				return fmt.Errorf("engine.path is required when engine backend is sqlite")
			}
		default:
			return fmt.Errorf("invalid engine.backend: %s (must be memory or sqlite)", c.Engine.Backend)
		}
	case ExecutorHTTP, ExecutorGRPC:
		if c.Executor.Endpoint == "" {
			return fmt.Errorf("executor.endpoint is required when executor type is %s", c.Executor.Type)
		}
	default:
		return fmt.Errorf("invalid executor.type: %s (must be local, http, or grpc)", c.Executor.Type)
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "local":
			if c.Archive.Path == "" {
				return fmt.Errorf("archive.path is required when archive type is local")
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return fmt.Errorf("archive.s3.bucket is required when archive type is s3")
			}
		default:
			return fmt.Errorf("invalid archive.type: %s (must be local or s3)", c.Archive.Type)
		}
	}

	if c.ChangeFeed.Enabled && len(c.ChangeFeed.Brokers) == 0 {
		return fmt.Errorf("change_feed.brokers is required when the change feed is enabled")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %s", c.Log.Level)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// Load reads path when it is non-empty, otherwise starts from the defaults,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TIMELINE_ prefix.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("TIMELINE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Store configuration
	if v := os.Getenv("TIMELINE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("TIMELINE_STRATEGY"); v != "" {
		cfg.Store.Strategy = v
	}
	if v := os.Getenv("TIMELINE_INCLUDE_TIME"); v != "" {
		cfg.Store.IncludeTime = parseBool(v)
	}
	if v := os.Getenv("TIMELINE_CREDENTIAL"); v != "" {
		cfg.Store.Credential = v
	}

	// Executor configuration
	if v := os.Getenv("TIMELINE_EXECUTOR_TYPE"); v != "" {
		cfg.Executor.Type = ExecutorType(v)
	}
	if v := os.Getenv("TIMELINE_EXECUTOR_ENDPOINT"); v != "" {
		cfg.Executor.Endpoint = v
	}
	if v := os.Getenv("TIMELINE_EXECUTOR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TIMELINE_EXECUTOR_TIMEOUT: %w", err)
		}
		cfg.Executor.Timeout = d
	}

	// Engine configuration
	if v := os.Getenv("TIMELINE_ENGINE_BACKEND"); v != "" {
		cfg.Engine.Backend = v
	}
	if v := os.Getenv("TIMELINE_ENGINE_PATH"); v != "" {
		cfg.Engine.Path = v
	}
	if v := os.Getenv("TIMELINE_ENGINE_SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TIMELINE_ENGINE_SHARDS: %w", err)
		}
		cfg.Engine.Shards = n
	}
	if v := os.Getenv("TIMELINE_ENGINE_TOKENS"); v != "" {
		cfg.Engine.Tokens = splitList(v)
	}

	// Server configuration
	if v := os.Getenv("TIMELINE_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v, ok := os.LookupEnv("TIMELINE_GRPC_ADDR"); ok {
		cfg.Server.GRPCAddr = v
	}

	// Archive configuration
	if v := os.Getenv("TIMELINE_ARCHIVE_ENABLED"); v != "" {
		cfg.Archive.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIMELINE_ARCHIVE_TYPE"); v != "" {
		cfg.Archive.Type = v
	}
	if v := os.Getenv("TIMELINE_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("TIMELINE_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("TIMELINE_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("TIMELINE_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
	}

	// Change feed configuration
	if v := os.Getenv("TIMELINE_KAFKA_BROKERS"); v != "" {
		cfg.ChangeFeed.Brokers = splitList(v)
		cfg.ChangeFeed.Enabled = true
	}
	if v := os.Getenv("TIMELINE_KAFKA_TOPIC"); v != "" {
		cfg.ChangeFeed.Topic = v
	}

	if v := os.Getenv("TIMELINE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// EnsureDirectories creates the local directories the configuration needs.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Executor.Type == ExecutorLocal && c.Engine.Backend == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Engine.Path))
	}
	if c.Archive.Enabled && c.Archive.Type == "local" {
		dirs = append(dirs, c.Archive.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
