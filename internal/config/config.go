// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath  = "config.toml"
	DefaultHTTPAddr    = ":8080"
	DefaultPGHost      = "127.0.0.1"
	DefaultPGPort      = 5432
	DefaultPGUser      = "postgres"
	DefaultPGDatabase  = "konvo"
	DefaultPGSSLMode   = "disable"
	DefaultLLMTimeout  = 30
	DefaultWorkers     = 8
	DefaultQueueSize   = 256
	DefaultSyncTimeout = 25
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	LLM      LLMConfig      `toml:"llm"`
	Pipeline PipelineConfig `toml:"pipeline"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AuthConfig holds the JWT secret for the API surface and the web-chat visitor token TTL.
type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	VisitorTokenTTL string `toml:"visitor_token_ttl"`
}

// VisitorTTL parses the visitor token TTL, defaulting to 24h.
func (c AuthConfig) VisitorTTL() time.Duration {
	d, err := time.ParseDuration(c.VisitorTokenTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// LLMConfig holds the completion provider endpoint and client limits.
type LLMConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RequestsPerSec float64 `toml:"requests_per_sec"`
	Burst          int     `toml:"burst"`
}

// Timeout returns the completion call timeout.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultLLMTimeout * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PipelineConfig holds dispatcher sizing and maintenance intervals.
type PipelineConfig struct {
	Workers            int    `toml:"workers"`
	QueueSize          int    `toml:"queue_size"`
	SyncTimeoutSeconds int    `toml:"sync_timeout_seconds"`
	EventTTLHours      int    `toml:"event_ttl_hours"`
	SweepSchedule      string `toml:"sweep_schedule"`
}

// SyncTimeout returns the hard timeout for the synchronous web-chat path.
func (c PipelineConfig) SyncTimeout() time.Duration {
	if c.SyncTimeoutSeconds <= 0 {
		return DefaultSyncTimeout * time.Second
	}
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// EventTTL returns how long processed webhook event rows are retained.
func (c PipelineConfig) EventTTL() time.Duration {
	if c.EventTTLHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.EventTTLHours) * time.Hour
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			VisitorTokenTTL: "24h",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		LLM: LLMConfig{
			TimeoutSeconds: DefaultLLMTimeout,
			RequestsPerSec: 5,
			Burst:          10,
		},
		Pipeline: PipelineConfig{
			Workers:            DefaultWorkers,
			QueueSize:          DefaultQueueSize,
			SyncTimeoutSeconds: DefaultSyncTimeout,
			EventTTLHours:      72,
			SweepSchedule:      "@hourly",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
