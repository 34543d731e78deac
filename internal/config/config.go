package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Sending  SendingConfig  `yaml:"sending"`
	Worker   WorkerConfig   `yaml:"worker"`
	Tracking TrackingConfig `yaml:"tracking"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration for the admin API.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection used for distributed
// locks and the status-stream fanout. Empty URL disables Redis; locking
// falls back to Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SendingConfig holds sender identity defaults applied when a campaign
// leaves from_name/from_email blank.
type SendingConfig struct {
	DefaultFromName  string `yaml:"default_from_name"`
	DefaultFromEmail string `yaml:"default_from_email"`
}

// WorkerConfig holds delivery worker tuning.
type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	PoolSize            int `yaml:"pool_size"`
	ClaimBatchSize      int `yaml:"claim_batch_size"`
	QueueChunkSize      int `yaml:"queue_chunk_size"`
	SendRatePerSecond   int `yaml:"send_rate_per_second"`
	OutboxIntervalSecs  int `yaml:"outbox_interval_seconds"`
}

// PollInterval returns the scheduler poll interval as a duration
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// OutboxInterval returns the outbox reconciliation interval as a duration
func (c WorkerConfig) OutboxInterval() time.Duration {
	return time.Duration(c.OutboxIntervalSecs) * time.Second
}

// TrackingConfig holds the public tracking endpoint settings. BaseURL is
// the externally reachable origin baked into pixel and click links.
type TrackingConfig struct {
	Port       int    `yaml:"port"`
	BaseURL    string `yaml:"base_url"`
	HMACSecret string `yaml:"hmac_secret"`
}

// AuthConfig holds API token authentication settings.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 15
	}
	if cfg.Worker.PoolSize == 0 {
		cfg.Worker.PoolSize = 10
	}
	if cfg.Worker.ClaimBatchSize == 0 {
		cfg.Worker.ClaimBatchSize = 100
	}
	if cfg.Worker.QueueChunkSize == 0 {
		cfg.Worker.QueueChunkSize = 1000
	}
	if cfg.Worker.SendRatePerSecond == 0 {
		cfg.Worker.SendRatePerSecond = 50
	}
	if cfg.Worker.OutboxIntervalSecs == 0 {
		cfg.Worker.OutboxIntervalSecs = 30
	}
	if cfg.Tracking.Port == 0 {
		cfg.Tracking.Port = 8081
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = "http://localhost:8081"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file first (if present) so secrets can live in .env
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_HMAC_SECRET"); v != "" {
		cfg.Tracking.HMACSecret = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
