// Package config loads engine configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	EventLog   EventLogConfig   `mapstructure:"eventlog"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Response   ResponseConfig   `mapstructure:"response"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Signatures SignaturesConfig `mapstructure:"signatures"`
	Channels   []ChannelConfig  `mapstructure:"channels"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds the Redis enforcement backend configuration.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	RateLimitTTL time.Duration `mapstructure:"rate_limit_ttl"`
	IngestLimit  int           `mapstructure:"ingest_limit"`
	IngestWindow time.Duration `mapstructure:"ingest_window"`
}

// NATSConfig holds the NATS enforcement publisher configuration.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// EventLogConfig holds the OpenSearch audit log configuration.
type EventLogConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Insecure    bool   `mapstructure:"insecure"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// EngineConfig holds the periodic cycle intervals.
type EngineConfig struct {
	ScanInterval         time.Duration `mapstructure:"scan_interval"`
	DetectionInterval    time.Duration `mapstructure:"detection_interval"`
	BaselineInterval     time.Duration `mapstructure:"baseline_interval"`
	IntelRefreshInterval time.Duration `mapstructure:"intel_refresh_interval"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval"`
	SourceBuffer         int           `mapstructure:"source_buffer"`
}

// ScoringConfig holds the score thresholds.
type ScoringConfig struct {
	DetectionThreshold int      `mapstructure:"detection_threshold"`
	AnomalyThreshold   int      `mapstructure:"anomaly_threshold"`
	HighRiskCountries  []string `mapstructure:"high_risk_countries"`
	ResponseTimeWarnMs int64    `mapstructure:"response_time_warn_ms"`
	PayloadWarnBytes   int64    `mapstructure:"payload_warn_bytes"`
	BusinessHourStart  int      `mapstructure:"business_hour_start"`
	BusinessHourEnd    int      `mapstructure:"business_hour_end"`
}

// DetectionConfig holds the sliding-window detector thresholds.
type DetectionConfig struct {
	BruteForceWindow   time.Duration `mapstructure:"brute_force_window"`
	BruteForceCount    int           `mapstructure:"brute_force_count"`
	VolumetricWindow   time.Duration `mapstructure:"volumetric_window"`
	VolumetricRate     int           `mapstructure:"volumetric_rate"`
	ExfiltrationWindow time.Duration `mapstructure:"exfiltration_window"`
	ExfiltrationBytes  int64         `mapstructure:"exfiltration_bytes"`
	PrivEscWindow      time.Duration `mapstructure:"priv_esc_window"`
	PrivEscCount       int           `mapstructure:"priv_esc_count"`
}

// ResponseConfig holds the automated response thresholds.
type ResponseConfig struct {
	EnableAutoResponse  bool          `mapstructure:"enable_auto_response"`
	AutoBlockThreshold  int           `mapstructure:"auto_block_threshold"`
	QuarantineThreshold int           `mapstructure:"quarantine_threshold"`
	EscalationThreshold int           `mapstructure:"escalation_threshold"`
	QuarantineTTL       time.Duration `mapstructure:"quarantine_ttl"`
	ActionTimeout       time.Duration `mapstructure:"action_timeout"`
}

// RetentionConfig holds the data retention ages.
type RetentionConfig struct {
	DataRetentionDays    int           `mapstructure:"data_retention_days"`
	ResolvedFindingAge   time.Duration `mapstructure:"resolved_finding_age"`
	BaselineIdleAge      time.Duration `mapstructure:"baseline_idle_age"`
	ExpiredQuarantineAge time.Duration `mapstructure:"expired_quarantine_age"`
}

// SignaturesConfig points at an optional signature definitions file.
type SignaturesConfig struct {
	File string `mapstructure:"file"`
}

// ChannelConfig configures one escalation channel.
type ChannelConfig struct {
	Type string `mapstructure:"type"`
	URL  string `mapstructure:"url"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8097)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "crowsnest")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "crowsnest")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.rate_limit_ttl", "5m")
	v.SetDefault("redis.ingest_limit", 300)
	v.SetDefault("redis.ingest_window", "1m")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("eventlog.enabled", false)
	v.SetDefault("eventlog.url", "https://localhost:9200")
	v.SetDefault("eventlog.username", "admin")
	v.SetDefault("eventlog.password", "")
	v.SetDefault("eventlog.insecure", true)
	v.SetDefault("eventlog.index_prefix", "crowsnest")

	v.SetDefault("engine.scan_interval", "30s")
	v.SetDefault("engine.detection_interval", "1m")
	v.SetDefault("engine.baseline_interval", "5m")
	v.SetDefault("engine.intel_refresh_interval", "15m")
	v.SetDefault("engine.cleanup_interval", "1h")
	v.SetDefault("engine.source_buffer", 4096)

	v.SetDefault("scoring.detection_threshold", 75)
	v.SetDefault("scoring.anomaly_threshold", 25)
	v.SetDefault("scoring.high_risk_countries", []string{})
	v.SetDefault("scoring.response_time_warn_ms", 5000)
	v.SetDefault("scoring.payload_warn_bytes", 1048576)
	v.SetDefault("scoring.business_hour_start", 8)
	v.SetDefault("scoring.business_hour_end", 18)

	v.SetDefault("detection.brute_force_window", "15m")
	v.SetDefault("detection.brute_force_count", 5)
	v.SetDefault("detection.volumetric_window", "5m")
	v.SetDefault("detection.volumetric_rate", 100)
	v.SetDefault("detection.exfiltration_window", "30m")
	v.SetDefault("detection.exfiltration_bytes", 10485760)
	v.SetDefault("detection.priv_esc_window", "1h")
	v.SetDefault("detection.priv_esc_count", 5)

	v.SetDefault("response.enable_auto_response", true)
	v.SetDefault("response.auto_block_threshold", 90)
	v.SetDefault("response.quarantine_threshold", 80)
	v.SetDefault("response.escalation_threshold", 85)
	v.SetDefault("response.quarantine_ttl", "1h")
	v.SetDefault("response.action_timeout", "5s")

	v.SetDefault("retention.data_retention_days", 30)
	v.SetDefault("retention.resolved_finding_age", "168h")
	v.SetDefault("retention.baseline_idle_age", "336h")
	v.SetDefault("retention.expired_quarantine_age", "24h")

	v.SetDefault("signatures.file", "")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("CROWSNEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Scoring.DetectionThreshold < 0 {
		return fmt.Errorf("detection threshold must not be negative")
	}
	if c.Retention.DataRetentionDays <= 0 {
		return fmt.Errorf("data retention days must be positive")
	}
	if c.Response.QuarantineTTL <= 0 {
		return fmt.Errorf("quarantine TTL must be positive")
	}
	for _, ch := range c.Channels {
		switch ch.Type {
		case "webhook", "slack":
			if ch.URL == "" {
				return fmt.Errorf("channel %q requires a url", ch.Type)
			}
		default:
			return fmt.Errorf("unknown channel type %q", ch.Type)
		}
	}
	return nil
}
