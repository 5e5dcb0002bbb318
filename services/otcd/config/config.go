package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OperatorSecretEnv overrides auth.operator_secret when set.
const OperatorSecretEnv = "OTCD_OPERATOR_SECRET"

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for otcd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Environment   string          `yaml:"env"`
	DataDir       string          `yaml:"data_dir"`
	GenesisPath   string          `yaml:"genesis"`
	Journal       JournalConfig   `yaml:"journal"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Quota         QuotaConfig     `yaml:"quota"`
	Recon         ReconConfig     `yaml:"recon"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// JournalConfig selects the event journal database.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig tunes signed request verification and operator tokens.
type AuthConfig struct {
	MaxSkew        Duration `yaml:"max_skew"`
	NonceTTL       Duration `yaml:"nonce_ttl"`
	OperatorSecret string   `yaml:"operator_secret"`
	OperatorIssuer string   `yaml:"operator_issuer"`
}

// RateLimitConfig bounds requests per identity.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// QuotaConfig caps request count and traded volume per identity and epoch.
type QuotaConfig struct {
	MaxRequests uint32   `yaml:"max_requests"`
	MaxVolume   uint64   `yaml:"max_volume"`
	Epoch       Duration `yaml:"epoch"`
}

// ReconConfig schedules reconciliation reports.
type ReconConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputDir  string `yaml:"output_dir"`
	RunHour    int    `yaml:"run_hour"`
	RunMinute  int    `yaml:"run_minute"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint       string   `yaml:"endpoint"`
	Insecure       bool     `yaml:"insecure"`
	Traces         bool     `yaml:"traces"`
	Metrics        bool     `yaml:"metrics"`
	SampleRatio    float64  `yaml:"sample_ratio"`
	MetricInterval Duration `yaml:"metric_interval"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns a configuration suitable for local development.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if secret := strings.TrimSpace(os.Getenv(OperatorSecretEnv)); secret != "" {
		cfg.Auth.OperatorSecret = secret
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "/var/data/otcd/state"
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	if cfg.Journal.DSN == "" && cfg.Journal.Driver == "sqlite" {
		cfg.Journal.DSN = "/var/data/otcd/journal.sqlite"
	}
	if cfg.Auth.MaxSkew.Duration == 0 {
		cfg.Auth.MaxSkew.Duration = 2 * time.Minute
	}
	if cfg.Auth.NonceTTL.Duration == 0 {
		cfg.Auth.NonceTTL.Duration = 2 * cfg.Auth.MaxSkew.Duration
	}
	if cfg.Auth.OperatorIssuer == "" {
		cfg.Auth.OperatorIssuer = "otcd"
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Quota.Epoch.Duration == 0 {
		cfg.Quota.Epoch.Duration = time.Hour
	}
	if cfg.Recon.OutputDir == "" {
		cfg.Recon.OutputDir = "/var/data/otcd/recon"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Telemetry.MetricInterval.Duration == 0 {
		cfg.Telemetry.MetricInterval.Duration = 15 * time.Second
	}
}

func validate(cfg Config) error {
	switch cfg.Journal.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("journal.driver must be sqlite or postgres, got %q", cfg.Journal.Driver)
	}
	if strings.TrimSpace(cfg.Journal.DSN) == "" {
		return fmt.Errorf("journal.dsn must be configured")
	}
	if cfg.Auth.MaxSkew.Duration < 0 {
		return fmt.Errorf("auth.max_skew must be positive")
	}
	if cfg.Auth.NonceTTL.Duration < 2*cfg.Auth.MaxSkew.Duration {
		return fmt.Errorf("auth.nonce_ttl must be at least twice auth.max_skew")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if cfg.Quota.Epoch.Duration < time.Second {
		return fmt.Errorf("quota.epoch must be at least one second")
	}
	if cfg.Recon.RunHour < 0 || cfg.Recon.RunHour > 23 || cfg.Recon.RunMinute < 0 || cfg.Recon.RunMinute > 59 {
		return fmt.Errorf("recon.run_hour/run_minute out of range")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}
