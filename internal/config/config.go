// Package config handles configuration loading for the kill switch daemon.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ransomwatch/internal/logging"
)

// Config holds the complete daemon configuration.
type Config struct {
	KillSwitch KillSwitchConfig `yaml:"killswitch" validate:"required"`
	Backup     BackupConfig     `yaml:"backup"`
	S3         S3Config         `yaml:"s3"`
	Notify     NotifyConfig     `yaml:"notify"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ThreatLog  ThreatLogConfig  `yaml:"threat_log"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

// APIConfig configures the local status HTTP server the TUI and external
// monitoring poll.
type APIConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// KillSwitchConfig mirrors killswitch.ManagerConfig for the YAML layer,
// plus a few settings (custom canary patterns, reset code) the manager
// constructor doesn't need split out further.
type KillSwitchConfig struct {
	Enabled          bool     `yaml:"enabled"`
	DeleteThreshold  int      `yaml:"delete_threshold" validate:"gt=0"`
	WindowSeconds    int      `yaml:"window_seconds" validate:"gt=0"`
	EntropyThreshold float64  `yaml:"entropy_threshold" validate:"gt=0,lte=8"`
	CanaryFiles      []string `yaml:"canary_files"`
	AutoBackup       bool     `yaml:"auto_backup"`
	ResetCodeHash    string   `yaml:"reset_code_hash,omitempty"`
}

// BackupConfig configures the local BackupAction.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Directory     string `yaml:"directory" validate:"required_if=Enabled true"`
	RetentionDays int    `yaml:"retention_days" validate:"gte=0"`
	MaxSizeMB     int64  `yaml:"max_size_mb" validate:"gte=0"`
}

// S3Config configures the optional S3Action.
type S3Config struct {
	Enabled  bool   `yaml:"enabled"`
	Region   string `yaml:"region" validate:"required_if=Enabled true"`
	Bucket   string `yaml:"bucket" validate:"required_if=Enabled true"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// NotifyConfig configures the optional webhook/Slack NotifyAction.
type NotifyConfig struct {
	Enabled    bool              `yaml:"enabled"`
	WebhookURL string            `yaml:"webhook_url" validate:"required_if=Enabled true"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// KafkaConfig configures the optional KafkaAction.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `yaml:"topic" validate:"required_if=Enabled true"`
}

// ThreatLogConfig selects and configures the ThreatLog backend.
type ThreatLogConfig struct {
	Backend    string           `yaml:"backend" validate:"oneof=json clickhouse"`
	Path       string           `yaml:"path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig holds ClickHouse connection settings for ThreatLog.
type ClickHouseConfig struct {
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// WatchdogConfig configures systemd watchdog/health-check behavior.
type WatchdogConfig struct {
	Enabled           bool          `yaml:"enabled"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period"`
	DiskSpacePath     string        `yaml:"disk_space_path"`
	DiskSpaceMin      float64       `yaml:"disk_space_min_fraction" validate:"gte=0,lte=1"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		KillSwitch: KillSwitchConfig{
			Enabled:          true,
			DeleteThreshold:  10,
			WindowSeconds:    60,
			EntropyThreshold: 7.5,
			CanaryFiles:      []string{"_canary.txt", ".canary", "zzz_canary.txt"},
			AutoBackup:       true,
		},
		Backup: BackupConfig{
			Enabled:       true,
			Directory:     "./killswitch-backups",
			RetentionDays: 30,
			MaxSizeMB:     10240,
		},
		S3: S3Config{Enabled: false},
		Notify: NotifyConfig{Enabled: false},
		Kafka:  KafkaConfig{Enabled: false},
		ThreatLog: ThreatLogConfig{
			Backend: "json",
			Path:    "./sentinel-threats.json",
		},
		Watchdog: WatchdogConfig{
			Enabled:           true,
			HealthCheckPeriod: 10 * time.Second,
			DiskSpacePath:     "./killswitch-backups",
			DiskSpaceMin:      0.1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:8090",
		},
	}
}

// Load loads configuration from a file (or defaults if none is found) and
// applies environment variable overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("RANSOMWATCH_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides, for
// container deployments that prefer env vars over mounting a config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RANSOMWATCH_ENABLED"); v != "" {
		c.KillSwitch.Enabled = v == "true"
	}
	if v := os.Getenv("RANSOMWATCH_DELETE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KillSwitch.DeleteThreshold = n
		}
	}
	if v := os.Getenv("RANSOMWATCH_ENTROPY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.KillSwitch.EntropyThreshold = f
		}
	}
	if v := os.Getenv("RANSOMWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RANSOMWATCH_BACKUP_DIR"); v != "" {
		c.Backup.Directory = v
	}
	if v := os.Getenv("RANSOMWATCH_S3_BUCKET"); v != "" {
		c.S3.Bucket = v
		c.S3.Enabled = true
	}
	if v := os.Getenv("RANSOMWATCH_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
		c.Notify.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ThreatLog.ClickHouse.Hosts = []string{v}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
}

// LogFields returns the startup summary the daemon echoes after a
// successful load, as alternating slog key/value pairs. Secret-bearing
// settings go through the masking layer first.
func (c *Config) LogFields() []any {
	return []any{
		"killswitch_enabled", c.KillSwitch.Enabled,
		"delete_threshold", c.KillSwitch.DeleteThreshold,
		"window_seconds", c.KillSwitch.WindowSeconds,
		"entropy_threshold", c.KillSwitch.EntropyThreshold,
		"threat_log_backend", c.ThreatLog.Backend,
		"backup_enabled", c.Backup.Enabled,
		"backup_dir", c.Backup.Directory,
		"s3_enabled", c.S3.Enabled,
		"notify_enabled", c.Notify.Enabled,
		"webhook_url", logging.SafeLogValue("webhook_url", c.Notify.WebhookURL),
		"kafka_enabled", c.Kafka.Enabled,
		"reset_code_hash", logging.SafeLogValue("reset_code_hash", c.KillSwitch.ResetCodeHash),
	}
}

var validate = validator.New()

// Validate checks the configuration against struct-tag constraints plus a
// few cross-field rules validator tags can't express cleanly.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.ThreatLog.Backend == "clickhouse" && len(c.ThreatLog.ClickHouse.Hosts) == 0 {
		return fmt.Errorf("threat_log.clickhouse.hosts is required when backend is clickhouse")
	}

	return nil
}
