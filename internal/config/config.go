package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// CurrentVersion is the config schema version written by Save.
const CurrentVersion = 1

// LogLevelEnvVar overrides logging.level.
const LogLevelEnvVar = "CODESHRINK_LOG_LEVEL"

// Config represents the complete codeshrink configuration (v1 schema)
type Config struct {
	Version int `json:"version" yaml:"version" toml:"version" mapstructure:"version"`

	Compaction CompactionConfig `json:"compaction" yaml:"compaction" toml:"compaction" mapstructure:"compaction"`
	Limits     LimitsConfig     `json:"limits" yaml:"limits" toml:"limits" mapstructure:"limits"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" toml:"cache" mapstructure:"cache"`
	Jobs       JobsConfig       `json:"jobs" yaml:"jobs" toml:"jobs" mapstructure:"jobs"`
	Ingest     IngestConfig     `json:"ingest" yaml:"ingest" toml:"ingest" mapstructure:"ingest"`
	Watch      WatchConfig      `json:"watch" yaml:"watch" toml:"watch" mapstructure:"watch"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging" toml:"logging" mapstructure:"logging"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics" toml:"metrics" mapstructure:"metrics"`
}

// CompactionConfig selects engine strategies.
type CompactionConfig struct {
	// DetectStrategy is "indexed" (suffix array) or "scan" (repeated search).
	DetectStrategy    string `json:"detectStrategy" yaml:"detectStrategy" toml:"detectStrategy" mapstructure:"detectStrategy"`
	RenameIdentifiers bool   `json:"renameIdentifiers" yaml:"renameIdentifiers" toml:"renameIdentifiers" mapstructure:"renameIdentifiers"`
	// IDScheme is "column" (unbounded) or "legacy" (two symbols, 2756 names).
	IDScheme string `json:"idScheme" yaml:"idScheme" toml:"idScheme" mapstructure:"idScheme"`
}

// LimitsConfig is the caller-side guard around the superlinear detector.
type LimitsConfig struct {
	MaxInputBytes int `json:"maxInputBytes" yaml:"maxInputBytes" toml:"maxInputBytes" mapstructure:"maxInputBytes"`
	TimeoutMs     int `json:"timeoutMs" yaml:"timeoutMs" toml:"timeoutMs" mapstructure:"timeoutMs"`
}

// CacheConfig contains artifact cache configuration
type CacheConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled" toml:"enabled" mapstructure:"enabled"`
	TtlSeconds int  `json:"ttlSeconds" yaml:"ttlSeconds" toml:"ttlSeconds" mapstructure:"ttlSeconds"`
}

// JobsConfig contains background runner configuration
type JobsConfig struct {
	Workers        int `json:"workers" yaml:"workers" toml:"workers" mapstructure:"workers"`
	QueueSize      int `json:"queueSize" yaml:"queueSize" toml:"queueSize" mapstructure:"queueSize"`
	RetentionHours int `json:"retentionHours" yaml:"retentionHours" toml:"retentionHours" mapstructure:"retentionHours"`
}

// IngestConfig contains batch ingest filters.
type IngestConfig struct {
	Include []string `json:"include" yaml:"include" toml:"include" mapstructure:"include"`
	Exclude []string `json:"exclude" yaml:"exclude" toml:"exclude" mapstructure:"exclude"`
	// SessionScope is "document" (fresh rename session per file) or
	// "project" (one session shared by the whole tree).
	SessionScope string `json:"sessionScope" yaml:"sessionScope" toml:"sessionScope" mapstructure:"sessionScope"`
}

// WatchConfig contains watcher configuration
type WatchConfig struct {
	DebounceMs int `json:"debounceMs" yaml:"debounceMs" toml:"debounceMs" mapstructure:"debounceMs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" yaml:"format" toml:"format" mapstructure:"format"`
	Level      string `json:"level" yaml:"level" toml:"level" mapstructure:"level"`
	MaxSize    string `json:"maxSize" yaml:"maxSize" toml:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups" toml:"maxBackups" mapstructure:"maxBackups"`
}

// MetricsConfig contains metrics export configuration
type MetricsConfig struct {
	// Textfile is a node_exporter textfile path written after ingest; empty disables it.
	Textfile string `json:"textfile" yaml:"textfile" toml:"textfile" mapstructure:"textfile"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Compaction: CompactionConfig{
			DetectStrategy:    "indexed",
			RenameIdentifiers: true,
			IDScheme:          "column",
		},
		Limits: LimitsConfig{
			MaxInputBytes: 256 * 1024,
			TimeoutMs:     30000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TtlSeconds: 86400,
		},
		Jobs: JobsConfig{
			Workers:        4,
			QueueSize:      100,
			RetentionHours: 168,
		},
		Ingest: IngestConfig{
			Include:      []string{"**/*"},
			Exclude:      []string{"**/node_modules/**", "**/.git/**", "**/vendor/**", "**/__pycache__/**"},
			SessionScope: "document",
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// setDefaults mirrors DefaultConfig into viper so partial files and env
// overrides are merged over the defaults.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("compaction.detectStrategy", d.Compaction.DetectStrategy)
	v.SetDefault("compaction.renameIdentifiers", d.Compaction.RenameIdentifiers)
	v.SetDefault("compaction.idScheme", d.Compaction.IDScheme)
	v.SetDefault("limits.maxInputBytes", d.Limits.MaxInputBytes)
	v.SetDefault("limits.timeoutMs", d.Limits.TimeoutMs)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttlSeconds", d.Cache.TtlSeconds)
	v.SetDefault("jobs.workers", d.Jobs.Workers)
	v.SetDefault("jobs.queueSize", d.Jobs.QueueSize)
	v.SetDefault("jobs.retentionHours", d.Jobs.RetentionHours)
	v.SetDefault("ingest.include", d.Ingest.Include)
	v.SetDefault("ingest.exclude", d.Ingest.Exclude)
	v.SetDefault("ingest.sessionScope", d.Ingest.SessionScope)
	v.SetDefault("watch.debounceMs", d.Watch.DebounceMs)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.maxSize", d.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// LoadConfig loads configuration from .codeshrink/config.json.
// A missing file yields the defaults.
func LoadConfig(root string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".codeshrink"))

	if err := v.BindEnv("logging.level", LogLevelEnvVar); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to .codeshrink/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".codeshrink")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}

	checks := []struct {
		field string
		ok    bool
		msg   string
	}{
		{"compaction.detectStrategy", oneOf(c.Compaction.DetectStrategy, "indexed", "scan"), "must be indexed or scan"},
		{"compaction.idScheme", oneOf(c.Compaction.IDScheme, "column", "legacy"), "must be column or legacy"},
		{"limits.maxInputBytes", c.Limits.MaxInputBytes > 0, "must be positive"},
		{"limits.timeoutMs", c.Limits.TimeoutMs > 0, "must be positive"},
		{"cache.ttlSeconds", c.Cache.TtlSeconds >= 0, "must not be negative"},
		{"jobs.workers", c.Jobs.Workers > 0, "must be positive"},
		{"jobs.queueSize", c.Jobs.QueueSize > 0, "must be positive"},
		{"jobs.retentionHours", c.Jobs.RetentionHours >= 0, "must not be negative"},
		{"ingest.sessionScope", oneOf(c.Ingest.SessionScope, "document", "project"), "must be document or project"},
		{"watch.debounceMs", c.Watch.DebounceMs >= 0, "must not be negative"},
		{"logging.format", oneOf(c.Logging.Format, "human", "json"), "must be human or json"},
		{"logging.level", oneOf(c.Logging.Level, "debug", "info", "warn", "warning", "error"), "unknown level"},
		{"logging.maxBackups", c.Logging.MaxBackups >= 0, "must not be negative"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return &ConfigError{Field: chk.field, Message: chk.msg}
		}
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
