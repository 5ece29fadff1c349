// Package config loads engine settings from defaults, an optional YAML file,
// PAYMENTS_* environment variables and command-line flags, in that order of
// precedence.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable: log.level is read
// from PAYMENTS_LOG_LEVEL.
const EnvPrefix = "PAYMENTS"

// Config is the full engine configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Export  ExportConfig  `mapstructure:"export"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IngestConfig configures input parsing. A Buffer above zero parses the
// input on a separate goroutine feeding a channel of that size.
type IngestConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// PolicyConfig toggles the optional engine checks.
type PolicyConfig struct {
	VerifyDisputeClient bool `mapstructure:"verify_dispute_client"`
	FreezeLocked        bool `mapstructure:"freeze_locked"`
}

// MetricsConfig configures the Prometheus textfile written after a run.
type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// ExportConfig configures the snapshot sinks. Empty URLs disable a sink.
type ExportConfig struct {
	PostgresURL string        `mapstructure:"postgres_url"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.buffer", 0)
	v.SetDefault("policy.verify_dispute_client", false)
	v.SetDefault("policy.freeze_locked", false)
	v.SetDefault("metrics.file", "")
	v.SetDefault("export.postgres_url", "")
	v.SetDefault("export.redis_url", "")
	v.SetDefault("export.redis_prefix", "payments")
	v.SetDefault("export.redis_ttl", 0)
}

// Load resolves the configuration held by v. When the "config" key names a
// file it is read as YAML first; environment variables and any flags bound
// to v override it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	if c.Ingest.Buffer < 0 {
		return fmt.Errorf("config: ingest.buffer must be >= 0, got %d", c.Ingest.Buffer)
	}
	if c.Export.RedisTTL < 0 {
		return fmt.Errorf("config: export.redis_ttl must be >= 0, got %s", c.Export.RedisTTL)
	}
	if c.Export.RedisURL != "" && c.Export.RedisPrefix == "" {
		return fmt.Errorf("config: export.redis_prefix must be set when export.redis_url is")
	}
	return nil
}

// SlogLevel maps the configured level name onto a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}
