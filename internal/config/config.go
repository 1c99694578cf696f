package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is the application version, set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Database DatabaseConfig          `mapstructure:"database"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Gateway  GatewayConfig           `mapstructure:"gateway"`
	Tasks    map[string]TaskOverride `mapstructure:"tasks"`
	Import   ImportConfig            `mapstructure:"import"`
	Scanner  ScannerConfig           `mapstructure:"scanner"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ProviderLimit configures the outbound rate limit for one provider key.
type ProviderLimit struct {
	Interval    time.Duration `mapstructure:"interval"`
	IntervalCap int           `mapstructure:"interval_cap"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GatewayConfig holds per-provider outbound HTTP limits.
type GatewayConfig struct {
	Providers map[string]ProviderLimit `mapstructure:"providers"`
	Default   ProviderLimit            `mapstructure:"default"`
}

// TaskOverride allows per-task interval/enabled overrides from config.
type TaskOverride struct {
	IntervalMinutes int   `mapstructure:"interval_minutes"`
	Enabled         *bool `mapstructure:"enabled"`
}

// ImportConfig holds importer behavior settings.
type ImportConfig struct {
	// KeepSource copies instead of moving, leaving downloaded files in place.
	KeepSource bool `mapstructure:"keep_source"`
}

// ScannerConfig holds completed-downloads scanner settings.
type ScannerConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.fetcharr")
	}

	v.SetEnvPrefix("FETCHARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8989)

	v.SetDefault("database.path", "./data/fetcharr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	// Metadata provider at ~4 req/s with 8-way concurrency, secondary
	// provider at ~3 req/s serial. Indexer provider keys use the default
	// profile unless overridden.
	v.SetDefault("gateway.default.interval", "1s")
	v.SetDefault("gateway.default.interval_cap", 4)
	v.SetDefault("gateway.default.concurrency", 8)
	v.SetDefault("gateway.default.timeout", "30s")
	v.SetDefault("gateway.providers.metadata.interval", "1s")
	v.SetDefault("gateway.providers.metadata.interval_cap", 4)
	v.SetDefault("gateway.providers.metadata.concurrency", 8)
	v.SetDefault("gateway.providers.metadata.timeout", "30s")
	v.SetDefault("gateway.providers.metadata-secondary.interval", "1s")
	v.SetDefault("gateway.providers.metadata-secondary.interval_cap", 3)
	v.SetDefault("gateway.providers.metadata-secondary.concurrency", 1)
	v.SetDefault("gateway.providers.metadata-secondary.timeout", "30s")

	v.SetDefault("scanner.history_limit", 50)
	v.SetDefault("import.keep_source", false)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
