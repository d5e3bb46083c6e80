package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. TIMSCOMPARE_LOG_LEVEL.
const EnvPrefix = "TIMSCOMPARE"

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// WatchConfig holds configuration for directory watching.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Config holds all runtime configuration for a timsCompare session.
// Values are populated from .timscompare.yaml, TIMSCOMPARE_* env vars, and CLI flags.
type Config struct {
	LogLevel          string       `mapstructure:"log_level"`
	LogDir            string       `mapstructure:"log_dir"`
	LogFile           bool         `mapstructure:"log_file"`
	IonSource         string       `mapstructure:"ion_source"`
	RelativeTolerance float64      `mapstructure:"relative_tolerance"`
	OnlyDifferences   bool         `mapstructure:"only_differences"`
	TelemetryPath     string       `mapstructure:"telemetry_path"`
	Workers           int          `mapstructure:"workers"`
	Verbose           bool         `mapstructure:"verbose"`
	Server            ServerConfig `mapstructure:"server"`
	Watch             WatchConfig  `mapstructure:"watch"`
}

// DefaultLogDir returns ~/.timsCompare, or a relative .timsCompare when the
// home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timsCompare"
	}
	return filepath.Join(home, ".timsCompare")
}

// Setup points viper at the config file (or the default .timscompare.yaml in
// the working or home directory) and enables environment overrides. A
// missing config file is not an error.
func Setup(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".timscompare")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}
	BindEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// BindEnv maps TIMSCOMPARE_* variables onto config keys; nested keys use
// underscores, so server.addr is TIMSCOMPARE_SERVER_ADDR.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_dir", DefaultLogDir())
	viper.SetDefault("log_file", true)
	viper.SetDefault("ion_source", "")
	viper.SetDefault("relative_tolerance", 1e-6)
	viper.SetDefault("only_differences", false)
	viper.SetDefault("telemetry_path", "")
	viper.SetDefault("workers", 4)
	viper.SetDefault("verbose", false)
	viper.SetDefault("server.addr", "127.0.0.1:8391")
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("watch.debounce", "250ms")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.RelativeTolerance < 0 {
		return fmt.Errorf("config: relative_tolerance must not be negative, got %g", c.RelativeTolerance)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("config: watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return nil
}
