// Package config loads the CLI configuration from an optional file and
// CRITERIA_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/criteria/internal/dialect"
	"github.com/roach88/criteria/internal/pager"
)

// EnvPrefix prefixes every environment variable, e.g. CRITERIA_RETRY_MAX_ATTEMPTS.
const EnvPrefix = "CRITERIA"

// Config is the runtime configuration.
type Config struct {
	// Dialect names the database vendor, see dialect.Names.
	Dialect string `mapstructure:"dialect"`

	// DSN is the driver data source name. For SQLite it is a file path.
	DSN string `mapstructure:"dsn"`

	// Registry is a YAML entity descriptor file. Empty means the demo
	// registry.
	Registry string `mapstructure:"registry"`

	Log   LogConfig           `mapstructure:"log"`
	Retry pager.RetrySettings `mapstructure:"retry"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Dialect: dialect.NameSQLite,
		DSN:     "criteria.db",
		Log:     LogConfig{Level: "info", Format: "text"},
		Retry:   pager.DefaultRetrySettings(),
	}
}

// Load reads path, when not empty, and then the environment. Environment
// variables win over the file, which wins over Default.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so that AutomaticEnv applies to it
// during Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("dialect", d.Dialect)
	v.SetDefault("dsn", d.DSN)
	v.SetDefault("registry", d.Registry)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.min_wait", d.Retry.MinWait)
	v.SetDefault("retry.max_wait", d.Retry.MaxWait)
	v.SetDefault("retry.throw_on_exhaustion", d.Retry.ThrowOnExhaustion)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := dialect.ByName(c.Dialect); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q: must be text or json", c.Log.Format))
	}
	if err := c.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("retry: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}
