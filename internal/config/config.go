// Package config loads server and CLI settings through viper.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BINSCOPE_LISTEN.
const EnvPrefix = "BINSCOPE"

// DefaultListen is the address the server binds when none is configured.
const DefaultListen = "0.0.0.0:3030"

// Config holds binscope settings.
type Config struct {
	Listen        string    `mapstructure:"listen"`
	Workers       int       `mapstructure:"workers"`
	FixpointLimit int       `mapstructure:"fixpoint_limit"`
	Archive       string    `mapstructure:"archive"`
	Restore       bool      `mapstructure:"restore"`
	Server        string    `mapstructure:"server"`
	Log           LogConfig `mapstructure:"log"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("fixpoint_limit", 64)
	v.SetDefault("archive", "")
	v.SetDefault("restore", false)
	v.SetDefault("server", "http://127.0.0.1:3030")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults and environment overrides
// wired. If file is non-empty it is the only config file considered;
// otherwise binscope.yaml is searched for in the given dirs.
func New(file string, dirs ...string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		for _, d := range dirs {
			v.AddConfigPath(d)
		}
		v.SetConfigType("yaml")
		v.SetConfigName("binscope")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the config file, if any. A missing file in the search path is
// not an error; a missing explicit file is.
func Read(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("config: listen address is empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Workers)
	}
	if c.FixpointLimit < 1 {
		return fmt.Errorf("config: fixpoint_limit must be positive, got %d", c.FixpointLimit)
	}
	if c.Restore && c.Archive == "" {
		return errors.New("config: restore requires an archive path")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}
