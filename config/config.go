// Package config loads server settings and INI pipeline descriptions.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, so server.attachment_capacity
// is read from SHADE_SERVER_ATTACHMENT_CAPACITY.
const EnvPrefix = "SHADE"

// Config holds the settings of the shade command.
type Config struct {
	Backend  string   `mapstructure:"backend"`   // registered backend name, empty for the first that opens
	LogLevel string   `mapstructure:"log_level"` // debug, info, warn or error
	Verbose  bool     `mapstructure:"verbose"`   // forces debug logging
	Server   Server   `mapstructure:"server"`
	Executor Executor `mapstructure:"executor"`
	Cache    Cache    `mapstructure:"cache"`
}

// Server holds request server settings.
type Server struct {
	AttachmentCapacity int    `mapstructure:"attachment_capacity"` // 0 keeps every attachment
	MaxPayload         uint64 `mapstructure:"max_payload"`         // bytes per JSON body or attachment
	Depth16            bool   `mapstructure:"depth16"`             // 16-bit PNG and TIFF output
}

// Executor holds pipeline executor settings.
type Executor struct {
	MaxTileEdge uint32 `mapstructure:"max_tile_edge"`
	SPIRV       bool   `mapstructure:"spirv"`
}

// Cache holds decoded source cache settings.
type Cache struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"` // empty for the user cache directory
	MaxAge  time.Duration `mapstructure:"max_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("verbose", false)
	v.SetDefault("server.attachment_capacity", 64)
	v.SetDefault("server.max_payload", uint64(1<<30))
	v.SetDefault("server.depth16", false)
	v.SetDefault("executor.max_tile_edge", 2048)
	v.SetDefault("executor.spirv", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.max_age", 30*24*time.Hour)
}

// Default returns the built-in settings.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads settings from path, which may be YAML, TOML, JSON or INI by
// extension. An empty path uses the defaults. Environment variables
// override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Server.AttachmentCapacity < 0 {
		errs = append(errs, fmt.Errorf("config: server.attachment_capacity must not be negative, got %d",
			c.Server.AttachmentCapacity))
	}
	if c.Cache.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("config: cache.max_age must not be negative, got %s", c.Cache.MaxAge))
	}
	return errors.Join(errs...)
}

// Level returns the log level, debug when Verbose is set.
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}
