// Package config loads the eventsd configuration.
//
// Configuration comes from, lowest precedence first: built-in defaults, a
// TOML or YAML file chosen by extension, and EVENTSCRIPT_* environment
// variables.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/dshills/eventscript/internal/logging"
)

// Engine names accepted in Config.Engine.
const (
	EngineGopherLua = "gopher-lua"
	EngineGoLua     = "go-lua"
)

// KnownCatalogs are the catalogs eventsd can load.
var KnownCatalogs = []string{"talkactions", "globalevents"}

// Config is the server configuration.
type Config struct {
	DataDir  string   `toml:"data_dir" yaml:"data_dir" env:"DATA_DIR"`
	Catalogs []string `toml:"catalogs" yaml:"catalogs" env:"CATALOGS" envSeparator:","`
	Engine   string   `toml:"engine" yaml:"engine" env:"ENGINE"`

	Log     LogConfig     `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Watch   WatchConfig   `toml:"watch" yaml:"watch" envPrefix:"WATCH_"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `toml:"level" yaml:"level" env:"LEVEL"`
	Format     string `toml:"format" yaml:"format" env:"FORMAT"`
	File       string `toml:"file" yaml:"file" env:"FILE"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `toml:"compress" yaml:"compress" env:"COMPRESS"`
}

// WatchConfig configures reload on file change.
type WatchConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Debounce Duration `toml:"debounce" yaml:"debounce" env:"DEBOUNCE"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after every load.
	Textfile string `toml:"textfile" yaml:"textfile" env:"TEXTFILE"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the default configuration.
func Default() Config {
	lc := logging.DefaultConfig()
	return Config{
		DataDir:  "data",
		Catalogs: slices.Clone(KnownCatalogs),
		Engine:   EngineGopherLua,
		Log: LogConfig{
			Level:      lc.Level,
			Format:     lc.Format,
			MaxSizeMB:  lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAgeDays: lc.MaxAgeDays,
			Compress:   lc.Compress,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: Duration(250 * time.Millisecond),
		},
	}
}

// Logging converts the log section for the logging package.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalid)
	}
	if c.Engine != EngineGopherLua && c.Engine != EngineGoLua {
		return fmt.Errorf("%w: engine %q (must be %s or %s)", ErrInvalid, c.Engine, EngineGopherLua, EngineGoLua)
	}
	if len(c.Catalogs) == 0 {
		return fmt.Errorf("%w: no catalogs", ErrInvalid)
	}
	for _, name := range c.Catalogs {
		if !slices.Contains(KnownCatalogs, name) {
			return fmt.Errorf("%w: unknown catalog %q", ErrInvalid, name)
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log format %q (must be text or json)", ErrInvalid, c.Log.Format)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("%w: negative watch debounce", ErrInvalid)
	}
	return nil
}
