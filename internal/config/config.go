// Package config loads the command line tool's settings file. Files ending
// in .toml are read as TOML, anything else as YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/asnkit"
	"github.com/rawbytedev/asnkit/internal/logging"
	"github.com/rawbytedev/asnkit/pkg/codec"
)

const (
	DefaultFormat = "ber"
	EnvConfig     = "ASNKIT_CONFIG"
)

type Config struct {
	// DefaultFormat is used when a command gets no --codec flag.
	DefaultFormat string `yaml:"default_format" toml:"default_format"`
	// CacheDir enables the schema cache when set.
	CacheDir string `yaml:"cache_dir" toml:"cache_dir"`
	MaxDepth int    `yaml:"max_depth" toml:"max_depth"`
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Default returns the settings used without a config file.
func Default() Config {
	return Config{DefaultFormat: DefaultFormat, MaxDepth: codec.DefaultMaxDepth}
}

// Load reads path, fills unset values from Default and validates the
// result. An empty path yields the defaults, or the file named by the
// ASNKIT_CONFIG variable when set.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		return Default(), nil
	}
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func load(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, out)
	} else {
		err = yaml.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	d := Default()
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = d.DefaultFormat
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = d.MaxDepth
	}
}

// Validate checks the format name, the depth and the log level.
func Validate(cfg Config) error {
	if !asnkit.Registered(cfg.DefaultFormat) {
		return fmt.Errorf("default_format %q is not one of %s", cfg.DefaultFormat, strings.Join(asnkit.Formats(), ", "))
	}
	if cfg.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be positive, got %d", cfg.MaxDepth)
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); cfg.LogLevel != "" && !ok {
		return fmt.Errorf("unknown log_level %q", cfg.LogLevel)
	}
	return nil
}
