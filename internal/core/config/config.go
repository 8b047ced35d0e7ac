// Package config provides configuration management for the protocheck CLI.
package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Supported log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the merged result of defaults, config file, environment and flags.
type Config struct {
	Validator ValidatorConfig
	Log       LogConfig
}

// ValidatorConfig controls how messages are validated.
type ValidatorConfig struct {
	FailFast      bool
	DescriptorSet string   // path to a serialized FileDescriptorSet
	Preload       []string // message full names compiled at startup
}

// LogConfig selects the log handler and threshold.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(c.Level))); err != nil {
		return 0, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Level)
	}
	return level, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("log.format must be %q or %q, got %q", FormatText, FormatJSON, c.Log.Format)
	}
	if len(c.Validator.Preload) > 0 && c.Validator.DescriptorSet == "" {
		return fmt.Errorf("validator.preload requires validator.descriptor_set")
	}
	return nil
}
