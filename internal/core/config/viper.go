package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"fail-fast":      "validator.fail_fast",
	"descriptor-set": "validator.descriptor_set",
	"preload":        "validator.preload",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Load reads configuration using viper.
// Flags > environment > config file > defaults precedence. flags may be nil;
// only flags that were set on the command line override other sources.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("validator.fail_fast", def.Validator.FailFast)
	v.SetDefault("validator.descriptor_set", def.Validator.DescriptorSet)
	v.SetDefault("validator.preload", []string{})
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	// Bind environment variables with PROTOCHECK_ prefix
	v.SetEnvPrefix("PROTOCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	cfg := &Config{
		Validator: ValidatorConfig{
			FailFast:      v.GetBool("validator.fail_fast"),
			DescriptorSet: v.GetString("validator.descriptor_set"),
			Preload:       v.GetStringSlice("validator.preload"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
