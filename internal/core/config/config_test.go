package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protocheck.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("", nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Log.Level != "info" {
			t.Errorf("expected log level info, got %s", cfg.Log.Level)
		}
		if cfg.Log.Format != FormatText {
			t.Errorf("expected log format text, got %s", cfg.Log.Format)
		}
		if cfg.Validator.FailFast {
			t.Error("fail_fast should default to false")
		}
		if len(cfg.Validator.Preload) != 0 {
			t.Errorf("expected no preloaded messages, got %v", cfg.Validator.Preload)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `validator:
  fail_fast: true
  descriptor_set: "schema.binpb"
  preload:
    - acme.v1.User
    - acme.v1.Order
log:
  format: json
`)
		cfg, err := Load(path, nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !cfg.Validator.FailFast {
			t.Error("expected fail_fast from file")
		}
		if cfg.Validator.DescriptorSet != "schema.binpb" {
			t.Errorf("expected descriptor_set schema.binpb, got %s", cfg.Validator.DescriptorSet)
		}
		if len(cfg.Validator.Preload) != 2 || cfg.Validator.Preload[1] != "acme.v1.Order" {
			t.Errorf("unexpected preload %v", cfg.Validator.Preload)
		}
		if cfg.Log.Format != FormatJSON {
			t.Errorf("expected json format, got %s", cfg.Log.Format)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "log:\n  level: warn\n")
		t.Setenv("PROTOCHECK_LOG_LEVEL", "debug")

		cfg, err := Load(path, nil)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Log.Level != "debug" {
			t.Errorf("expected env level debug, got %s", cfg.Log.Level)
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("PROTOCHECK_LOG_LEVEL", "debug")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("log-level", "info", "")
		flags.String("log-format", "text", "")
		if err := flags.Parse([]string{"--log-level", "error"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load("", flags)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Log.Level != "error" {
			t.Errorf("expected flag level error, got %s", cfg.Log.Level)
		}
		if cfg.Log.Format != FormatText {
			t.Errorf("unset flag must not override, got %s", cfg.Log.Format)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "upper-case level", mutate: func(c *Config) { c.Log.Level = "WARN" }},
		{name: "unknown level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: true},
		{name: "unknown format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{
			name:    "preload without descriptor set",
			mutate:  func(c *Config) { c.Validator.Preload = []string{"acme.v1.User"} },
			wantErr: true,
		},
		{
			name: "preload with descriptor set",
			mutate: func(c *Config) {
				c.Validator.Preload = []string{"acme.v1.User"}
				c.Validator.DescriptorSet = "schema.binpb"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
