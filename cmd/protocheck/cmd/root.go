package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/protocheck"
	"github.com/solatis/protocheck/internal/core/config"
	"github.com/solatis/protocheck/internal/core/logging"
	"github.com/solatis/protocheck/internal/core/schema"
)

// ErrFindings is returned when a command ran to completion but found
// violations or schema errors. Details have already been printed.
var ErrFindings = errors.New("findings reported")

var (
	configFile string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "protocheck",
	Short:         "Validate protobuf messages against buf.validate rules",
	Long:          `protocheck checks protobuf messages against the buf.validate rules declared in their schema, and lints those rules.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

func Execute() error {
	return rootCmd.Execute()
}

// env is what every subcommand needs after startup.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *schema.Registry
}

// setup loads configuration, installs the logger and reads the descriptor set.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if cfg.Validator.DescriptorSet == "" {
		return nil, fmt.Errorf("--descriptor-set required")
	}
	reg, err := schema.Load(cfg.Validator.DescriptorSet)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded descriptor set",
		"path", cfg.Validator.DescriptorSet,
		"messages", len(reg.Messages()))
	return &env{cfg: cfg, logger: logger, registry: reg}, nil
}

// validator builds a validator with the configured preloads compiled.
func (e *env) validator() (*protocheck.Validator, error) {
	opts := []protocheck.Option{
		protocheck.WithLogger(e.logger),
		protocheck.WithFailFast(e.cfg.Validator.FailFast),
	}
	for _, name := range e.cfg.Validator.Preload {
		md, err := e.registry.Message(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, protocheck.WithMessages(md))
	}
	return protocheck.New(opts...)
}
