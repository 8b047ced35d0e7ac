// Package logging builds the process logger from the log configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/solatis/protocheck/internal/core/config"
)

// New returns a logger writing to w. The text format is coloured console
// output; json emits one object per line.
func New(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	switch cfg.Format {
	case config.FormatText:
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})), nil
	case config.FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
