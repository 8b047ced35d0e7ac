package rules

import (
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/expr"
	"github.com/solatis/protocheck/internal/violations"
)

// Engine validates messages against the rules declared on their
// descriptors. Plans are compiled on first use and shared; an Engine is
// safe for concurrent use.
type Engine struct {
	plans    *planner
	bridge   *expr.Bridge
	now      func() time.Time
	failFast bool
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	logger   *slog.Logger
	now      func() time.Time
	failFast bool
	exprs    expr.Engine
}

// WithLogger sets the logger for compilation and expression failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) { c.logger = logger }
}

// WithNow sets the clock bound to `now` and used by time-relative rules.
func WithNow(now func() time.Time) Option {
	return func(c *engineConfig) { c.now = now }
}

// WithFailFast stops validation at the first violation.
func WithFailFast(failFast bool) Option {
	return func(c *engineConfig) { c.failFast = failFast }
}

// WithExpressionEngine replaces the process-wide CEL engine.
func WithExpressionEngine(e expr.Engine) Option {
	return func(c *engineConfig) { c.exprs = e }
}

// NewEngine creates an engine. Without WithExpressionEngine the shared CEL
// engine is used.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := engineConfig{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.exprs == nil {
		cel, err := expr.Default()
		if err != nil {
			return nil, fmt.Errorf("expression engine: %w", err)
		}
		cfg.exprs = cel
	}
	bridge := expr.NewBridge(cfg.exprs, cfg.logger)
	return &Engine{
		plans:    newPlanner(bridge, cfg.logger),
		bridge:   bridge,
		now:      cfg.now,
		failFast: cfg.failFast,
	}, nil
}

// Compile builds the plan of desc and every message it reaches. It returns
// the schema errors of all of them, aggregated.
func (e *Engine) Compile(desc protoreflect.MessageDescriptor) error {
	return e.plans.load(desc).err
}

// Validate checks msg. It returns nil, a *violations.Error, or the schema
// errors that prevent msg's type from being validated.
func (e *Engine) Validate(msg protoreflect.Message) error {
	plan := e.plans.load(msg.Descriptor())
	if plan.err != nil {
		return plan.err
	}
	r := newRun(e.now(), e.bridge, e.failFast)
	r.message(plan, msg, nil)
	if len(r.out) == 0 {
		return nil
	}
	return &violations.Error{Violations: r.out}
}
