package protocheck

import (
	"log/slog"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/expr"
	"github.com/solatis/protocheck/internal/rules"
)

// Option configures a Validator.
type Option func(*options)

type options struct {
	engine   []rules.Option
	messages []protoreflect.MessageDescriptor
}

// WithLogger sets the logger used for compilation and expression failures.
// The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.engine = append(o.engine, rules.WithLogger(logger)) }
}

// WithNow sets the clock that time-relative rules and the `now` expression
// variable read.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.engine = append(o.engine, rules.WithNow(now)) }
}

// WithFailFast stops validation at the first violation.
func WithFailFast(failFast bool) Option {
	return func(o *options) { o.engine = append(o.engine, rules.WithFailFast(failFast)) }
}

// WithMessages compiles the given message types eagerly.
func WithMessages(descs ...protoreflect.MessageDescriptor) Option {
	return func(o *options) { o.messages = append(o.messages, descs...) }
}

// WithExpressionEngine replaces the CEL engine used for custom rules.
func WithExpressionEngine(e ExpressionEngine) Option {
	return func(o *options) { o.engine = append(o.engine, rules.WithExpressionEngine(e)) }
}

// Expression engine types, for callers plugging in their own engine.
type (
	ExpressionEngine = expr.Engine
	Program          = expr.Program
	Bindings         = expr.Bindings
	Target           = expr.Target
)
