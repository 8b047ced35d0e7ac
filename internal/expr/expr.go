// Package expr bridges custom rule expressions to an expression engine.
//
// The engine is an injected capability: it compiles expression text into a
// Program and evaluates a Program against a Target bound as `this` and the
// evaluation time bound as `now`. The default engine is CEL; compiled
// programs are cached per expression text for the lifetime of the engine.
package expr

import (
	"errors"
	"sync"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// ErrNotBoolean indicates an expression produced a non-boolean result.
var ErrNotBoolean = errors.New("expression did not evaluate to a boolean")

// Program is a compiled expression.
type Program interface {
	Source() string
}

// Target is the value bound to `this`.
type Target struct {
	Value protoreflect.Value
	// Field describes Value. Nil when Value holds a whole message.
	Field protoreflect.FieldDescriptor
	// Element marks Value as one item of the list described by Field.
	Element bool
}

// MessageTarget binds a whole message.
func MessageTarget(msg protoreflect.Message) Target {
	return Target{Value: protoreflect.ValueOfMessage(msg)}
}

// Bindings are the variables visible to an expression.
type Bindings struct {
	This Target
	Now  time.Time
}

// Engine compiles and evaluates expressions. Implementations must be safe
// for concurrent use.
type Engine interface {
	Compile(expression string) (Program, error)
	Eval(p Program, b Bindings) (any, error)
}

var defaultEngine = sync.OnceValues(func() (*CEL, error) {
	return NewCEL()
})

// Default returns the process-wide CEL engine.
func Default() (*CEL, error) {
	return defaultEngine()
}
