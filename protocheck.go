// Package protocheck validates protobuf messages against the buf.validate
// rules declared on their descriptors.
//
// Rules are read from field, oneof and message options at runtime; no code
// generation is involved, so dynamic messages validate like generated ones.
// Each message type is compiled once into a plan that is reused by every
// later call:
//
//	v, err := protocheck.New()
//	if err != nil {
//		return err
//	}
//	if err := v.Validate(msg); err != nil {
//		var verr *protocheck.ValidationError
//		if errors.As(err, &verr) {
//			// verr.Violations lists every broken rule
//		}
//		return err
//	}
package protocheck

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/rules"
	"github.com/solatis/protocheck/internal/types"
	"github.com/solatis/protocheck/internal/violations"
)

// ValidationError carries the violations of one Validate call, in
// deterministic order.
type ValidationError = violations.Error

// SchemaError reports a rule declaration that cannot be compiled.
type SchemaError = types.SchemaError

// ErrNilMessage is returned when Validate is handed a nil message.
var ErrNilMessage = errors.New("nil message")

// Validator checks messages against their declared rules. It is safe for
// concurrent use.
type Validator struct {
	engine *rules.Engine
}

// New creates a validator. Messages passed with WithMessages are compiled
// before New returns, and their schema errors fail construction.
func New(opts ...Option) (*Validator, error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}
	engine, err := rules.NewEngine(cfg.engine...)
	if err != nil {
		return nil, err
	}
	v := &Validator{engine: engine}
	for _, desc := range cfg.messages {
		if err := v.Compile(desc); err != nil {
			return nil, fmt.Errorf("compiling %s: %w", desc.FullName(), err)
		}
	}
	return v, nil
}

// Validate checks msg. It returns nil when msg satisfies every rule, a
// *ValidationError listing the broken ones, or the schema errors that
// prevent msg's type from being validated.
func (v *Validator) Validate(msg proto.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	m := msg.ProtoReflect()
	if !m.IsValid() {
		return ErrNilMessage
	}
	return v.engine.Validate(m)
}

// Compile builds the plan of desc and every message it reaches, returning
// their schema errors.
func (v *Validator) Compile(desc protoreflect.MessageDescriptor) error {
	return v.engine.Compile(desc)
}

var global = sync.OnceValues(func() (*Validator, error) {
	return New()
})

// Validate checks msg with a shared default validator.
func Validate(msg proto.Message) error {
	v, err := global()
	if err != nil {
		return err
	}
	return v.Validate(msg)
}
