package types

import (
	"errors"
	"strings"
)

// Sentinel errors for schema compilation.
var (
	// ErrBoundsConflict indicates lt/lte and gt/gte describe an empty interval.
	ErrBoundsConflict = errors.New("bounds describe an empty interval")

	// ErrLengthConflict indicates len combined with min/max, or min greater than max.
	ErrLengthConflict = errors.New("conflicting length rules")

	// ErrMembershipOverlap indicates in and not_in share at least one value.
	ErrMembershipOverlap = errors.New("in and not_in overlap")

	// ErrUndefinedEnumValue indicates enum.in lists a number the enum does not declare.
	ErrUndefinedEnumValue = errors.New("enum.in lists an undefined value")

	// ErrUniqueOnMessage indicates repeated.unique on a message-typed item.
	ErrUniqueOnMessage = errors.New("repeated.unique requires scalar items")

	// ErrInvalidPattern indicates a regular expression failed to compile.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrRuleTypeMismatch indicates a rule category does not fit the field type.
	ErrRuleTypeMismatch = errors.New("rule category does not match field type")

	// ErrMalformedRules indicates buf.validate options whose bytes do not parse.
	ErrMalformedRules = errors.New("malformed validation options")

	// ErrUnknownMessage indicates a message name could not be resolved.
	ErrUnknownMessage = errors.New("unknown message type")
)

// SchemaError reports a rule declaration that cannot be compiled.
// It is raised while building a validation plan, never while validating
// an instance.
type SchemaError struct {
	Message string // full name of the owning message
	Field   string // field or oneof name; empty for message-level errors
	Err     error
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema error")
	if e.Message != "" {
		b.WriteString(" in ")
		b.WriteString(e.Message)
		if e.Field != "" {
			b.WriteByte('.')
			b.WriteString(e.Field)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
