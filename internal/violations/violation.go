package violations

import (
	"fmt"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"

	"github.com/solatis/protocheck/internal/types"
)

// Fixed id and message for failures of the expression engine itself.
const (
	InternalErrorID      = "internal_server_error"
	InternalErrorMessage = "internal server error"
)

// New builds a violation of the rule declared under key, reported on the
// field described by fc. The rule id is the key.
func New(fc types.FieldContext, key, message string) *validate.Violation {
	return NewWithID(fc, key, key, message)
}

// NewWithID is New for rules whose id differs from their declaring path,
// such as the HTTP header variants of well_known_regex.
func NewWithID(fc types.FieldContext, id, key, message string) *validate.Violation {
	v := &validate.Violation{
		Field:   &validate.FieldPath{Elements: fc.Path()},
		Rule:    &validate.FieldPath{Elements: RulePath(fc.Kind, key)},
		RuleId:  proto.String(id),
		Message: proto.String(message),
	}
	if fc.Kind == types.KindMapKey {
		v.ForKey = proto.Bool(true)
	}
	return v
}

// Newf is New with a formatted message.
func Newf(fc types.FieldContext, key, format string, args ...any) *validate.Violation {
	return New(fc, key, fmt.Sprintf(format, args...))
}

// Required reports a missing value on a field declared required.
func Required(fc types.FieldContext) *validate.Violation {
	return New(fc, KeyRequired, fmt.Sprintf("%s is required", fc.Data.Name))
}

// Custom reports a failed field-level expression under the cel rule path.
func Custom(fc types.FieldContext, id, message string) *validate.Violation {
	return NewWithID(fc, id, KeyCel, message)
}

// ForMessage reports a failed message-level expression. parent is the path
// of the message itself; a root message has no field path.
func ForMessage(parent []*validate.FieldPathElement, id, message string) *validate.Violation {
	v := &validate.Violation{
		Rule:    &validate.FieldPath{Elements: RulePath(types.KindSingle, KeyCel)},
		RuleId:  proto.String(id),
		Message: proto.String(message),
	}
	if len(parent) > 0 {
		v.Field = &validate.FieldPath{Elements: types.ClonePath(parent)}
	}
	return v
}

// OneofRequired reports a required oneof with no member set. The field path
// ends in an element naming the oneof.
func OneofRequired(parent []*validate.FieldPathElement, oneof string) *validate.Violation {
	path := append(types.ClonePath(parent), &validate.FieldPathElement{FieldName: proto.String(oneof)})
	return &validate.Violation{
		Field:   &validate.FieldPath{Elements: path},
		Rule:    &validate.FieldPath{Elements: RulePath(types.KindSingle, KeyOneofRequired)},
		RuleId:  proto.String(KeyOneofRequired),
		Message: proto.String(fmt.Sprintf("oneof %s is required", oneof)),
	}
}
