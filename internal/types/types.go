// Package types provides the data model shared by the rule compiler, the
// runtime engine and the violation builder.
//
// FieldData and RuleSet values are derived once per message descriptor and
// never mutated afterwards. FieldContext values are created per validation
// call and describe where in the message tree a check is running.
package types

import (
	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// FieldKind selects the rule-path prefix injected into violations.
type FieldKind int

const (
	KindSingle FieldKind = iota
	KindRepeated
	KindRepeatedItem
	KindMap
	KindMapKey
	KindMapValue
)

func (k FieldKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindRepeated:
		return "repeated"
	case KindRepeatedItem:
		return "repeated_item"
	case KindMap:
		return "map"
	case KindMapKey:
		return "map_key"
	case KindMapValue:
		return "map_value"
	default:
		return "unknown"
	}
}

// Ignore controls when the rules of a field are skipped.
type Ignore int

const (
	// IgnoreUnspecified always applies the rules.
	IgnoreUnspecified Ignore = iota
	// IgnoreIfZeroValue skips the rules when the value is unset or the type default.
	IgnoreIfZeroValue
	// IgnoreAlways never applies the rules.
	IgnoreAlways
)

// IgnoreFromProto maps the declared ignore option.
func IgnoreFromProto(i validate.Ignore) Ignore {
	switch i {
	case validate.Ignore_IGNORE_IF_ZERO_VALUE:
		return IgnoreIfZeroValue
	case validate.Ignore_IGNORE_ALWAYS:
		return IgnoreAlways
	default:
		return IgnoreUnspecified
	}
}

// FieldData is the immutable summary of one field used to build path elements.
type FieldData struct {
	Name      string
	Number    int32
	Type      descriptorpb.FieldDescriptorProto_Type
	KeyType   descriptorpb.FieldDescriptorProto_Type // map fields only
	ValueType descriptorpb.FieldDescriptorProto_Type // map fields only
	EnumName  protoreflect.FullName                  // enum fields and enum map values

	Repeated bool
	Map      bool
	Required bool
	Optional bool // explicit presence
	Ignore   Ignore
}

// NewFieldData summarises fd.
func NewFieldData(fd protoreflect.FieldDescriptor) *FieldData {
	data := &FieldData{
		Name:     string(fd.Name()),
		Number:   int32(fd.Number()),
		Type:     descriptorpb.FieldDescriptorProto_Type(fd.Kind()),
		Repeated: fd.IsList(),
		Map:      fd.IsMap(),
		Optional: fd.HasPresence(),
	}
	switch {
	case fd.IsMap():
		data.KeyType = descriptorpb.FieldDescriptorProto_Type(fd.MapKey().Kind())
		data.ValueType = descriptorpb.FieldDescriptorProto_Type(fd.MapValue().Kind())
		if ed := fd.MapValue().Enum(); ed != nil {
			data.EnumName = ed.FullName()
		}
	case fd.Enum() != nil:
		data.EnumName = fd.Enum().FullName()
	}
	return data
}
