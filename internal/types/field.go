package types

import (
	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// SubscriptKind discriminates Subscript.
type SubscriptKind uint8

const (
	SubscriptNone SubscriptKind = iota
	SubscriptIndex
	SubscriptBoolKey
	SubscriptIntKey
	SubscriptUintKey
	SubscriptStringKey
)

// Subscript addresses one element of a repeated field or one entry of a map.
type Subscript struct {
	Kind   SubscriptKind
	Index  uint64
	Bool   bool
	Int    int64
	Uint   uint64
	String string
}

// IndexSubscript addresses the i-th item of a repeated field.
func IndexSubscript(i int) Subscript {
	return Subscript{Kind: SubscriptIndex, Index: uint64(i)}
}

// KeySubscript addresses the entry stored under key in a map whose keys are of kind k.
func KeySubscript(key protoreflect.MapKey, k protoreflect.Kind) Subscript {
	switch k {
	case protoreflect.BoolKind:
		return Subscript{Kind: SubscriptBoolKey, Bool: key.Bool()}
	case protoreflect.Int32Kind, protoreflect.Int64Kind,
		protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
		return Subscript{Kind: SubscriptIntKey, Int: key.Int()}
	case protoreflect.Uint32Kind, protoreflect.Uint64Kind,
		protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
		return Subscript{Kind: SubscriptUintKey, Uint: key.Uint()}
	default:
		return Subscript{Kind: SubscriptStringKey, String: key.String()}
	}
}

func (s Subscript) apply(el *validate.FieldPathElement) {
	switch s.Kind {
	case SubscriptIndex:
		el.Subscript = &validate.FieldPathElement_Index{Index: s.Index}
	case SubscriptBoolKey:
		el.Subscript = &validate.FieldPathElement_BoolKey{BoolKey: s.Bool}
	case SubscriptIntKey:
		el.Subscript = &validate.FieldPathElement_IntKey{IntKey: s.Int}
	case SubscriptUintKey:
		el.Subscript = &validate.FieldPathElement_UintKey{UintKey: s.Uint}
	case SubscriptStringKey:
		el.Subscript = &validate.FieldPathElement_StringKey{StringKey: s.String}
	}
}

// FieldContext describes which field is being checked and under which
// nesting path. A context is never modified once built; descending into an
// item, entry or nested message produces a new context.
type FieldContext struct {
	Data      *FieldData
	Kind      FieldKind
	Parent    []*validate.FieldPathElement // root down to, not including, this field
	Subscript Subscript
}

// Element builds a fresh path element for the current field.
func (fc FieldContext) Element() *validate.FieldPathElement {
	el := &validate.FieldPathElement{
		FieldNumber: proto.Int32(fc.Data.Number),
		FieldName:   proto.String(fc.Data.Name),
		FieldType:   fc.Data.Type.Enum(),
	}
	if fc.Data.Map {
		el.FieldType = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
		el.KeyType = fc.Data.KeyType.Enum()
		el.ValueType = fc.Data.ValueType.Enum()
	}
	fc.Subscript.apply(el)
	return el
}

// Path returns parent elements followed by the current element. The
// returned slice and its elements are owned by the caller.
func (fc FieldContext) Path() []*validate.FieldPathElement {
	return append(ClonePath(fc.Parent), fc.Element())
}

// Descend returns the parent path for fields of a message nested under the
// current value.
func (fc FieldContext) Descend() []*validate.FieldPathElement {
	out := make([]*validate.FieldPathElement, len(fc.Parent), len(fc.Parent)+1)
	copy(out, fc.Parent)
	return append(out, fc.Element())
}

// Item returns the context of the i-th element of a repeated field.
func (fc FieldContext) Item(i int) FieldContext {
	fc.Kind = KindRepeatedItem
	fc.Subscript = IndexSubscript(i)
	return fc
}

// Entry returns the key and value contexts of one map entry.
func (fc FieldContext) Entry(key protoreflect.MapKey, keyKind protoreflect.Kind) (FieldContext, FieldContext) {
	sub := KeySubscript(key, keyKind)
	k, v := fc, fc
	k.Kind, k.Subscript = KindMapKey, sub
	v.Kind, v.Subscript = KindMapValue, sub
	return k, v
}

// ClonePath deep-copies a path so results never share elements.
func ClonePath(path []*validate.FieldPathElement) []*validate.FieldPathElement {
	if len(path) == 0 {
		return nil
	}
	out := make([]*validate.FieldPathElement, len(path), len(path)+1)
	for i, el := range path {
		out[i] = CloneElement(el)
	}
	return out
}

// CloneElement copies one path element.
func CloneElement(el *validate.FieldPathElement) *validate.FieldPathElement {
	return proto.Clone(el).(*validate.FieldPathElement)
}
