// internal/expr/convert.go
package expr

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/reflect/protoreflect"
)

/*
 * Conversion of protobuf values into the CEL value model.
 *
 * Scalars map onto CEL primitives (enums become int). Lists and maps are
 * converted element by element. Messages become string-keyed maps so that
 * expressions work on any descriptor, including dynamic ones that no type
 * registry knows about:
 *   - a field is present in the map iff the message reports it present,
 *     or it has no presence tracking; has(this.f) follows proto presence
 *   - Timestamp and Duration become CEL timestamp/duration values
 *   - wrapper types unwrap to their scalar
 *
 * Failures surface as ErrConversion and are reported by the bridge as an
 * internal error on the offending field.
 */

// ErrConversion indicates a value could not be represented in CEL.
var ErrConversion = errors.New("value conversion failed")

var adapter = types.DefaultTypeAdapter

// ToValue converts t into a CEL value.
func ToValue(t Target) (ref.Val, error) {
	switch {
	case t.Field == nil:
		if !t.Value.IsValid() {
			return nil, fmt.Errorf("%w: no value", ErrConversion)
		}
		return messageValue(t.Value.Message())
	case t.Field.IsMap() && !t.Element:
		return mapValue(t.Field, t.Value.Map())
	case t.Field.IsList() && !t.Element:
		return listValue(t.Field, t.Value.List())
	default:
		return scalarValue(t.Field, t.Value)
	}
}

func listValue(fd protoreflect.FieldDescriptor, list protoreflect.List) (ref.Val, error) {
	elems := make([]ref.Val, list.Len())
	for i := range elems {
		v, err := scalarValue(fd, list.Get(i))
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return types.NewRefValList(adapter, elems), nil
}

func mapValue(fd protoreflect.FieldDescriptor, m protoreflect.Map) (ref.Val, error) {
	entries := make(map[ref.Val]ref.Val, m.Len())
	var err error
	m.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		var key, val ref.Val
		if key, err = scalarValue(fd.MapKey(), k.Value()); err != nil {
			return false
		}
		if val, err = scalarValue(fd.MapValue(), v); err != nil {
			return false
		}
		entries[key] = val
		return true
	})
	if err != nil {
		return nil, err
	}
	return types.NewRefValMap(adapter, entries), nil
}

func scalarValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) (ref.Val, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return types.Bool(v.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Int64Kind,
		protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
		return types.Int(v.Int()), nil
	case protoreflect.Uint32Kind, protoreflect.Uint64Kind,
		protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
		return types.Uint(v.Uint()), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return types.Double(v.Float()), nil
	case protoreflect.StringKind:
		return types.String(v.String()), nil
	case protoreflect.BytesKind:
		return types.Bytes(v.Bytes()), nil
	case protoreflect.EnumKind:
		return types.Int(v.Enum()), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return messageValue(v.Message())
	default:
		return nil, fmt.Errorf("%w: unsupported kind %v", ErrConversion, fd.Kind())
	}
}

func messageValue(msg protoreflect.Message) (ref.Val, error) {
	desc := msg.Descriptor()
	switch desc.FullName() {
	case "google.protobuf.Timestamp":
		seconds, nanos := secondsNanos(msg)
		return types.Timestamp{Time: time.Unix(seconds, nanos).UTC()}, nil
	case "google.protobuf.Duration":
		seconds, nanos := secondsNanos(msg)
		if seconds > math.MaxInt64/int64(time.Second) || seconds < math.MinInt64/int64(time.Second) {
			return nil, fmt.Errorf("%w: duration %ds out of range", ErrConversion, seconds)
		}
		return types.Duration{Duration: time.Duration(seconds)*time.Second + time.Duration(nanos)}, nil
	case "google.protobuf.BoolValue", "google.protobuf.StringValue", "google.protobuf.BytesValue",
		"google.protobuf.Int32Value", "google.protobuf.Int64Value",
		"google.protobuf.UInt32Value", "google.protobuf.UInt64Value",
		"google.protobuf.FloatValue", "google.protobuf.DoubleValue":
		fd := desc.Fields().ByNumber(1)
		return scalarValue(fd, msg.Get(fd))
	}

	fields := desc.Fields()
	entries := make(map[ref.Val]ref.Val, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if fd.HasPresence() && !msg.Has(fd) {
			continue
		}
		v, err := ToValue(Target{Value: msg.Get(fd), Field: fd})
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fd.Name(), err)
		}
		entries[types.String(fd.Name())] = v
	}
	return types.NewRefValMap(adapter, entries), nil
}

func secondsNanos(msg protoreflect.Message) (int64, int64) {
	fields := msg.Descriptor().Fields()
	return msg.Get(fields.ByNumber(1)).Int(), msg.Get(fields.ByNumber(2)).Int()
}
