package testschema

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// MustBuild builds f and the named message descriptor, panicking on error.
func MustBuild(f *File, message string) protoreflect.MessageDescriptor {
	fd, err := f.Build()
	if err != nil {
		panic(err)
	}
	md := fd.Messages().ByName(protoreflect.Name(message))
	if md == nil {
		panic(fmt.Sprintf("message %s not declared", message))
	}
	return md
}

// New returns an empty dynamic instance of md.
func New(md protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(md)
}

func field(msg protoreflect.Message, name string) protoreflect.FieldDescriptor {
	fd := msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic(fmt.Sprintf("%s has no field %s", msg.Descriptor().FullName(), name))
	}
	return fd
}

// Set stores a Go scalar in the named singular field.
func Set(msg protoreflect.Message, name string, v any) {
	fd := field(msg, name)
	msg.Set(fd, ValueOf(v))
}

// Mutable returns the named message field, creating it if unset.
func Mutable(msg protoreflect.Message, name string) protoreflect.Message {
	return msg.Mutable(field(msg, name)).Message()
}

// Append adds Go scalars to the named repeated field.
func Append(msg protoreflect.Message, name string, values ...any) {
	list := msg.Mutable(field(msg, name)).List()
	for _, v := range values {
		list.Append(ValueOf(v))
	}
}

// AppendMessage adds an empty message to the named repeated field and returns it.
func AppendMessage(msg protoreflect.Message, name string) protoreflect.Message {
	return msg.Mutable(field(msg, name)).List().AppendMutable().Message()
}

// Put stores an entry in the named map field.
func Put(msg protoreflect.Message, name string, key, value any) {
	m := msg.Mutable(field(msg, name)).Map()
	m.Set(ValueOf(key).MapKey(), ValueOf(value))
}

// PutMessage stores an empty message under key in the named map field and returns it.
func PutMessage(msg protoreflect.Message, name string, key any) protoreflect.Message {
	return msg.Mutable(field(msg, name)).Map().Mutable(ValueOf(key).MapKey()).Message()
}

// SetTime stores t in a google.protobuf.Timestamp field.
func SetTime(msg protoreflect.Message, name string, t time.Time) {
	SetMoment(Mutable(msg, name), t.Unix(), int32(t.Nanosecond()))
}

// SetDuration stores d in a google.protobuf.Duration field.
func SetDuration(msg protoreflect.Message, name string, d time.Duration) {
	SetMoment(Mutable(msg, name), int64(d/time.Second), int32(d%time.Second))
}

// SetMoment writes the seconds and nanos fields of a Timestamp or Duration.
func SetMoment(msg protoreflect.Message, seconds int64, nanos int32) {
	fields := msg.Descriptor().Fields()
	msg.Set(fields.ByNumber(1), protoreflect.ValueOfInt64(seconds))
	msg.Set(fields.ByNumber(2), protoreflect.ValueOfInt32(nanos))
}

// ValueOf converts a Go scalar. Enum values are passed as protoreflect.EnumNumber.
func ValueOf(v any) protoreflect.Value {
	switch v := v.(type) {
	case protoreflect.EnumNumber:
		return protoreflect.ValueOfEnum(v)
	case protoreflect.Message:
		return protoreflect.ValueOfMessage(v)
	default:
		return protoreflect.ValueOf(v)
	}
}
