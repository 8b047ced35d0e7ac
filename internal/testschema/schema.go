// Package testschema builds real message descriptors carrying validation
// rules, without generated code, and fills dynamic instances of them. It
// exists for tests.
package testschema

import (
	"fmt"
	"strings"
	"unicode"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	// Registers the well-known files the built schemas import.
	_ "google.golang.org/protobuf/types/known/anypb"
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

// Scalar type shorthands.
const (
	Bool     = descriptorpb.FieldDescriptorProto_TYPE_BOOL
	String   = descriptorpb.FieldDescriptorProto_TYPE_STRING
	Bytes    = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	Int32    = descriptorpb.FieldDescriptorProto_TYPE_INT32
	Int64    = descriptorpb.FieldDescriptorProto_TYPE_INT64
	Uint32   = descriptorpb.FieldDescriptorProto_TYPE_UINT32
	Uint64   = descriptorpb.FieldDescriptorProto_TYPE_UINT64
	Sint32   = descriptorpb.FieldDescriptorProto_TYPE_SINT32
	Sint64   = descriptorpb.FieldDescriptorProto_TYPE_SINT64
	Fixed32  = descriptorpb.FieldDescriptorProto_TYPE_FIXED32
	Fixed64  = descriptorpb.FieldDescriptorProto_TYPE_FIXED64
	Sfixed32 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED32
	Sfixed64 = descriptorpb.FieldDescriptorProto_TYPE_SFIXED64
	Float    = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	Double   = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	Message  = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	Enum     = descriptorpb.FieldDescriptorProto_TYPE_ENUM
)

// Well-known message type names.
const (
	Timestamp   = "google.protobuf.Timestamp"
	Duration    = "google.protobuf.Duration"
	Any         = "google.protobuf.Any"
	StringValue = "google.protobuf.StringValue"
	Int32Value  = "google.protobuf.Int32Value"
)

var imports = []string{
	"google/protobuf/any.proto",
	"google/protobuf/duration.proto",
	"google/protobuf/timestamp.proto",
	"google/protobuf/wrappers.proto",
}

// Field declares one field. TypeName names the message or enum for
// Message/Enum fields; a name without dots is resolved in the file package.
type Field struct {
	Name     string
	Number   int32
	Type     descriptorpb.FieldDescriptorProto_Type
	TypeName string
	Repeated bool
	Optional bool // proto3 optional
	Rules    *validate.FieldRules
}

// File accumulates messages and enums of one proto3 file.
type File struct {
	pkg      string
	messages []*MessageBuilder
	enums    []*descriptorpb.EnumDescriptorProto
}

// NewFile starts a file in package pkg.
func NewFile(pkg string) *File {
	return &File{pkg: pkg}
}

// Enum declares an enum whose values are numbered from zero in order.
func (f *File) Enum(name string, values ...string) *File {
	ed := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		ed.Value = append(ed.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	f.enums = append(f.enums, ed)
	return f
}

// Message starts a message declaration.
func (f *File) Message(name string) *MessageBuilder {
	m := &MessageBuilder{file: f, name: name}
	f.messages = append(f.messages, m)
	return m
}

type oneofDecl struct {
	name  string
	rules *validate.OneofRules
}

type fieldDecl struct {
	Field
	oneof   string
	isMap   bool
	mapKey  descriptorpb.FieldDescriptorProto_Type
	mapVal  descriptorpb.FieldDescriptorProto_Type
	mapName string
}

// MessageBuilder accumulates the fields of one message.
type MessageBuilder struct {
	file   *File
	name   string
	fields []fieldDecl
	oneofs []oneofDecl
	rules  *validate.MessageRules
}

// Add declares fields.
func (m *MessageBuilder) Add(fields ...Field) *MessageBuilder {
	for _, f := range fields {
		m.fields = append(m.fields, fieldDecl{Field: f})
	}
	return m
}

// Map declares a map field. valueTypeName is needed for message or enum values.
func (m *MessageBuilder) Map(name string, number int32, key, value descriptorpb.FieldDescriptorProto_Type, valueTypeName string, rules *validate.FieldRules) *MessageBuilder {
	m.fields = append(m.fields, fieldDecl{
		Field:   Field{Name: name, Number: number, TypeName: valueTypeName, Rules: rules},
		isMap:   true,
		mapKey:  key,
		mapVal:  value,
		mapName: mapEntryName(name),
	})
	return m
}

// Oneof declares a oneof containing fields.
func (m *MessageBuilder) Oneof(name string, rules *validate.OneofRules, fields ...Field) *MessageBuilder {
	m.oneofs = append(m.oneofs, oneofDecl{name: name, rules: rules})
	for _, f := range fields {
		m.fields = append(m.fields, fieldDecl{Field: f, oneof: name})
	}
	return m
}

// Rules attaches message-level rules.
func (m *MessageBuilder) Rules(rules *validate.MessageRules) *MessageBuilder {
	m.rules = rules
	return m
}

// Message continues with another message of the same file.
func (m *MessageBuilder) Message(name string) *MessageBuilder {
	return m.file.Message(name)
}

// File returns the file the message belongs to.
func (m *MessageBuilder) File() *File {
	return m.file
}

// Build finishes the file.
func (m *MessageBuilder) Build() (protoreflect.FileDescriptor, error) {
	return m.file.Build()
}

// Build converts the declarations into a file descriptor resolved against
// the global registry.
func (f *File) Build() (protoreflect.FileDescriptor, error) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(strings.ReplaceAll(f.pkg, ".", "/") + "/test.proto"),
		Package:    proto.String(f.pkg),
		Syntax:     proto.String("proto3"),
		Dependency: imports,
		EnumType:   f.enums,
	}
	for _, m := range f.messages {
		fdp.MessageType = append(fdp.MessageType, m.descriptor())
	}
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", fdp.GetName(), err)
	}
	return fd, nil
}

func (m *MessageBuilder) descriptor() *descriptorpb.DescriptorProto {
	dp := &descriptorpb.DescriptorProto{Name: proto.String(m.name)}
	if m.rules != nil {
		opts := &descriptorpb.MessageOptions{}
		proto.SetExtension(opts, validate.E_Message, m.rules)
		dp.Options = opts
	}

	oneofIndex := make(map[string]int32)
	for _, o := range m.oneofs {
		od := &descriptorpb.OneofDescriptorProto{Name: proto.String(o.name)}
		if o.rules != nil {
			opts := &descriptorpb.OneofOptions{}
			proto.SetExtension(opts, validate.E_Oneof, o.rules)
			od.Options = opts
		}
		oneofIndex[o.name] = int32(len(dp.OneofDecl))
		dp.OneofDecl = append(dp.OneofDecl, od)
	}

	var synthetic []*descriptorpb.FieldDescriptorProto
	for _, f := range m.fields {
		fp := &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(f.Name),
			Number:   proto.Int32(f.Number),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     f.Type.Enum(),
			JsonName: proto.String(jsonName(f.Name)),
		}
		if f.Rules != nil {
			opts := &descriptorpb.FieldOptions{}
			proto.SetExtension(opts, validate.E_Field, f.Rules)
			fp.Options = opts
		}
		switch {
		case f.isMap:
			fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
			fp.Type = Message.Enum()
			fp.TypeName = proto.String("." + m.file.pkg + "." + m.name + "." + f.mapName)
			dp.NestedType = append(dp.NestedType, m.entry(f))
		case f.Repeated:
			fp.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
		}
		if !f.isMap && f.TypeName != "" {
			fp.TypeName = proto.String(m.file.qualify(f.TypeName))
		}
		if f.oneof != "" {
			fp.OneofIndex = proto.Int32(oneofIndex[f.oneof])
		}
		if f.Optional {
			fp.Proto3Optional = proto.Bool(true)
			synthetic = append(synthetic, fp)
		}
		dp.Field = append(dp.Field, fp)
	}
	for _, fp := range synthetic {
		fp.OneofIndex = proto.Int32(int32(len(dp.OneofDecl)))
		dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + fp.GetName())})
	}
	return dp
}

func (m *MessageBuilder) entry(f fieldDecl) *descriptorpb.DescriptorProto {
	value := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String("value"),
		Number:   proto.Int32(2),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     f.mapVal.Enum(),
		JsonName: proto.String("value"),
	}
	if f.TypeName != "" {
		value.TypeName = proto.String(m.file.qualify(f.TypeName))
	}
	return &descriptorpb.DescriptorProto{
		Name: proto.String(f.mapName),
		Field: []*descriptorpb.FieldDescriptorProto{
			{
				Name:     proto.String("key"),
				Number:   proto.Int32(1),
				Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
				Type:     f.mapKey.Enum(),
				JsonName: proto.String("key"),
			},
			value,
		},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
}

func (f *File) qualify(name string) string {
	if strings.Contains(name, ".") {
		return "." + strings.TrimPrefix(name, ".")
	}
	return "." + f.pkg + "." + name
}

func mapEntryName(field string) string {
	var b strings.Builder
	upper := true
	for _, r := range field {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	b.WriteString("Entry")
	return b.String()
}

func jsonName(field string) string {
	var b strings.Builder
	upper := false
	for _, r := range field {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
