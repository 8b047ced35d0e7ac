package violations

import (
	"sync"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/solatis/protocheck/internal/types"
)

// Rule-path keys that are not "<category>.<rule>".
const (
	KeyRequired      = "required"
	KeyCel           = "cel"
	KeyRepeatedItems = "repeated.items"
	KeyMapKeys       = "map.keys"
	KeyMapValues     = "map.values"
	KeyOneofRequired = "oneof.required"
)

const fieldRulesTypeOneof = "type"

var (
	fieldRulesDesc = (*validate.FieldRules)(nil).ProtoReflect().Descriptor()
	oneofRulesDesc = (*validate.OneofRules)(nil).ProtoReflect().Descriptor()

	// rulePaths maps a rule key to the FieldRules path declaring it, e.g.
	// "string.min_len" -> [string(14), min_len(2)]. Built once from the
	// descriptors so field numbers always match the wire schema.
	rulePaths = sync.OnceValue(buildRulePaths)
)

func buildRulePaths() map[string][]*validate.FieldPathElement {
	out := make(map[string][]*validate.FieldPathElement)
	fields := fieldRulesDesc.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		el := elementOf(fd)
		od := fd.ContainingOneof()
		if od == nil || od.Name() != fieldRulesTypeOneof || fd.Message() == nil {
			out[string(fd.Name())] = []*validate.FieldPathElement{el}
			continue
		}
		sub := fd.Message().Fields()
		for j := 0; j < sub.Len(); j++ {
			rule := sub.Get(j)
			out[string(fd.Name())+"."+string(rule.Name())] = []*validate.FieldPathElement{el, elementOf(rule)}
		}
	}
	out[KeyOneofRequired] = []*validate.FieldPathElement{elementOf(oneofRulesDesc.Fields().ByName("required"))}
	return out
}

func elementOf(fd protoreflect.FieldDescriptor) *validate.FieldPathElement {
	return &validate.FieldPathElement{
		FieldNumber: proto.Int32(int32(fd.Number())),
		FieldName:   proto.String(string(fd.Name())),
		FieldType:   descriptorpb.FieldDescriptorProto_Type(fd.Kind()).Enum(),
	}
}

// HasRule reports whether key names a declared rule.
func HasRule(key string) bool {
	_, ok := rulePaths()[key]
	return ok
}

// RulePath returns the rule path for key as seen from a field of the given
// kind. Repeated items and map keys/values are prefixed with the container
// rule that declares them. The result is owned by the caller.
func RulePath(kind types.FieldKind, key string) []*validate.FieldPathElement {
	table := rulePaths()
	var prefix []*validate.FieldPathElement
	switch kind {
	case types.KindRepeatedItem:
		prefix = table[KeyRepeatedItems]
	case types.KindMapKey:
		prefix = table[KeyMapKeys]
	case types.KindMapValue:
		prefix = table[KeyMapValues]
	}
	rule := table[key]
	out := make([]*validate.FieldPathElement, 0, len(prefix)+len(rule))
	for _, el := range prefix {
		out = append(out, types.CloneElement(el))
	}
	for _, el := range rule {
		out = append(out, types.CloneElement(el))
	}
	return out
}
