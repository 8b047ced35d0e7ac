package violations

import (
	"strings"
	"testing"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/solatis/protocheck/internal/types"
)

func peopleField() *types.FieldData {
	return &types.FieldData{
		Name:     "people",
		Number:   3,
		Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING,
		Repeated: true,
	}
}

func TestNew_RepeatedItem(t *testing.T) {
	parent := []*validate.FieldPathElement{{
		FieldName:   proto.String("team"),
		FieldNumber: proto.Int32(1),
		FieldType:   descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
	}}
	fc := types.FieldContext{Data: peopleField(), Kind: types.KindRepeated, Parent: parent}.Item(1)

	v := New(fc, "string.min_len", "too short")

	field := v.GetField().GetElements()
	if len(field) != 2 {
		t.Fatalf("len(field) = %d, want 2", len(field))
	}
	last := field[1]
	if last.GetFieldName() != "people" || last.GetFieldNumber() != 3 {
		t.Errorf("last element = %v, want people/3", last)
	}
	idx, ok := last.GetSubscript().(*validate.FieldPathElement_Index)
	if !ok || idx.Index != 1 {
		t.Errorf("subscript = %v, want Index(1)", last.GetSubscript())
	}
	if got := numbers(v.GetRule().GetElements()); !equalNumbers(got, []int32{18, 4, 14, 2}) {
		t.Errorf("rule path = %v, want [18 4 14 2]", got)
	}
	if v.ForKey != nil {
		t.Errorf("ForKey = %v, want unset", v.GetForKey())
	}
	if field[0] == parent[0] {
		t.Error("parent element shared with violation")
	}
}

func TestNew_MapKeySetsForKey(t *testing.T) {
	data := &types.FieldData{
		Name:      "labels",
		Number:    4,
		Type:      descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
		KeyType:   descriptorpb.FieldDescriptorProto_TYPE_STRING,
		ValueType: descriptorpb.FieldDescriptorProto_TYPE_STRING,
		Map:       true,
	}
	fc := types.FieldContext{Data: data, Kind: types.KindMap}
	key, value := fc.Entry(protoreflect.ValueOfString("env").MapKey(), protoreflect.StringKind)

	kv := New(key, "string.min_len", "short key")
	if !kv.GetForKey() {
		t.Error("key violation ForKey = false, want true")
	}
	el := kv.GetField().GetElements()[0]
	if el.GetKeyType() != descriptorpb.FieldDescriptorProto_TYPE_STRING {
		t.Errorf("key type = %v, want TYPE_STRING", el.GetKeyType())
	}
	sub, ok := el.GetSubscript().(*validate.FieldPathElement_StringKey)
	if !ok || sub.StringKey != "env" {
		t.Errorf("subscript = %v, want StringKey(env)", el.GetSubscript())
	}

	vv := New(value, "string.min_len", "short value")
	if vv.ForKey != nil {
		t.Error("value violation has ForKey set")
	}
	if got := numbers(vv.GetRule().GetElements()); !equalNumbers(got, []int32{19, 5, 14, 2}) {
		t.Errorf("rule path = %v, want [19 5 14 2]", got)
	}
}

func TestForMessage_RootHasNoField(t *testing.T) {
	v := ForMessage(nil, "person.valid", "invalid person")
	if v.Field != nil {
		t.Errorf("Field = %v, want nil", v.Field)
	}
	if got := numbers(v.GetRule().GetElements()); !equalNumbers(got, []int32{23}) {
		t.Errorf("rule path = %v, want [23]", got)
	}
}

func TestOneofRequired(t *testing.T) {
	v := OneofRequired(nil, "contact")
	if v.GetRuleId() != "oneof.required" {
		t.Errorf("rule id = %q, want oneof.required", v.GetRuleId())
	}
	field := v.GetField().GetElements()
	if len(field) != 1 || field[0].GetFieldName() != "contact" {
		t.Errorf("field path = %v, want [contact]", field)
	}
}

func TestError_Format(t *testing.T) {
	fc := types.FieldContext{Data: peopleField(), Kind: types.KindRepeated}.Item(2)
	err := &Error{Violations: []*validate.Violation{
		New(fc, "string.min_len", "value is too short"),
		ForMessage(nil, "msg.rule", "message rule failed"),
	}}

	got := err.Error()
	for _, want := range []string{
		"validation error:",
		"people[2]: value is too short [string.min_len]",
		" - message rule failed [msg.rule]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}

	if n := len(err.ToProto().GetViolations()); n != 2 {
		t.Errorf("ToProto() has %d violations, want 2", n)
	}
}

func TestFieldPathString(t *testing.T) {
	path := &validate.FieldPath{Elements: []*validate.FieldPathElement{
		{FieldName: proto.String("labels"), Subscript: &validate.FieldPathElement_StringKey{StringKey: "env"}},
		{FieldName: proto.String("items"), Subscript: &validate.FieldPathElement_Index{Index: 0}},
		{FieldName: proto.String("flags"), Subscript: &validate.FieldPathElement_BoolKey{BoolKey: true}},
		{FieldName: proto.String("name")},
	}}
	want := `labels["env"].items[0].flags[true].name`
	if got := FieldPathString(path); got != want {
		t.Errorf("FieldPathString() = %q, want %q", got, want)
	}
	if got := FieldPathString(nil); got != "" {
		t.Errorf("FieldPathString(nil) = %q, want empty", got)
	}
}
