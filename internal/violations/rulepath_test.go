package violations

import (
	"testing"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"

	"github.com/solatis/protocheck/internal/types"
)

func numbers(path []*validate.FieldPathElement) []int32 {
	out := make([]int32, len(path))
	for i, el := range path {
		out[i] = el.GetFieldNumber()
	}
	return out
}

func equalNumbers(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRulePath_CategoryNumbers(t *testing.T) {
	tests := []struct {
		category string
		rule     string
		number   int32
	}{
		{"float", "finite", 1},
		{"double", "finite", 2},
		{"int32", "gt", 3},
		{"int64", "gt", 4},
		{"uint32", "gt", 5},
		{"uint64", "gt", 6},
		{"sint32", "gt", 7},
		{"sint64", "gt", 8},
		{"fixed32", "gt", 9},
		{"fixed64", "gt", 10},
		{"string", "min_len", 14},
		{"bytes", "min_len", 15},
		{"enum", "defined_only", 16},
		{"repeated", "min_items", 18},
		{"map", "min_pairs", 19},
		{"any", "in", 20},
		{"duration", "gt", 21},
		{"timestamp", "within", 22},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			path := RulePath(types.KindSingle, tt.category+"."+tt.rule)
			if len(path) != 2 {
				t.Fatalf("len(path) = %d, want 2", len(path))
			}
			if got := path[0].GetFieldNumber(); got != tt.number {
				t.Errorf("category number = %d, want %d", got, tt.number)
			}
			if got := path[0].GetFieldName(); got != tt.category {
				t.Errorf("category name = %q, want %q", got, tt.category)
			}
			if got := path[1].GetFieldName(); got != tt.rule {
				t.Errorf("rule name = %q, want %q", got, tt.rule)
			}
		})
	}
}

func TestRulePath_StandaloneRules(t *testing.T) {
	if got := numbers(RulePath(types.KindSingle, KeyRequired)); !equalNumbers(got, []int32{25}) {
		t.Errorf("required path = %v, want [25]", got)
	}
	if got := numbers(RulePath(types.KindSingle, KeyCel)); !equalNumbers(got, []int32{23}) {
		t.Errorf("cel path = %v, want [23]", got)
	}

	oneof := RulePath(types.KindSingle, KeyOneofRequired)
	if len(oneof) != 1 || oneof[0].GetFieldName() != "required" || oneof[0].GetFieldNumber() != 1 {
		t.Errorf("oneof.required path = %v, want [{required 1}]", oneof)
	}
}

func TestRulePath_ContextPrefixes(t *testing.T) {
	tests := []struct {
		name string
		kind types.FieldKind
		want []int32
	}{
		{"single", types.KindSingle, []int32{14, 2}},
		{"repeated", types.KindRepeated, []int32{14, 2}},
		{"map", types.KindMap, []int32{14, 2}},
		{"repeated item", types.KindRepeatedItem, []int32{18, 4, 14, 2}},
		{"map key", types.KindMapKey, []int32{19, 4, 14, 2}},
		{"map value", types.KindMapValue, []int32{19, 5, 14, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := numbers(RulePath(tt.kind, "string.min_len"))
			if !equalNumbers(got, tt.want) {
				t.Errorf("RulePath(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestRulePath_ReturnsFreshElements(t *testing.T) {
	first := RulePath(types.KindSingle, "string.min_len")
	first[0].FieldName = proto.String("mutated")

	second := RulePath(types.KindSingle, "string.min_len")
	if second[0].GetFieldName() != "string" {
		t.Errorf("mutation leaked into table: %q", second[0].GetFieldName())
	}
}

func TestHasRule(t *testing.T) {
	for _, key := range []string{"string.email", "bytes.ipv4", "timestamp.lt_now", "repeated.unique", "cel", "required"} {
		if !HasRule(key) {
			t.Errorf("HasRule(%q) = false, want true", key)
		}
	}
	if HasRule("string.no_such_rule") {
		t.Error("HasRule(string.no_such_rule) = true, want false")
	}
}
