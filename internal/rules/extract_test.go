// internal/rules/extract_test.go
package rules

import (
	"errors"
	"math"
	"testing"
	"time"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/solatis/protocheck/internal/testschema"
	"github.com/solatis/protocheck/internal/types"
)

// fieldOf builds a one-field message and returns the field descriptor.
func fieldOf(t *testing.T, f testschema.Field) protoreflect.FieldDescriptor {
	t.Helper()
	file := testschema.NewFile("extract.test")
	file.Enum("Color", "COLOR_UNSPECIFIED", "COLOR_RED", "COLOR_BLUE")
	file.Message("Item").Add(testschema.Field{Name: "id", Number: 1, Type: testschema.String})
	file.Message("M").Add(f)
	md := testschema.MustBuild(file, "M")
	return md.Fields().ByName(protoreflect.Name(f.Name))
}

func int32Rules(r *validate.Int32Rules) *validate.FieldRules {
	return &validate.FieldRules{Type: &validate.FieldRules_Int32{Int32: r}}
}

func stringRules(r *validate.StringRules) *validate.FieldRules {
	return &validate.FieldRules{Type: &validate.FieldRules_String_{String_: r}}
}

func TestExtract_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		field   testschema.Field
		rules   *validate.FieldRules
		wantErr error
	}{
		{
			name:  "gte above lte",
			field: testschema.Field{Name: "n", Number: 1, Type: testschema.Int32},
			rules: int32Rules(&validate.Int32Rules{
				GreaterThan: &validate.Int32Rules_Gte{Gte: 5},
				LessThan:    &validate.Int32Rules_Lte{Lte: 3},
			}),
			wantErr: types.ErrBoundsConflict,
		},
		{
			name:  "gt equal to lt",
			field: testschema.Field{Name: "n", Number: 1, Type: testschema.Int32},
			rules: int32Rules(&validate.Int32Rules{
				GreaterThan: &validate.Int32Rules_Gt{Gt: 5},
				LessThan:    &validate.Int32Rules_Lt{Lt: 5},
			}),
			wantErr: types.ErrBoundsConflict,
		},
		{
			name:  "gte equal to lt",
			field: testschema.Field{Name: "n", Number: 1, Type: testschema.Int32},
			rules: int32Rules(&validate.Int32Rules{
				GreaterThan: &validate.Int32Rules_Gte{Gte: 5},
				LessThan:    &validate.Int32Rules_Lt{Lt: 5},
			}),
			wantErr: types.ErrBoundsConflict,
		},
		{
			name:    "len with min_len",
			field:   testschema.Field{Name: "s", Number: 1, Type: testschema.String},
			rules:   stringRules(&validate.StringRules{Len: proto.Uint64(3), MinLen: proto.Uint64(1)}),
			wantErr: types.ErrLengthConflict,
		},
		{
			name:    "min_bytes above max_bytes",
			field:   testschema.Field{Name: "s", Number: 1, Type: testschema.String},
			rules:   stringRules(&validate.StringRules{MinBytes: proto.Uint64(5), MaxBytes: proto.Uint64(3)}),
			wantErr: types.ErrLengthConflict,
		},
		{
			name:    "string in overlaps not_in",
			field:   testschema.Field{Name: "s", Number: 1, Type: testschema.String},
			rules:   stringRules(&validate.StringRules{In: []string{"a", "b"}, NotIn: []string{"c", "b"}}),
			wantErr: types.ErrMembershipOverlap,
		},
		{
			name:  "double in overlaps not_in",
			field: testschema.Field{Name: "d", Number: 1, Type: testschema.Double},
			rules: &validate.FieldRules{Type: &validate.FieldRules_Double{Double: &validate.DoubleRules{
				In: []float64{0.5, 1.5}, NotIn: []float64{0.5},
			}}},
			wantErr: types.ErrMembershipOverlap,
		},
		{
			name:  "enum in lists undefined value",
			field: testschema.Field{Name: "c", Number: 1, Type: testschema.Enum, TypeName: "Color"},
			rules: &validate.FieldRules{Type: &validate.FieldRules_Enum{Enum: &validate.EnumRules{
				In: []int32{1, 7},
			}}},
			wantErr: types.ErrUndefinedEnumValue,
		},
		{
			name:  "unique on message items",
			field: testschema.Field{Name: "items", Number: 1, Type: testschema.Message, TypeName: "Item", Repeated: true},
			rules: &validate.FieldRules{Type: &validate.FieldRules_Repeated{Repeated: &validate.RepeatedRules{
				Unique: proto.Bool(true),
			}}},
			wantErr: types.ErrUniqueOnMessage,
		},
		{
			name:    "invalid pattern",
			field:   testschema.Field{Name: "s", Number: 1, Type: testschema.String},
			rules:   stringRules(&validate.StringRules{Pattern: proto.String("([a-z")}),
			wantErr: types.ErrInvalidPattern,
		},
		{
			name:    "string rules on int32",
			field:   testschema.Field{Name: "n", Number: 1, Type: testschema.Int32},
			rules:   stringRules(&validate.StringRules{MinLen: proto.Uint64(1)}),
			wantErr: types.ErrRuleTypeMismatch,
		},
		{
			name:  "repeated rules on singular field",
			field: testschema.Field{Name: "s", Number: 1, Type: testschema.String},
			rules: &validate.FieldRules{Type: &validate.FieldRules_Repeated{Repeated: &validate.RepeatedRules{
				MinItems: proto.Uint64(1),
			}}},
			wantErr: types.ErrRuleTypeMismatch,
		},
		{
			name:    "scalar rules on repeated field",
			field:   testschema.Field{Name: "s", Number: 1, Type: testschema.String, Repeated: true},
			rules:   stringRules(&validate.StringRules{MinLen: proto.Uint64(1)}),
			wantErr: types.ErrRuleTypeMismatch,
		},
		{
			name:  "conflict inside item rules",
			field: testschema.Field{Name: "s", Number: 1, Type: testschema.String, Repeated: true},
			rules: &validate.FieldRules{Type: &validate.FieldRules_Repeated{Repeated: &validate.RepeatedRules{
				Items: stringRules(&validate.StringRules{MinLen: proto.Uint64(4), MaxLen: proto.Uint64(2)}),
			}}},
			wantErr: types.ErrLengthConflict,
		},
		{
			name:  "min_items above max_items",
			field: testschema.Field{Name: "s", Number: 1, Type: testschema.String, Repeated: true},
			rules: &validate.FieldRules{Type: &validate.FieldRules_Repeated{Repeated: &validate.RepeatedRules{
				MinItems: proto.Uint64(3), MaxItems: proto.Uint64(1),
			}}},
			wantErr: types.ErrLengthConflict,
		},
		{
			name:  "duration bounds inverted",
			field: testschema.Field{Name: "d", Number: 1, Type: testschema.Message, TypeName: testschema.Duration},
			rules: &validate.FieldRules{Type: &validate.FieldRules_Duration{Duration: &validate.DurationRules{
				GreaterThan: &validate.DurationRules_Gt{Gt: durationpb.New(time.Minute)},
				LessThan:    &validate.DurationRules_Lt{Lt: durationpb.New(time.Second)},
			}}},
			wantErr: types.ErrBoundsConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := fieldOf(t, tt.field)
			_, err := Extract(fd, tt.rules)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtract_ValidDeclarations(t *testing.T) {
	tests := []struct {
		name  string
		field testschema.Field
		rules *validate.FieldRules
		want  types.Category
	}{
		{
			name:  "inclusive bounds touching",
			field: testschema.Field{Name: "n", Number: 1, Type: testschema.Int32},
			rules: int32Rules(&validate.Int32Rules{
				GreaterThan: &validate.Int32Rules_Gte{Gte: 5},
				LessThan:    &validate.Int32Rules_Lte{Lte: 5},
			}),
			want: types.CategoryInt32,
		},
		{
			name:  "int32 rules on wrapper",
			field: testschema.Field{Name: "n", Number: 1, Type: testschema.Message, TypeName: testschema.Int32Value},
			rules: int32Rules(&validate.Int32Rules{GreaterThan: &validate.Int32Rules_Gt{Gt: 0}}),
			want:  types.CategoryInt32,
		},
		{
			name:  "prefix on string",
			field: testschema.Field{Name: "s", Number: 1, Type: testschema.String},
			rules: stringRules(&validate.StringRules{Prefix: proto.String("x")}),
			want:  types.CategoryString,
		},
		{
			name:  "no category",
			field: testschema.Field{Name: "s", Number: 1, Type: testschema.String},
			rules: &validate.FieldRules{Required: proto.Bool(true)},
			want:  types.CategoryNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := Extract(fieldOf(t, tt.field), tt.rules)
			if err != nil {
				t.Fatalf("Extract() error = %v, want nil", err)
			}
			if rs.Category != tt.want {
				t.Errorf("Category = %v, want %v", rs.Category, tt.want)
			}
		})
	}
}

func TestExtract_NilRules(t *testing.T) {
	rs, err := Extract(fieldOf(t, testschema.Field{Name: "s", Number: 1, Type: testschema.String}), nil)
	if err != nil {
		t.Fatalf("Extract() error = %v, want nil", err)
	}
	if !rs.Empty() {
		t.Errorf("Empty() = false, want true")
	}
}

func TestExtract_StringDetails(t *testing.T) {
	fd := fieldOf(t, testschema.Field{Name: "h", Number: 1, Type: testschema.String})
	rs, err := Extract(fd, stringRules(&validate.StringRules{
		MinLen:    proto.Uint64(2),
		Pattern:   proto.String("^[a-z-]+$"),
		WellKnown: &validate.StringRules_WellKnownRegex{WellKnownRegex: validate.KnownRegex_KNOWN_REGEX_HTTP_HEADER_NAME},
		Strict:    proto.Bool(false),
	}))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	s := rs.String
	if s == nil {
		t.Fatal("String rules not extracted")
	}
	if s.MinLen == nil || *s.MinLen != 2 {
		t.Errorf("MinLen = %v, want 2", s.MinLen)
	}
	if s.Pattern == nil || !s.Pattern.MatchString("x-api-key") {
		t.Errorf("Pattern = %v, want compiled ^[a-z-]+$", s.Pattern)
	}
	if s.Format != types.FormatHeaderName || s.FormatRule != "well_known_regex" {
		t.Errorf("Format = %v/%q, want header name/well_known_regex", s.Format, s.FormatRule)
	}
	if s.Strict {
		t.Errorf("Strict = true, want false")
	}
}

func TestExtract_StrictDefaultsTrue(t *testing.T) {
	fd := fieldOf(t, testschema.Field{Name: "h", Number: 1, Type: testschema.String})
	rs, err := Extract(fd, stringRules(&validate.StringRules{
		WellKnown: &validate.StringRules_Email{Email: true},
	}))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if rs.String.Format != types.FormatEmail || !rs.String.Strict {
		t.Errorf("Format/Strict = %v/%v, want email/true", rs.String.Format, rs.String.Strict)
	}
}

func TestExtract_FloatMembershipByBits(t *testing.T) {
	fd := fieldOf(t, testschema.Field{Name: "d", Number: 1, Type: testschema.Double})
	rs, err := Extract(fd, &validate.FieldRules{Type: &validate.FieldRules_Double{Double: &validate.DoubleRules{
		In: []float64{0.0},
	}}})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !rs.Float.In.Has(rs.Float.Key(0)) {
		t.Errorf("In.Has(0) = false, want true")
	}
	if rs.Float.In.Has(rs.Float.Key(math.Copysign(0, -1))) {
		t.Errorf("In.Has(-0) = true, want false")
	}
}
