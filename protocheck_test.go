package protocheck

import (
	"errors"
	"testing"
	"time"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/testschema"
	"github.com/solatis/protocheck/internal/types"
)

func accountSchema() protoreflect.MessageDescriptor {
	return testschema.MustBuild(testschema.NewFile("facade.account").Message("Account").Add(
		testschema.Field{Name: "email", Number: 1, Type: testschema.String,
			Rules: &validate.FieldRules{Type: &validate.FieldRules_String_{String_: &validate.StringRules{
				WellKnown: &validate.StringRules_Email{Email: true},
			}}}},
		testschema.Field{Name: "age", Number: 2, Type: testschema.Uint32,
			Rules: &validate.FieldRules{
				Type: &validate.FieldRules_Uint32{Uint32: &validate.UInt32Rules{
					LessThan: &validate.UInt32Rules_Lte{Lte: 150},
				}},
				Cel: []*validate.Rule{{
					Id:         proto.String("adult"),
					Expression: proto.String("this >= 18u"),
					Message:    proto.String("must be an adult"),
				}},
			}},
	).File(), "Account")
}

func brokenSchema() protoreflect.MessageDescriptor {
	return testschema.MustBuild(testschema.NewFile("facade.broken").Message("Broken").Add(
		testschema.Field{Name: "name", Number: 1, Type: testschema.String,
			Rules: &validate.FieldRules{Type: &validate.FieldRules_String_{String_: &validate.StringRules{
				MinLen: proto.Uint64(5),
				MaxLen: proto.Uint64(2),
			}}}},
	).File(), "Broken")
}

func TestValidator_Validate(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	md := accountSchema()

	valid := testschema.New(md)
	testschema.Set(valid, "email", "ada@example.com")
	testschema.Set(valid, "age", uint32(36))
	assert.NoError(t, v.Validate(valid))

	invalid := testschema.New(md)
	testschema.Set(invalid, "email", "ada")
	testschema.Set(invalid, "age", uint32(12))
	err = v.Validate(invalid)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 2)
	assert.Equal(t, "string.email", verr.Violations[0].GetRuleId())
	assert.Equal(t, "adult", verr.Violations[1].GetRuleId())
}

func TestValidator_NilMessage(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	assert.ErrorIs(t, v.Validate(nil), ErrNilMessage)
	assert.ErrorIs(t, v.Validate((*validate.FieldRules)(nil)), ErrNilMessage)
}

func TestNew_WithMessagesSurfacesSchemaErrors(t *testing.T) {
	_, err := New(WithMessages(accountSchema(), brokenSchema()))
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "facade.broken.Broken", schemaErr.Message)
	assert.ErrorIs(t, err, types.ErrLengthConflict)
}

func TestValidator_CompileAndValidateAgree(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	md := brokenSchema()

	compileErr := v.Compile(md)
	require.Error(t, compileErr)
	validateErr := v.Validate(testschema.New(md))
	assert.Equal(t, compileErr.Error(), validateErr.Error())
}

func TestValidator_FailFastAndClock(t *testing.T) {
	md := testschema.MustBuild(testschema.NewFile("facade.clock").Message("Event").Add(
		testschema.Field{Name: "at", Number: 1, Type: testschema.Message, TypeName: testschema.Timestamp,
			Rules: &validate.FieldRules{Type: &validate.FieldRules_Timestamp{Timestamp: &validate.TimestampRules{
				LessThan: &validate.TimestampRules_LtNow{LtNow: true},
			}}}},
		testschema.Field{Name: "id", Number: 2, Type: testschema.String,
			Rules: &validate.FieldRules{Required: proto.Bool(true)}},
	).File(), "Event")
	epoch := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	msg := testschema.New(md)
	testschema.SetTime(msg, "at", epoch.Add(time.Hour))

	v, err := New(WithNow(func() time.Time { return epoch }), WithFailFast(true))
	require.NoError(t, err)
	var verr *ValidationError
	require.ErrorAs(t, v.Validate(msg), &verr)
	require.Len(t, verr.Violations, 1)
	assert.Equal(t, "timestamp.lt_now", verr.Violations[0].GetRuleId())
}

// constEngine answers every expression with the same result.
type constEngine bool

type constProgram string

func (p constProgram) Source() string { return string(p) }

func (e constEngine) Compile(expression string) (Program, error) {
	return constProgram(expression), nil
}

func (e constEngine) Eval(Program, Bindings) (any, error) {
	return bool(e), nil
}

func TestValidator_WithExpressionEngine(t *testing.T) {
	md := accountSchema()
	msg := testschema.New(md)
	testschema.Set(msg, "email", "ada@example.com")

	v, err := New(WithExpressionEngine(constEngine(true)))
	require.NoError(t, err)
	assert.NoError(t, v.Validate(msg), "the age rule passes under the stub engine")

	v, err = New(WithExpressionEngine(constEngine(false)))
	require.NoError(t, err)
	var verr *ValidationError
	require.True(t, errors.As(v.Validate(msg), &verr))
	assert.Equal(t, "adult", verr.Violations[0].GetRuleId())
}

func TestValidate_Global(t *testing.T) {
	msg := testschema.New(accountSchema())
	testschema.Set(msg, "email", "nope")
	testschema.Set(msg, "age", uint32(40))
	var verr *ValidationError
	require.ErrorAs(t, Validate(msg), &verr)
	assert.Len(t, verr.Violations, 1)
}
