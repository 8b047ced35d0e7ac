package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/solatis/protocheck/internal/rules"
	"github.com/solatis/protocheck/internal/testschema"
	"github.com/solatis/protocheck/internal/types"
	"github.com/solatis/protocheck/internal/violations"
)

// testSet returns a descriptor set holding one file without its imports.
func testSet(t *testing.T) *descriptorpb.FileDescriptorSet {
	t.Helper()
	fd, err := testschema.NewFile("schema.test").
		Message("User").Add(
		testschema.Field{Name: "name", Number: 1, Type: testschema.String,
			Rules: &validate.FieldRules{Type: &validate.FieldRules_String_{String_: &validate.StringRules{
				MinLen: proto.Uint64(2),
			}}}},
	).
		Map("labels", 2, testschema.String, testschema.String, "", nil).
		Message("Team").Add(
		testschema.Field{Name: "members", Number: 1, Type: testschema.Message, TypeName: "User", Repeated: true},
	).Build()
	require.NoError(t, err)
	return &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{protodesc.ToFileDescriptorProto(fd)}}
}

func TestParse_Binary(t *testing.T) {
	data, err := proto.Marshal(testSet(t))
	require.NoError(t, err)

	reg, err := Parse(data)
	require.NoError(t, err)

	var names []string
	for _, md := range reg.Messages() {
		names = append(names, string(md.FullName()))
	}
	assert.Equal(t, []string{"schema.test.Team", "schema.test.User"}, names)
}

func TestParse_JSON(t *testing.T) {
	data, err := protojson.Marshal(testSet(t))
	require.NoError(t, err)

	reg, err := Parse(data)
	require.NoError(t, err)
	_, err = reg.Message("schema.test.Team")
	assert.NoError(t, err)
}

func TestRegistry_RulesSurviveRoundTrip(t *testing.T) {
	data, err := proto.Marshal(testSet(t))
	require.NoError(t, err)
	reg, err := Parse(data)
	require.NoError(t, err)
	md, err := reg.Message("schema.test.User")
	require.NoError(t, err)

	engine, err := rules.NewEngine()
	require.NoError(t, err)
	msg := testschema.New(md)
	testschema.Set(msg, "name", "x")

	var verr *violations.Error
	require.ErrorAs(t, engine.Validate(msg), &verr)
	assert.Equal(t, "string.min_len", verr.Violations[0].GetRuleId())
}

func TestRegistry_UnknownMessage(t *testing.T) {
	data, err := proto.Marshal(testSet(t))
	require.NoError(t, err)
	reg, err := Parse(data)
	require.NoError(t, err)

	for _, name := range []string{"schema.test.Nope", "schema.test.User.name"} {
		_, err = reg.Message(name)
		assert.True(t, errors.Is(err, types.ErrUnknownMessage), name)
	}
}

func TestLoad(t *testing.T) {
	data, err := proto.Marshal(testSet(t))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "set.binpb")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, reg.Messages(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "absent.binpb"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.binpb")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o600))
	_, err = Load(garbage)
	assert.Error(t, err)
}
