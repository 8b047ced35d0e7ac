package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/testschema"
)

func stringTarget(t *testing.T, s string) Target {
	t.Helper()
	md := testschema.MustBuild(testschema.NewFile("expr.scalar").Message("M").Add(
		testschema.Field{Name: "s", Number: 1, Type: testschema.String},
	).File(), "M")
	return Target{Value: protoreflect.ValueOfString(s), Field: md.Fields().ByName("s")}
}

func TestCEL_CompileCachesPrograms(t *testing.T) {
	c, err := NewCEL()
	require.NoError(t, err)

	first, err := c.Compile("this.size() > 2")
	require.NoError(t, err)
	second, err := c.Compile("this.size() > 2")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "this.size() > 2", first.Source())

	_, err = c.Compile("this >")
	require.Error(t, err)
	_, again := c.Compile("this >")
	assert.Equal(t, err, again, "compile failures are cached")
}

func TestCEL_Eval(t *testing.T) {
	c, err := NewCEL()
	require.NoError(t, err)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		expression string
		value      string
		want       any
	}{
		{name: "size", expression: "this.size() > 2", value: "abc", want: true},
		{name: "string extension", expression: "this.lowerAscii() == 'abc'", value: "ABC", want: true},
		{name: "email", expression: "this.isEmail()", value: "a@example.com", want: true},
		{name: "not an ip", expression: "this.isIp()", value: "example.com", want: false},
		{name: "ipv6 only", expression: "this.isIp(6)", value: "::1", want: true},
		{name: "host and port", expression: "this.isHostAndPort(true)", value: "example.com:80", want: true},
		{name: "now bound", expression: "now.getFullYear() == 2024", value: "", want: true},
		{name: "non-boolean", expression: "this + '!'", value: "hi", want: "hi!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prg, err := c.Compile(tt.expression)
			require.NoError(t, err)
			got, err := c.Eval(prg, Bindings{This: stringTarget(t, tt.value), Now: now})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type foreignProgram struct{}

func (foreignProgram) Source() string { return "foreign" }

func TestCEL_EvalRejectsForeignProgram(t *testing.T) {
	c, err := NewCEL()
	require.NoError(t, err)
	_, err = c.Eval(foreignProgram{}, Bindings{})
	assert.Error(t, err)
}

func TestDefault_Shared(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}
