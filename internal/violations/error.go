package violations

import (
	"fmt"
	"strings"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
)

// Error is returned when a message fails one or more rules. Violations is
// never empty and its order is deterministic for a given message value.
type Error struct {
	Violations []*validate.Violation
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("validation error:")
	for _, v := range e.Violations {
		b.WriteString("\n - ")
		if path := FieldPathString(v.GetField()); path != "" {
			b.WriteString(path)
			b.WriteString(": ")
		}
		_, _ = fmt.Fprintf(&b, "%s [%s]", v.GetMessage(), v.GetRuleId())
	}
	return b.String()
}

// ToProto converts e into its wire form.
func (e *Error) ToProto() *validate.Violations {
	return &validate.Violations{Violations: e.Violations}
}
