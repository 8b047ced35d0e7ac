// internal/violations/fieldpath.go
package violations

/*
 * Human-readable rendering of field paths.
 *
 * Joins element names with dots and appends subscripts in brackets, e.g.
 * `people[1].name` or `labels["env"]`. Used for error strings and CLI
 * output only; the structured FieldPath is the canonical form.
 */

import (
	"strconv"
	"strings"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
)

// FieldPathString renders path, or "" for a nil or empty path.
func FieldPathString(path *validate.FieldPath) string {
	var b strings.Builder
	for i, el := range path.GetElements() {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(el.GetFieldName())
		writeSubscript(&b, el)
	}
	return b.String()
}

func writeSubscript(b *strings.Builder, el *validate.FieldPathElement) {
	switch sub := el.GetSubscript().(type) {
	case *validate.FieldPathElement_Index:
		b.WriteByte('[')
		b.WriteString(strconv.FormatUint(sub.Index, 10))
		b.WriteByte(']')
	case *validate.FieldPathElement_BoolKey:
		b.WriteByte('[')
		b.WriteString(strconv.FormatBool(sub.BoolKey))
		b.WriteByte(']')
	case *validate.FieldPathElement_IntKey:
		b.WriteByte('[')
		b.WriteString(strconv.FormatInt(sub.IntKey, 10))
		b.WriteByte(']')
	case *validate.FieldPathElement_UintKey:
		b.WriteByte('[')
		b.WriteString(strconv.FormatUint(sub.UintKey, 10))
		b.WriteByte(']')
	case *validate.FieldPathElement_StringKey:
		b.WriteByte('[')
		b.WriteString(strconv.Quote(sub.StringKey))
		b.WriteByte(']')
	}
}
