// internal/rules/evaluate.go
package rules

import (
	"sort"
	"time"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/expr"
	"github.com/solatis/protocheck/internal/types"
	"github.com/solatis/protocheck/internal/violations"
)

/*
 * Plan evaluation.
 *
 * Executes a messagePlan against a live message and collects violations in
 * a deterministic order: members in declaration order, depth-first into
 * nested messages, then message-level custom rules.
 *
 * Evaluation flow per field:
 *   1. Unset and required: report `required`, nothing else runs
 *   2. Unset with explicit presence, or unset under IGNORE_IF_ZERO_VALUE: skip
 *   3. Zero value under IGNORE_IF_ZERO_VALUE: skip
 *   4. Unwrap wrapper messages, run the ordered checks
 *   5. Descend: list items by index, map entries by sorted key, nested
 *      message fields with the current element appended to the path
 *
 * Policy handling:
 *   - Implicit-presence scalars that are unset hold their zero value and
 *     are checked as such; empty lists and maps likewise
 *   - IGNORE_IF_ZERO_VALUE also applies per item, key and value
 *   - Fail-fast stops at the first violation
 *
 * A run holds everything one call needs; plans are shared and never
 * written during evaluation.
 */

type run struct {
	now       time.Time
	nowMoment types.Moment
	bridge    *expr.Bridge
	failFast  bool
	out       []*validate.Violation
}

func newRun(now time.Time, bridge *expr.Bridge, failFast bool) *run {
	return &run{
		now:       now,
		nowMoment: types.MomentFromTime(now),
		bridge:    bridge,
		failFast:  failFast,
	}
}

func (r *run) add(v *validate.Violation) {
	if v != nil {
		r.out = append(r.out, v)
	}
}

// done reports whether evaluation should stop.
func (r *run) done() bool {
	return r.failFast && len(r.out) > 0
}

// message evaluates plan against msg. parent is the path of msg within the
// validated root; nil for the root itself.
func (r *run) message(plan *messagePlan, msg protoreflect.Message, parent []*validate.FieldPathElement) {
	for _, m := range plan.members {
		if r.done() {
			return
		}
		if m.field != nil {
			r.field(m.field, msg, parent)
		} else {
			r.oneof(m.oneof, msg, parent)
		}
	}
	for _, rule := range plan.custom {
		if r.done() {
			return
		}
		r.add(r.bridge.Message(parent, rule, expr.MessageTarget(msg), r.now))
	}
}

func (r *run) oneof(op *oneofPlan, msg protoreflect.Message, parent []*validate.FieldPathElement) {
	fd := msg.WhichOneof(op.desc)
	if fd == nil {
		if op.required {
			r.add(violations.OneofRequired(parent, string(op.desc.Name())))
		}
		return
	}
	if fp, ok := op.variants[fd.Name()]; ok {
		r.field(fp, msg, parent)
	}
}

func (r *run) field(fp *fieldPlan, msg protoreflect.Message, parent []*validate.FieldPathElement) {
	fc := types.FieldContext{Data: fp.data, Kind: fp.kind, Parent: parent}
	if !msg.Has(fp.desc) {
		if fp.required {
			r.add(violations.Required(fc))
			return
		}
		if fp.desc.HasPresence() || fp.ignore == types.IgnoreIfZeroValue {
			return
		}
	}
	r.value(fp.value, fc, msg.Get(fp.desc))
}

func (r *run) value(vp *valuePlan, fc types.FieldContext, v protoreflect.Value) {
	if vp == nil || r.done() {
		return
	}
	if vp.ignore == types.IgnoreIfZeroValue && isZero(vp, v) {
		return
	}
	if vp.unwrap != nil {
		v = v.Message().Get(vp.unwrap)
	}
	for _, c := range vp.checks {
		if r.done() {
			return
		}
		r.add(c.fn(r, fc, v))
	}

	switch {
	case vp.items != nil:
		list := v.List()
		for i := 0; i < list.Len(); i++ {
			r.value(vp.items, fc.Item(i), list.Get(i))
		}
	case vp.keys != nil || vp.values != nil:
		m := v.Map()
		for _, k := range sortedKeys(m, vp.keyKind) {
			kc, vc := fc.Entry(k, vp.keyKind)
			r.value(vp.keys, kc, k.Value())
			r.value(vp.values, vc, m.Get(k))
		}
	case vp.message != nil:
		if nested := v.Message(); nested.IsValid() {
			r.message(vp.message, nested, fc.Descend())
		}
	}
}

// isZero reports whether v is the zero value of the value vp describes.
func isZero(vp *valuePlan, v protoreflect.Value) bool {
	fd := vp.desc
	switch {
	case fd.IsMap() && !vp.element:
		return v.Map().Len() == 0
	case fd.IsList() && !vp.element:
		return v.List().Len() == 0
	}
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return !v.Bool()
	case protoreflect.Int32Kind, protoreflect.Int64Kind,
		protoreflect.Sint32Kind, protoreflect.Sint64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
		return v.Int() == 0
	case protoreflect.Uint32Kind, protoreflect.Uint64Kind,
		protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
		return v.Uint() == 0
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float() == 0
	case protoreflect.StringKind:
		return v.String() == ""
	case protoreflect.BytesKind:
		return len(v.Bytes()) == 0
	case protoreflect.EnumKind:
		return v.Enum() == 0
	case protoreflect.MessageKind, protoreflect.GroupKind:
		msg := v.Message()
		if !msg.IsValid() {
			return true
		}
		populated := false
		msg.Range(func(protoreflect.FieldDescriptor, protoreflect.Value) bool {
			populated = true
			return false
		})
		return !populated
	}
	return false
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys(m protoreflect.Map, kind protoreflect.Kind) []protoreflect.MapKey {
	keys := make([]protoreflect.MapKey, 0, m.Len())
	m.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
		keys = append(keys, k)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch kind {
		case protoreflect.BoolKind:
			return !a.Bool() && b.Bool()
		case protoreflect.Int32Kind, protoreflect.Int64Kind,
			protoreflect.Sint32Kind, protoreflect.Sint64Kind,
			protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
			return a.Int() < b.Int()
		case protoreflect.Uint32Kind, protoreflect.Uint64Kind,
			protoreflect.Fixed32Kind, protoreflect.Fixed64Kind:
			return a.Uint() < b.Uint()
		default:
			return a.String() < b.String()
		}
	})
	return keys
}
