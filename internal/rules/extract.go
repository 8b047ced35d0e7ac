// internal/rules/extract.go
package rules

import (
	"fmt"
	"math"
	"regexp"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/types"
)

/*
 * Rule extraction.
 *
 * Decodes one field's (buf.validate.field) option into a types.RuleSet and
 * rejects declarations that can never be satisfied consistently:
 *   - len combined with min/max, or min > max (chars, bytes, items, pairs)
 *   - lt/lte and gt/gte describing an empty or inverted interval
 *   - in and not_in sharing a value (floats compared by bit pattern)
 *   - enum.in listing a number the enum does not declare
 *   - repeated.unique on message items
 *   - a pattern that is not valid RE2
 *   - a rule category that does not fit the field type
 *
 * The ordered scalar families (integers, floats, durations, timestamps) are
 * read reflectively by rule name since every family spells const/lt/lte/
 * gt/gte/in/not_in identically. The remaining families use the typed
 * accessors.
 */

// scope says which value of a field a RuleSet applies to.
type scope int

const (
	scopeField scope = iota
	scopeItem
	scopeKey
	scopeValue
)

var fieldRulesTypeOneof = (*validate.FieldRules)(nil).ProtoReflect().Descriptor().Oneofs().ByName("type")

// Extract decodes the rules of fd. A nil rules message yields an empty set.
func Extract(fd protoreflect.FieldDescriptor, rules *validate.FieldRules) (*types.RuleSet, error) {
	return extract(fd, rules, scopeField)
}

func extract(fd protoreflect.FieldDescriptor, rules *validate.FieldRules, sc scope) (*types.RuleSet, error) {
	rs := &types.RuleSet{}
	if rules == nil {
		return rs, nil
	}
	rs.Required = rules.GetRequired()
	rs.Ignore = types.IgnoreFromProto(rules.GetIgnore())
	rs.Custom = rules.GetCel()

	which := rules.ProtoReflect().WhichOneof(fieldRulesTypeOneof)
	if which == nil {
		return rs, nil
	}
	category, ok := types.CategoryByName(string(which.Name()))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported rule category %s", types.ErrRuleTypeMismatch, which.Name())
	}
	rs.Category = category

	if sc == scopeField && (fd.IsList() || fd.IsMap()) {
		return rs, extractCollection(rs, fd, rules)
	}
	target := scalarTarget(fd, sc)
	if want := expectedCategory(target); want != category {
		return nil, fmt.Errorf("%w: %s rules on a %s value", types.ErrRuleTypeMismatch, category, describeKind(target))
	}

	ruleMsg := rules.ProtoReflect().Get(which).Message()
	var err error
	switch category {
	case types.CategoryInt32, types.CategoryInt64, types.CategorySint32, types.CategorySint64,
		types.CategorySfixed32, types.CategorySfixed64:
		rs.Signed, err = extractComparable(ruleMsg, protoreflect.Value.Int, lessOrdered[int64], identity[int64])
	case types.CategoryUint32, types.CategoryUint64, types.CategoryFixed32, types.CategoryFixed64:
		rs.Unsigned, err = extractComparable(ruleMsg, protoreflect.Value.Uint, lessOrdered[uint64], identity[uint64])
	case types.CategoryFloat, types.CategoryDouble:
		rs.Float, err = extractFloat(ruleMsg)
	case types.CategoryDuration:
		rs.Duration, err = extractComparable(ruleMsg, momentValue, types.Moment.Less, identity[types.Moment])
	case types.CategoryTimestamp:
		rs.Timestamp, err = extractTimestamp(ruleMsg)
	case types.CategoryBool:
		rs.Bool = &types.BoolRules{Const: rules.GetBool().Const}
	case types.CategoryString:
		rs.String, err = extractString(rules.GetString_())
	case types.CategoryBytes:
		rs.Bytes, err = extractBytes(rules.GetBytes())
	case types.CategoryEnum:
		rs.Enum, err = extractEnum(target.Enum(), rules.GetEnum())
	case types.CategoryAny:
		r := rules.GetAny()
		rs.Any = &types.AnyRules{In: stringSet(r.GetIn()), NotIn: stringSet(r.GetNotIn())}
		if rs.Any.In.Intersects(rs.Any.NotIn) {
			err = fmt.Errorf("%w: any type URLs", types.ErrMembershipOverlap)
		}
	default:
		err = fmt.Errorf("%w: %s rules on a scalar value", types.ErrRuleTypeMismatch, category)
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

func extractCollection(rs *types.RuleSet, fd protoreflect.FieldDescriptor, rules *validate.FieldRules) error {
	switch {
	case fd.IsList() && rs.Category == types.CategoryRepeated:
		r := rules.GetRepeated()
		if err := checkLength("items", nil, r.MinItems, r.MaxItems); err != nil {
			return err
		}
		if r.GetUnique() && fd.Kind() == protoreflect.MessageKind {
			return fmt.Errorf("%w: items of %s are messages", types.ErrUniqueOnMessage, fd.Name())
		}
		items, err := extract(fd, r.GetItems(), scopeItem)
		if err != nil {
			return fmt.Errorf("items: %w", err)
		}
		rs.Repeated = &types.RepeatedRules{MinItems: r.MinItems, MaxItems: r.MaxItems, Unique: r.GetUnique(), Items: items}
		return nil
	case fd.IsMap() && rs.Category == types.CategoryMap:
		r := rules.GetMap()
		if err := checkLength("pairs", nil, r.MinPairs, r.MaxPairs); err != nil {
			return err
		}
		keys, err := extract(fd, r.GetKeys(), scopeKey)
		if err != nil {
			return fmt.Errorf("keys: %w", err)
		}
		values, err := extract(fd, r.GetValues(), scopeValue)
		if err != nil {
			return fmt.Errorf("values: %w", err)
		}
		rs.Map = &types.MapRules{MinPairs: r.MinPairs, MaxPairs: r.MaxPairs, Keys: keys, Values: values}
		return nil
	case fd.IsMap():
		return fmt.Errorf("%w: %s rules on a map field", types.ErrRuleTypeMismatch, rs.Category)
	default:
		return fmt.Errorf("%w: %s rules on a repeated field", types.ErrRuleTypeMismatch, rs.Category)
	}
}

// scalarTarget returns the descriptor whose kind the rules constrain.
func scalarTarget(fd protoreflect.FieldDescriptor, sc scope) protoreflect.FieldDescriptor {
	switch sc {
	case scopeKey:
		return fd.MapKey()
	case scopeValue:
		return fd.MapValue()
	default:
		return fd
	}
}

// wrapperValue returns the value field of a google.protobuf wrapper type.
func wrapperValue(md protoreflect.MessageDescriptor) protoreflect.FieldDescriptor {
	if md == nil || md.ParentFile() == nil || md.ParentFile().Path() != "google/protobuf/wrappers.proto" {
		return nil
	}
	return md.Fields().ByName("value")
}

func expectedCategory(fd protoreflect.FieldDescriptor) types.Category {
	switch fd.Kind() {
	case protoreflect.FloatKind:
		return types.CategoryFloat
	case protoreflect.DoubleKind:
		return types.CategoryDouble
	case protoreflect.Int32Kind:
		return types.CategoryInt32
	case protoreflect.Int64Kind:
		return types.CategoryInt64
	case protoreflect.Uint32Kind:
		return types.CategoryUint32
	case protoreflect.Uint64Kind:
		return types.CategoryUint64
	case protoreflect.Sint32Kind:
		return types.CategorySint32
	case protoreflect.Sint64Kind:
		return types.CategorySint64
	case protoreflect.Fixed32Kind:
		return types.CategoryFixed32
	case protoreflect.Fixed64Kind:
		return types.CategoryFixed64
	case protoreflect.Sfixed32Kind:
		return types.CategorySfixed32
	case protoreflect.Sfixed64Kind:
		return types.CategorySfixed64
	case protoreflect.BoolKind:
		return types.CategoryBool
	case protoreflect.StringKind:
		return types.CategoryString
	case protoreflect.BytesKind:
		return types.CategoryBytes
	case protoreflect.EnumKind:
		return types.CategoryEnum
	case protoreflect.MessageKind, protoreflect.GroupKind:
		switch fd.Message().FullName() {
		case "google.protobuf.Duration":
			return types.CategoryDuration
		case "google.protobuf.Timestamp":
			return types.CategoryTimestamp
		case "google.protobuf.Any":
			return types.CategoryAny
		}
		if inner := wrapperValue(fd.Message()); inner != nil {
			return expectedCategory(inner)
		}
	}
	return types.CategoryNone
}

func describeKind(fd protoreflect.FieldDescriptor) string {
	if md := fd.Message(); md != nil {
		return string(md.FullName())
	}
	return fd.Kind().String()
}

func lessOrdered[T int64 | uint64 | float64](a, b T) bool { return a < b }

func identity[T any](v T) T { return v }

func momentValue(v protoreflect.Value) types.Moment {
	return types.MomentOf(v.Message())
}

// extractComparable reads const, lt/lte, gt/gte and in/not_in from a family
// rules message.
func extractComparable[T comparable, K comparable](
	m protoreflect.Message,
	conv func(protoreflect.Value) T,
	less func(a, b T) bool,
	key func(T) K,
) (*types.Comparable[T, K], error) {
	c := &types.Comparable[T, K]{Less: less, Key: key}
	fields := m.Descriptor().Fields()
	get := func(name protoreflect.Name) (T, bool) {
		var zero T
		fd := fields.ByName(name)
		if fd == nil || !m.Has(fd) {
			return zero, false
		}
		return conv(m.Get(fd)), true
	}
	list := func(name protoreflect.Name) *types.Membership[T, K] {
		fd := fields.ByName(name)
		if fd == nil || !m.Has(fd) {
			return nil
		}
		l := m.Get(fd).List()
		values := make([]T, l.Len())
		for i := range values {
			values[i] = conv(l.Get(i))
		}
		return types.NewMembership(values, key)
	}

	if v, ok := get("const"); ok {
		c.Const = &v
	}
	if v, ok := get("lt"); ok {
		c.Upper = &types.Bound[T]{Value: v}
	} else if v, ok := get("lte"); ok {
		c.Upper = &types.Bound[T]{Value: v, Inclusive: true}
	}
	if v, ok := get("gt"); ok {
		c.Lower = &types.Bound[T]{Value: v}
	} else if v, ok := get("gte"); ok {
		c.Lower = &types.Bound[T]{Value: v, Inclusive: true}
	}
	c.In = list("in")
	c.NotIn = list("not_in")

	if err := checkBounds(c.Lower, c.Upper, less); err != nil {
		return nil, err
	}
	if c.In.Intersects(c.NotIn) {
		return nil, fmt.Errorf("%w: in %v, not_in %v", types.ErrMembershipOverlap, c.In.Values, c.NotIn.Values)
	}
	return c, nil
}

// checkBounds rejects an empty or inverted interval. With both bounds
// inclusive the interval is empty when upper < lower; in the three other
// combinations it is empty when upper <= lower.
func checkBounds[T comparable](lower, upper *types.Bound[T], less func(a, b T) bool) error {
	if lower == nil || upper == nil {
		return nil
	}
	var empty bool
	if lower.Inclusive && upper.Inclusive {
		empty = less(upper.Value, lower.Value)
	} else {
		empty = !less(lower.Value, upper.Value)
	}
	if empty {
		return fmt.Errorf("%w: %s %v, %s %v", types.ErrBoundsConflict,
			lowerName(lower.Inclusive), lower.Value, upperName(upper.Inclusive), upper.Value)
	}
	return nil
}

func lowerName(inclusive bool) string {
	if inclusive {
		return "gte"
	}
	return "gt"
}

func upperName(inclusive bool) string {
	if inclusive {
		return "lte"
	}
	return "lt"
}

func extractFloat(m protoreflect.Message) (*types.FloatRules, error) {
	c, err := extractComparable(m, protoreflect.Value.Float, lessOrdered[float64], math.Float64bits)
	if err != nil {
		return nil, err
	}
	r := &types.FloatRules{Comparable: *c}
	if fd := m.Descriptor().Fields().ByName("finite"); fd != nil && m.Has(fd) {
		r.Finite = m.Get(fd).Bool()
	}
	return r, nil
}

func extractTimestamp(m protoreflect.Message) (*types.TimestampRules, error) {
	c, err := extractComparable(m, momentValue, types.Moment.Less, identity[types.Moment])
	if err != nil {
		return nil, err
	}
	r := &types.TimestampRules{Comparable: *c}
	fields := m.Descriptor().Fields()
	if fd := fields.ByName("lt_now"); fd != nil && m.Has(fd) {
		r.LtNow = m.Get(fd).Bool()
	}
	if fd := fields.ByName("gt_now"); fd != nil && m.Has(fd) {
		r.GtNow = m.Get(fd).Bool()
	}
	if fd := fields.ByName("within"); fd != nil && m.Has(fd) {
		within := momentValue(m.Get(fd))
		r.Within = &within
	}
	return r, nil
}

// checkLength rejects exact combined with min/max, and min > max.
func checkLength(unit string, exact, minimum, maximum *uint64) error {
	if exact != nil && (minimum != nil || maximum != nil) {
		return fmt.Errorf("%w: exact %s length combined with a minimum or maximum", types.ErrLengthConflict, unit)
	}
	if minimum != nil && maximum != nil && *minimum > *maximum {
		return fmt.Errorf("%w: minimum %d %s exceeds maximum %d", types.ErrLengthConflict, *minimum, unit, *maximum)
	}
	return nil
}

func compilePattern(pattern *string) (*regexp.Regexp, error) {
	if pattern == nil {
		return nil, nil
	}
	re, err := regexp.Compile(*pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", types.ErrInvalidPattern, *pattern, err)
	}
	return re, nil
}

func stringSet(values []string) *types.Membership[string, string] {
	if len(values) == 0 {
		return nil
	}
	return types.NewMembership(values, identity[string])
}

func bytesSet(values [][]byte) *types.Membership[[]byte, string] {
	if len(values) == 0 {
		return nil
	}
	return types.NewMembership(values, func(b []byte) string { return string(b) })
}

var stringFormats = map[protoreflect.Name]types.Format{
	"email":               types.FormatEmail,
	"hostname":            types.FormatHostname,
	"ip":                  types.FormatIP,
	"ipv4":                types.FormatIPv4,
	"ipv6":                types.FormatIPv6,
	"uri":                 types.FormatURI,
	"uri_ref":             types.FormatURIRef,
	"address":             types.FormatAddress,
	"uuid":                types.FormatUUID,
	"tuuid":               types.FormatTUUID,
	"ip_with_prefixlen":   types.FormatIPWithPrefixLen,
	"ipv4_with_prefixlen": types.FormatIPv4WithPrefixLen,
	"ipv6_with_prefixlen": types.FormatIPv6WithPrefixLen,
	"ip_prefix":           types.FormatIPPrefix,
	"ipv4_prefix":         types.FormatIPv4Prefix,
	"ipv6_prefix":         types.FormatIPv6Prefix,
	"host_and_port":       types.FormatHostAndPort,
}

var bytesFormats = map[protoreflect.Name]types.Format{
	"ip":   types.FormatIP,
	"ipv4": types.FormatIPv4,
	"ipv6": types.FormatIPv6,
}

const (
	knownRegexHeaderName  = 1
	knownRegexHeaderValue = 2
)

// wellKnown reads the well_known oneof of a string or bytes rules message.
func wellKnown(m protoreflect.Message, table map[protoreflect.Name]types.Format) (types.Format, string, error) {
	od := m.Descriptor().Oneofs().ByName("well_known")
	if od == nil {
		return types.FormatNone, "", nil
	}
	fd := m.WhichOneof(od)
	if fd == nil {
		return types.FormatNone, "", nil
	}
	if fd.Name() == "well_known_regex" {
		switch m.Get(fd).Enum() {
		case knownRegexHeaderName:
			return types.FormatHeaderName, string(fd.Name()), nil
		case knownRegexHeaderValue:
			return types.FormatHeaderValue, string(fd.Name()), nil
		default:
			return types.FormatNone, "", nil
		}
	}
	f, ok := table[fd.Name()]
	if !ok {
		return types.FormatNone, "", fmt.Errorf("%w: unsupported format %s", types.ErrRuleTypeMismatch, fd.Name())
	}
	if !m.Get(fd).Bool() {
		return types.FormatNone, "", nil
	}
	return f, string(fd.Name()), nil
}

func extractString(r *validate.StringRules) (*types.StringRules, error) {
	if err := checkLength("character", r.Len, r.MinLen, r.MaxLen); err != nil {
		return nil, err
	}
	if err := checkLength("byte", r.LenBytes, r.MinBytes, r.MaxBytes); err != nil {
		return nil, err
	}
	pattern, err := compilePattern(r.Pattern)
	if err != nil {
		return nil, err
	}
	out := &types.StringRules{
		Const:       r.Const,
		Len:         r.Len,
		MinLen:      r.MinLen,
		MaxLen:      r.MaxLen,
		LenBytes:    r.LenBytes,
		MinBytes:    r.MinBytes,
		MaxBytes:    r.MaxBytes,
		Prefix:      r.Prefix,
		Suffix:      r.Suffix,
		Contains:    r.Contains,
		NotContains: r.NotContains,
		Pattern:     pattern,
		In:          stringSet(r.GetIn()),
		NotIn:       stringSet(r.GetNotIn()),
		Strict:      true,
	}
	if out.In.Intersects(out.NotIn) {
		return nil, fmt.Errorf("%w: in %q, not_in %q", types.ErrMembershipOverlap, r.GetIn(), r.GetNotIn())
	}

	m := r.ProtoReflect()
	if out.Format, out.FormatRule, err = wellKnown(m, stringFormats); err != nil {
		return nil, err
	}
	if fd := m.Descriptor().Fields().ByName("strict"); fd != nil && m.Has(fd) {
		out.Strict = m.Get(fd).Bool()
	}
	return out, nil
}

func extractBytes(r *validate.BytesRules) (*types.BytesRules, error) {
	if err := checkLength("byte", r.Len, r.MinLen, r.MaxLen); err != nil {
		return nil, err
	}
	pattern, err := compilePattern(r.Pattern)
	if err != nil {
		return nil, err
	}
	out := &types.BytesRules{
		Const:    r.Const,
		HasConst: r.Const != nil,
		Len:      r.Len,
		MinLen:   r.MinLen,
		MaxLen:   r.MaxLen,
		Prefix:   r.Prefix,
		Suffix:   r.Suffix,
		Contains: r.Contains,
		Pattern:  pattern,
		In:       bytesSet(r.GetIn()),
		NotIn:    bytesSet(r.GetNotIn()),
	}
	if out.In.Intersects(out.NotIn) {
		return nil, fmt.Errorf("%w: bytes in/not_in", types.ErrMembershipOverlap)
	}
	if out.Format, out.FormatRule, err = wellKnown(r.ProtoReflect(), bytesFormats); err != nil {
		return nil, err
	}
	return out, nil
}

func extractEnum(ed protoreflect.EnumDescriptor, r *validate.EnumRules) (*types.EnumRules, error) {
	key := identity[int32]
	out := &types.EnumRules{Const: r.Const, DefinedOnly: r.GetDefinedOnly()}
	if in := r.GetIn(); len(in) > 0 {
		for _, n := range in {
			if ed.Values().ByNumber(protoreflect.EnumNumber(n)) == nil {
				return nil, fmt.Errorf("%w: %d is not a value of %s", types.ErrUndefinedEnumValue, n, ed.FullName())
			}
		}
		out.In = types.NewMembership(in, key)
	}
	if notIn := r.GetNotIn(); len(notIn) > 0 {
		out.NotIn = types.NewMembership(notIn, key)
	}
	if out.In.Intersects(out.NotIn) {
		return nil, fmt.Errorf("%w: in %v, not_in %v", types.ErrMembershipOverlap, r.GetIn(), r.GetNotIn())
	}
	return out, nil
}
