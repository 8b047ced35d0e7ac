// internal/rules/checks.go
package rules

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/formats"
	"github.com/solatis/protocheck/internal/types"
	"github.com/solatis/protocheck/internal/violations"
)

// scalarChecks emits the checks of one scalar-shaped value: a singular
// field, a repeated item, a map key or a map value. fd describes the value
// after wrapper unwrapping.
func scalarChecks(rs *types.RuleSet, fd protoreflect.FieldDescriptor) []check {
	cat := rs.Category.String()
	switch {
	case rs.Signed != nil:
		return comparableChecks(cat, rs.Signed, protoreflect.Value.Int, showInt, numericOrdering)
	case rs.Unsigned != nil:
		return comparableChecks(cat, rs.Unsigned, protoreflect.Value.Uint, showUint, numericOrdering)
	case rs.Float != nil:
		return floatChecks(cat, rs.Float)
	case rs.Duration != nil:
		return comparableChecks(cat, rs.Duration, momentValue, types.Moment.String, durationOrdering)
	case rs.Timestamp != nil:
		return timestampChecks(cat, rs.Timestamp)
	case rs.Bool != nil:
		return boolChecks(cat, rs.Bool)
	case rs.String != nil:
		return stringChecks(cat, rs.String)
	case rs.Bytes != nil:
		return bytesChecks(cat, rs.Bytes)
	case rs.Enum != nil:
		return enumChecks(cat, rs.Enum, fd.Enum())
	case rs.Any != nil:
		return anyChecks(cat, rs.Any)
	}
	return nil
}

func plural(n uint64) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func showInt(v int64) string { return strconv.FormatInt(v, 10) }
func showUint(v uint64) string { return strconv.FormatUint(v, 10) }
func showFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
func showQuoted(s string) string { return strconv.Quote(s) }
func showHex(b []byte) string { return fmt.Sprintf("%x", b) }

func showInstant(m types.Moment) string {
	return m.Time().Format(time.RFC3339Nano)
}

func floatChecks(cat string, r *types.FloatRules) []check {
	out := comparableChecks(cat, &r.Comparable, protoreflect.Value.Float, showFloat, numericOrdering)
	if r.Finite {
		rule := cat + ".finite"
		out = append(out, check{phase: phaseFinite, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			f := v.Float()
			if !math.IsNaN(f) {
				return nil
			}
			return violations.Newf(fc, rule, "%s must be a finite number", fc.Data.Name)
		}})
	}
	return out
}

func timestampChecks(cat string, r *types.TimestampRules) []check {
	out := comparableChecks(cat, &r.Comparable, momentValue, showInstant, instantOrdering)
	if r.LtNow {
		rule := cat + ".lt_now"
		out = append(out, check{phase: phaseTime, rule: rule, fn: func(rn *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if momentValue(v).Less(rn.nowMoment) {
				return nil
			}
			return violations.Newf(fc, rule, "%s has to be in the past", fc.Data.Name)
		}})
	}
	if r.GtNow {
		rule := cat + ".gt_now"
		out = append(out, check{phase: phaseTime, rule: rule, fn: func(rn *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if rn.nowMoment.Less(momentValue(v)) {
				return nil
			}
			return violations.Newf(fc, rule, "%s has to be in the future", fc.Data.Name)
		}})
	}
	if r.Within != nil {
		within := *r.Within
		rule := cat + ".within"
		out = append(out, check{phase: phaseTime, rule: rule, fn: func(rn *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			got := momentValue(v)
			earliest := rn.nowMoment.Sub(within)
			latest := rn.nowMoment.Add(within)
			if !got.Less(earliest) && !latest.Less(got) {
				return nil
			}
			return violations.Newf(fc, rule, "%s has to be within %s from now", fc.Data.Name, within)
		}})
	}
	return out
}

func boolChecks(cat string, r *types.BoolRules) []check {
	if r.Const == nil {
		return nil
	}
	want := *r.Const
	rule := cat + ".const"
	return []check{{phase: phaseConst, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
		if v.Bool() == want {
			return nil
		}
		return violations.Newf(fc, rule, "%s must be equal to %t", fc.Data.Name, want)
	}}}
}

// lengthCheck emits one exact/minimum/maximum length check. measure returns
// the size of a value in unit.
func lengthCheck(rule string, p phase, limit uint64, unit string, kind lengthKind, measure func(protoreflect.Value) uint64) check {
	var message string
	switch kind {
	case lengthExact:
		message = fmt.Sprintf("must be exactly %d %s%s long", limit, unit, plural(limit))
	case lengthMin:
		message = fmt.Sprintf("cannot be shorter than %d %s%s", limit, unit, plural(limit))
	case lengthMax:
		message = fmt.Sprintf("cannot be longer than %d %s%s", limit, unit, plural(limit))
	}
	return check{phase: p, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
		n := measure(v)
		var ok bool
		switch kind {
		case lengthExact:
			ok = n == limit
		case lengthMin:
			ok = n >= limit
		case lengthMax:
			ok = n <= limit
		}
		if ok {
			return nil
		}
		return violations.New(fc, rule, fc.Data.Name+" "+message)
	}}
}

type lengthKind int

const (
	lengthExact lengthKind = iota
	lengthMin
	lengthMax
)

// lengthChecks emits the checks of one exact/min/max triple.
func lengthChecks(prefix string, names [3]string, exact, minimum, maximum *uint64, unit string, p phase, measure func(protoreflect.Value) uint64) []check {
	var out []check
	if exact != nil {
		out = append(out, lengthCheck(prefix+names[0], p, *exact, unit, lengthExact, measure))
	}
	if minimum != nil {
		out = append(out, lengthCheck(prefix+names[1], p, *minimum, unit, lengthMin, measure))
	}
	if maximum != nil {
		out = append(out, lengthCheck(prefix+names[2], p, *maximum, unit, lengthMax, measure))
	}
	return out
}

func runeCount(v protoreflect.Value) uint64 { return uint64(utf8.RuneCountInString(v.String())) }
func byteCount(v protoreflect.Value) uint64 { return uint64(len(v.String())) }
func rawCount(v protoreflect.Value) uint64 { return uint64(len(v.Bytes())) }

// stringCheck builds a check from a predicate on the string value.
func stringCheck(p phase, rule string, ok func(string) bool, message string) check {
	return check{phase: p, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
		if ok(v.String()) {
			return nil
		}
		return violations.New(fc, rule, fc.Data.Name+" "+message)
	}}
}

func stringChecks(cat string, r *types.StringRules) []check {
	var out []check
	if r.Const != nil {
		want := *r.Const
		out = append(out, stringCheck(phaseConst, cat+".const", func(s string) bool { return s == want },
			"must be equal to "+showQuoted(want)))
	}
	out = append(out, lengthChecks(cat+".", [3]string{"len", "min_len", "max_len"}, r.Len, r.MinLen, r.MaxLen, "character", phaseLength, runeCount)...)
	out = append(out, lengthChecks(cat+".", [3]string{"len_bytes", "min_bytes", "max_bytes"}, r.LenBytes, r.MinBytes, r.MaxBytes, "byte", phaseLength, byteCount)...)

	if r.Prefix != nil {
		prefix := *r.Prefix
		out = append(out, stringCheck(phaseSubstring, cat+".prefix", func(s string) bool { return strings.HasPrefix(s, prefix) },
			fmt.Sprintf("must start with '%s'", prefix)))
	}
	if r.Suffix != nil {
		suffix := *r.Suffix
		out = append(out, stringCheck(phaseSubstring, cat+".suffix", func(s string) bool { return strings.HasSuffix(s, suffix) },
			fmt.Sprintf("must end with '%s'", suffix)))
	}
	if r.Contains != nil {
		sub := *r.Contains
		out = append(out, stringCheck(phaseSubstring, cat+".contains", func(s string) bool { return strings.Contains(s, sub) },
			fmt.Sprintf("must contain the substring '%s'", sub)))
	}
	if r.NotContains != nil {
		sub := *r.NotContains
		out = append(out, stringCheck(phaseSubstring, cat+".not_contains", func(s string) bool { return !strings.Contains(s, sub) },
			fmt.Sprintf("must not contain the substring '%s'", sub)))
	}
	if r.Pattern != nil {
		re := r.Pattern
		out = append(out, stringCheck(phasePattern, cat+".pattern", re.MatchString,
			fmt.Sprintf("must match the following regex: `%s`", re.String())))
	}
	out = append(out, membershipChecks(cat, r.In, r.NotIn, protoreflect.Value.String, showQuoted)...)

	if r.Format != types.FormatNone {
		out = append(out, stringFormatCheck(cat, r))
	}
	return out
}

var formatLabels = map[types.Format]string{
	types.FormatEmail:             "email address",
	types.FormatHostname:          "hostname",
	types.FormatIP:                "IP address",
	types.FormatIPv4:              "IPv4 address",
	types.FormatIPv6:              "IPv6 address",
	types.FormatURI:               "URI",
	types.FormatURIRef:            "URI reference",
	types.FormatAddress:           "hostname or IP address",
	types.FormatUUID:              "UUID",
	types.FormatTUUID:             "trimmed UUID",
	types.FormatIPWithPrefixLen:   "IP address with prefix length",
	types.FormatIPv4WithPrefixLen: "IPv4 address with prefix length",
	types.FormatIPv6WithPrefixLen: "IPv6 address with prefix length",
	types.FormatIPPrefix:          "IP prefix",
	types.FormatIPv4Prefix:        "IPv4 prefix",
	types.FormatIPv6Prefix:        "IPv6 prefix",
	types.FormatHostAndPort:       "host and port pair",
	types.FormatHeaderName:        "HTTP header name",
	types.FormatHeaderValue:       "HTTP header value",
}

func stringFormatCheck(cat string, r *types.StringRules) check {
	key := cat + "." + r.FormatRule
	id := key
	switch r.Format {
	case types.FormatHeaderName:
		id = key + ".header_name"
	case types.FormatHeaderValue:
		id = key + ".header_value"
	}
	format, strict := r.Format, r.Strict
	message := "must be a valid " + formatLabels[format]
	return check{phase: phaseFormat, rule: key, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
		if formats.String(format, v.String(), strict) {
			return nil
		}
		return violations.NewWithID(fc, id, key, fc.Data.Name+" "+message)
	}}
}

// bytesCheck builds a check from a predicate on the bytes value.
func bytesCheck(p phase, rule string, ok func([]byte) bool, message string) check {
	return check{phase: p, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
		if ok(v.Bytes()) {
			return nil
		}
		return violations.New(fc, rule, fc.Data.Name+" "+message)
	}}
}

func bytesChecks(cat string, r *types.BytesRules) []check {
	var out []check
	if r.HasConst {
		want := r.Const
		out = append(out, bytesCheck(phaseConst, cat+".const", func(b []byte) bool { return bytes.Equal(b, want) },
			"must be equal to "+showHex(want)))
	}
	out = append(out, lengthChecks(cat+".", [3]string{"len", "min_len", "max_len"}, r.Len, r.MinLen, r.MaxLen, "byte", phaseLength, rawCount)...)

	if r.Prefix != nil {
		prefix := r.Prefix
		out = append(out, bytesCheck(phaseSubstring, cat+".prefix", func(b []byte) bool { return bytes.HasPrefix(b, prefix) },
			"must start with "+showHex(prefix)))
	}
	if r.Suffix != nil {
		suffix := r.Suffix
		out = append(out, bytesCheck(phaseSubstring, cat+".suffix", func(b []byte) bool { return bytes.HasSuffix(b, suffix) },
			"must end with "+showHex(suffix)))
	}
	if r.Contains != nil {
		sub := r.Contains
		out = append(out, bytesCheck(phaseSubstring, cat+".contains", func(b []byte) bool { return bytes.Contains(b, sub) },
			"must contain "+showHex(sub)))
	}
	if r.Pattern != nil {
		re := r.Pattern
		// Patterns apply to the UTF-8 text of the value; invalid UTF-8 never matches.
		out = append(out, bytesCheck(phasePattern, cat+".pattern", func(b []byte) bool { return utf8.Valid(b) && re.Match(b) },
			fmt.Sprintf("must match the following regex: `%s`", re.String())))
	}
	out = append(out, membershipChecks(cat, r.In, r.NotIn,
		func(v protoreflect.Value) string { return string(v.Bytes()) }, showHex)...)

	if r.Format != types.FormatNone {
		format := r.Format
		out = append(out, bytesCheck(phaseFormat, cat+"."+r.FormatRule, func(b []byte) bool { return formats.Bytes(format, b) },
			"must be a valid "+formatLabels[format]))
	}
	return out
}

func enumNumber(v protoreflect.Value) int32 { return int32(v.Enum()) }

func showEnum(n int32) string { return strconv.FormatInt(int64(n), 10) }

func enumChecks(cat string, r *types.EnumRules, ed protoreflect.EnumDescriptor) []check {
	var out []check
	if r.Const != nil {
		want := *r.Const
		rule := cat + ".const"
		out = append(out, check{phase: phaseConst, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if enumNumber(v) == want {
				return nil
			}
			return violations.Newf(fc, rule, "%s must be equal to %d", fc.Data.Name, want)
		}})
	}
	out = append(out, membershipChecks(cat, r.In, r.NotIn, enumNumber, showEnum)...)
	if r.DefinedOnly && ed != nil {
		rule := cat + ".defined_only"
		values := ed.Values()
		out = append(out, check{phase: phaseDefined, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if values.ByNumber(v.Enum()) != nil {
				return nil
			}
			return violations.Newf(fc, rule, "field %s must be a defined value of %s", fc.Data.Name, ed.Name())
		}})
	}
	return out
}

// typeURL reads the type_url of a google.protobuf.Any value.
func typeURL(v protoreflect.Value) string {
	msg := v.Message()
	return msg.Get(msg.Descriptor().Fields().ByNumber(1)).String()
}

func anyChecks(cat string, r *types.AnyRules) []check {
	var out []check
	if r.In != nil {
		rule := cat + ".in"
		listed := strings.Join(r.In.Values, ", ")
		out = append(out, check{phase: phaseMembership, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if r.In.Has(typeURL(v)) {
				return nil
			}
			return violations.Newf(fc, rule, "%s must have one of these type URLs: [ %s ]", fc.Data.Name, listed)
		}})
	}
	if r.NotIn != nil {
		rule := cat + ".not_in"
		listed := strings.Join(r.NotIn.Values, ", ")
		out = append(out, check{phase: phaseMembership, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if !r.NotIn.Has(typeURL(v)) {
				return nil
			}
			return violations.Newf(fc, rule, "%s cannot have one of these type URLs: [ %s ]", fc.Data.Name, listed)
		}})
	}
	return out
}

func listLen(v protoreflect.Value) uint64 { return uint64(v.List().Len()) }
func mapLen(v protoreflect.Value) uint64 { return uint64(v.Map().Len()) }

func repeatedChecks(r *types.RepeatedRules, fd protoreflect.FieldDescriptor) []check {
	var out []check
	if r.MinItems != nil {
		limit, rule := *r.MinItems, "repeated.min_items"
		out = append(out, check{phase: phaseLength, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if listLen(v) >= limit {
				return nil
			}
			return violations.Newf(fc, rule, "%s must contain at least %d item%s", fc.Data.Name, limit, plural(limit))
		}})
	}
	if r.MaxItems != nil {
		limit, rule := *r.MaxItems, "repeated.max_items"
		out = append(out, check{phase: phaseLength, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if listLen(v) <= limit {
				return nil
			}
			return violations.Newf(fc, rule, "%s cannot contain more than %d item%s", fc.Data.Name, limit, plural(limit))
		}})
	}
	if r.Unique {
		rule := "repeated.unique"
		kind := fd.Kind()
		out = append(out, check{phase: phaseUnique, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			list := v.List()
			seen := make(map[any]struct{}, list.Len())
			for i := 0; i < list.Len(); i++ {
				k := uniqueKey(kind, list.Get(i))
				if _, dup := seen[k]; dup {
					return violations.Newf(fc, rule, "%s must contain unique values", fc.Data.Name)
				}
				seen[k] = struct{}{}
			}
			return nil
		}})
	}
	return out
}

// uniqueKey returns a comparable key for a scalar list item. Floats compare
// by value, so NaN items never collide.
func uniqueKey(kind protoreflect.Kind, v protoreflect.Value) any {
	switch kind {
	case protoreflect.BytesKind:
		return string(v.Bytes())
	case protoreflect.EnumKind:
		return v.Enum()
	default:
		return v.Interface()
	}
}

func mapChecks(r *types.MapRules) []check {
	var out []check
	if r.MinPairs != nil {
		limit, rule := *r.MinPairs, "map.min_pairs"
		out = append(out, check{phase: phaseLength, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if mapLen(v) >= limit {
				return nil
			}
			return violations.Newf(fc, rule, "map field `%s` requires at least %d item%s", fc.Data.Name, limit, plural(limit))
		}})
	}
	if r.MaxPairs != nil {
		limit, rule := *r.MaxPairs, "map.max_pairs"
		out = append(out, check{phase: phaseLength, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if mapLen(v) <= limit {
				return nil
			}
			return violations.Newf(fc, rule, "map field `%s` cannot have more than %d item%s", fc.Data.Name, limit, plural(limit))
		}})
	}
	return out
}
