// internal/rules/operators.go
package rules

import (
	"strings"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/types"
	"github.com/solatis/protocheck/internal/violations"
)

/*
 * Comparison operators for ordered scalars.
 *
 * One generic constructor serves every ordered family: the integer widths
 * (as int64/uint64), float and double, durations and timestamps (as
 * types.Moment). The family supplies how to read the value, how to print a
 * bound, and the adjectives used in messages ("smaller"/"greater",
 * "shorter"/"longer", "earlier"/"later").
 *
 * Operators:
 *   - const: equality on the value itself
 *   - lt/lte, gt/gte: Less from the rule set; NaN satisfies no bound
 *   - in/not_in: membership on the family key (bit pattern for floats)
 */

// ordering names the two directions of a family in messages.
type ordering struct {
	below, above string
}

var (
	numericOrdering  = ordering{below: "smaller", above: "greater"}
	durationOrdering = ordering{below: "shorter", above: "longer"}
	instantOrdering  = ordering{below: "earlier", above: "later"}
)

// comparableChecks emits the const, bound and membership checks of c under
// the rule prefix cat (e.g. "int32").
func comparableChecks[T comparable, K comparable](
	cat string,
	c *types.Comparable[T, K],
	get func(protoreflect.Value) T,
	show func(T) string,
	words ordering,
) []check {
	if c == nil {
		return nil
	}
	var out []check

	if c.Const != nil {
		want := *c.Const
		rule := cat + ".const"
		out = append(out, check{phase: phaseConst, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if get(v) == want {
				return nil
			}
			return violations.Newf(fc, rule, "%s must be equal to %s", fc.Data.Name, show(want))
		}})
	}

	if u := c.Upper; u != nil {
		rule := cat + "." + upperName(u.Inclusive)
		message := "%s must be " + words.below + " than %s"
		if u.Inclusive {
			message = "%s must be " + words.below + " than or equal to %s"
		}
		out = append(out, check{phase: phaseBounds, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			got := get(v)
			if c.Less(got, u.Value) || (u.Inclusive && got == u.Value) {
				return nil
			}
			return violations.Newf(fc, rule, message, fc.Data.Name, show(u.Value))
		}})
	}

	if l := c.Lower; l != nil {
		rule := cat + "." + lowerName(l.Inclusive)
		message := "%s must be " + words.above + " than %s"
		if l.Inclusive {
			message = "%s must be " + words.above + " than or equal to %s"
		}
		out = append(out, check{phase: phaseBounds, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			got := get(v)
			if c.Less(l.Value, got) || (l.Inclusive && got == l.Value) {
				return nil
			}
			return violations.Newf(fc, rule, message, fc.Data.Name, show(l.Value))
		}})
	}

	out = append(out, membershipChecks(cat, c.In, c.NotIn, func(v protoreflect.Value) K { return c.Key(get(v)) }, show)...)
	return out
}

// membershipChecks emits in/not_in checks. key reads the lookup key of a value.
func membershipChecks[T any, K comparable](
	cat string,
	in, notIn *types.Membership[T, K],
	key func(protoreflect.Value) K,
	show func(T) string,
) []check {
	var out []check
	if in != nil {
		rule := cat + ".in"
		listed := showValues(in.Values, show)
		out = append(out, check{phase: phaseMembership, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if in.Has(key(v)) {
				return nil
			}
			return violations.Newf(fc, rule, "%s must be one of these values: [ %s ]", fc.Data.Name, listed)
		}})
	}
	if notIn != nil {
		rule := cat + ".not_in"
		listed := showValues(notIn.Values, show)
		out = append(out, check{phase: phaseMembership, rule: rule, fn: func(_ *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
			if !notIn.Has(key(v)) {
				return nil
			}
			return violations.Newf(fc, rule, "%s cannot be one of these values: [ %s ]", fc.Data.Name, listed)
		}})
	}
	return out
}

func showValues[T any](values []T, show func(T) string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = show(v)
	}
	return strings.Join(parts, ", ")
}
