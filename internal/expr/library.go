package expr

import (
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/solatis/protocheck/internal/formats"
)

// formatLibrary exposes the well-known format predicates to expressions,
// e.g. `this.isEmail()` or `this.isIp(4)`.
type formatLibrary struct{}

func (formatLibrary) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		stringPredicate("isEmail", formats.IsEmail),
		stringPredicate("isHostname", formats.IsHostname),
		stringPredicate("isUri", formats.IsURI),
		stringPredicate("isUriRef", formats.IsURIRef),
		cel.Function("isIp",
			cel.MemberOverload("string_is_ip_bool", []*cel.Type{cel.StringType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.Value().(string)
					if !ok {
						return types.UnsupportedRefValConversionErr(v)
					}
					return types.Bool(formats.IsIP(s, 0))
				})),
			cel.MemberOverload("string_int_is_ip_bool", []*cel.Type{cel.StringType, cel.IntType}, cel.BoolType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					s, ok := lhs.Value().(string)
					if !ok {
						return types.UnsupportedRefValConversionErr(lhs)
					}
					version, ok := rhs.Value().(int64)
					if !ok {
						return types.UnsupportedRefValConversionErr(rhs)
					}
					return types.Bool(formats.IsIP(s, int(version)))
				})),
		),
		cel.Function("isHostAndPort",
			cel.MemberOverload("string_bool_is_host_and_port_bool", []*cel.Type{cel.StringType, cel.BoolType}, cel.BoolType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					s, ok := lhs.Value().(string)
					if !ok {
						return types.UnsupportedRefValConversionErr(lhs)
					}
					portRequired, ok := rhs.Value().(bool)
					if !ok {
						return types.UnsupportedRefValConversionErr(rhs)
					}
					return types.Bool(formats.IsHostAndPort(s, portRequired))
				})),
		),
		cel.Function("isNan",
			cel.MemberOverload("double_is_nan_bool", []*cel.Type{cel.DoubleType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					f, ok := v.Value().(float64)
					if !ok {
						return types.UnsupportedRefValConversionErr(v)
					}
					return types.Bool(math.IsNaN(f))
				})),
		),
		cel.Function("isInf",
			cel.MemberOverload("double_is_inf_bool", []*cel.Type{cel.DoubleType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					f, ok := v.Value().(float64)
					if !ok {
						return types.UnsupportedRefValConversionErr(v)
					}
					return types.Bool(math.IsInf(f, 0))
				})),
		),
	}
}

func (formatLibrary) ProgramOptions() []cel.ProgramOption {
	return nil
}

func stringPredicate(name string, fn func(string) bool) cel.EnvOption {
	return cel.Function(name,
		cel.MemberOverload("string_"+name+"_bool", []*cel.Type{cel.StringType}, cel.BoolType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				s, ok := v.Value().(string)
				if !ok {
					return types.UnsupportedRefValConversionErr(v)
				}
				return types.Bool(fn(s))
			})),
	)
}
