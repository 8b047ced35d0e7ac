// internal/types/rules.go
package types

/*
 * Typed rule sets decoded from (buf.validate.field) options.
 *
 * The rule extractor in internal/rules fills these structures once per
 * field; the compiler turns them into ordered checks. Everything here is
 * read-only after extraction.
 *
 * Key types:
 *   - RuleSet: discriminated union over the scalar family of a field
 *   - Comparable: const, bounds and membership for ordered scalars
 *   - Membership: declared values plus a precomputed lookup set
 *   - StringRules/BytesRules: length, substring, pattern and format rules
 *   - RepeatedRules/MapRules: collection rules plus item/key/value sub-sets
 */

import (
	"regexp"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
)

// Category names the rule family of a RuleSet. String returns the name of
// the matching FieldRules field.
type Category int

const (
	CategoryNone Category = iota
	CategoryFloat
	CategoryDouble
	CategoryInt32
	CategoryInt64
	CategoryUint32
	CategoryUint64
	CategorySint32
	CategorySint64
	CategoryFixed32
	CategoryFixed64
	CategorySfixed32
	CategorySfixed64
	CategoryBool
	CategoryString
	CategoryBytes
	CategoryEnum
	CategoryRepeated
	CategoryMap
	CategoryAny
	CategoryDuration
	CategoryTimestamp
)

var categoryNames = [...]string{
	CategoryNone:      "",
	CategoryFloat:     "float",
	CategoryDouble:    "double",
	CategoryInt32:     "int32",
	CategoryInt64:     "int64",
	CategoryUint32:    "uint32",
	CategoryUint64:    "uint64",
	CategorySint32:    "sint32",
	CategorySint64:    "sint64",
	CategoryFixed32:   "fixed32",
	CategoryFixed64:   "fixed64",
	CategorySfixed32:  "sfixed32",
	CategorySfixed64:  "sfixed64",
	CategoryBool:      "bool",
	CategoryString:    "string",
	CategoryBytes:     "bytes",
	CategoryEnum:      "enum",
	CategoryRepeated:  "repeated",
	CategoryMap:       "map",
	CategoryAny:       "any",
	CategoryDuration:  "duration",
	CategoryTimestamp: "timestamp",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// CategoryByName resolves a FieldRules field name.
func CategoryByName(name string) (Category, bool) {
	for i, n := range categoryNames {
		if n != "" && n == name {
			return Category(i), true
		}
	}
	return CategoryNone, false
}

// Bound is one side of an interval.
type Bound[T any] struct {
	Value     T
	Inclusive bool // lte/gte rather than lt/gt
}

// Membership holds the declared values of an in or not_in rule and a set
// keyed by their comparison key.
type Membership[T any, K comparable] struct {
	Values []T
	keys   map[K]struct{}
}

// NewMembership builds the lookup set for values.
func NewMembership[T any, K comparable](values []T, key func(T) K) *Membership[T, K] {
	m := &Membership[T, K]{Values: values, keys: make(map[K]struct{}, len(values))}
	for _, v := range values {
		m.keys[key(v)] = struct{}{}
	}
	return m
}

// Has reports whether k is in the set.
func (m *Membership[T, K]) Has(k K) bool {
	if m == nil {
		return false
	}
	_, ok := m.keys[k]
	return ok
}

// Len returns the number of distinct keys.
func (m *Membership[T, K]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Comparable holds the rules shared by every ordered scalar family.
// K is the membership key: the value itself, or its bit pattern for floats.
type Comparable[T comparable, K comparable] struct {
	Const *T
	Upper *Bound[T] // lt or lte
	Lower *Bound[T] // gt or gte
	In    *Membership[T, K]
	NotIn *Membership[T, K]

	Less func(a, b T) bool
	Key  func(T) K
}

// FloatRules extends the float/double family with finite.
type FloatRules struct {
	Comparable[float64, uint64]
	Finite bool
}

// TimestampRules extends the timestamp family with time-relative rules.
type TimestampRules struct {
	Comparable[Moment, Moment]
	LtNow  bool
	GtNow  bool
	Within *Moment
}

// Format names a well-known string or bytes shape.
type Format int

const (
	FormatNone Format = iota
	FormatEmail
	FormatHostname
	FormatIP
	FormatIPv4
	FormatIPv6
	FormatURI
	FormatURIRef
	FormatAddress
	FormatUUID
	FormatTUUID
	FormatIPWithPrefixLen
	FormatIPv4WithPrefixLen
	FormatIPv6WithPrefixLen
	FormatIPPrefix
	FormatIPv4Prefix
	FormatIPv6Prefix
	FormatHostAndPort
	FormatHeaderName
	FormatHeaderValue
)

// StringRules are the rules of the string family.
type StringRules struct {
	Const *string

	Len, MinLen, MaxLen          *uint64 // characters
	LenBytes, MinBytes, MaxBytes *uint64 // UTF-8 bytes

	Prefix, Suffix, Contains, NotContains *string

	Pattern *regexp.Regexp
	In      *Membership[string, string]
	NotIn   *Membership[string, string]

	Format     Format
	FormatRule string // FieldRules field name that selected Format
	Strict     bool   // header formats only
}

// BytesRules are the rules of the bytes family. Byte slices are nil when unset.
type BytesRules struct {
	Const    []byte
	HasConst bool

	Len, MinLen, MaxLen *uint64

	Prefix, Suffix, Contains []byte

	Pattern *regexp.Regexp
	In      *Membership[[]byte, string]
	NotIn   *Membership[[]byte, string]

	Format     Format
	FormatRule string
}

// EnumRules are the rules of the enum family.
type EnumRules struct {
	Const       *int32
	DefinedOnly bool
	In          *Membership[int32, int32]
	NotIn       *Membership[int32, int32]
}

// BoolRules are the rules of the bool family.
type BoolRules struct {
	Const *bool
}

// AnyRules restrict the type URL of a google.protobuf.Any.
type AnyRules struct {
	In    *Membership[string, string]
	NotIn *Membership[string, string]
}

// RepeatedRules apply to a list and, through Items, to each element.
type RepeatedRules struct {
	MinItems, MaxItems *uint64
	Unique             bool
	Items              *RuleSet
}

// MapRules apply to a map and, through Keys and Values, to each entry.
type MapRules struct {
	MinPairs, MaxPairs *uint64
	Keys               *RuleSet
	Values             *RuleSet
}

// RuleSet is the typed form of one field's rules. Exactly the family pointer
// matching Category is set; all are nil for CategoryNone.
type RuleSet struct {
	Category Category
	Required bool
	Ignore   Ignore
	Custom   []*validate.Rule

	Signed    *Comparable[int64, int64]
	Unsigned  *Comparable[uint64, uint64]
	Float     *FloatRules
	Bool      *BoolRules
	String    *StringRules
	Bytes     *BytesRules
	Enum      *EnumRules
	Any       *AnyRules
	Duration  *Comparable[Moment, Moment]
	Timestamp *TimestampRules
	Repeated  *RepeatedRules
	Map       *MapRules
}

// Empty reports whether rs carries nothing to check.
func (rs *RuleSet) Empty() bool {
	return rs == nil || (rs.Category == CategoryNone && !rs.Required && len(rs.Custom) == 0)
}

// Intersects reports whether m and o share a key. The shorter set is
// iterated against the longer one.
func (m *Membership[T, K]) Intersects(o *Membership[T, K]) bool {
	if m == nil || o == nil {
		return false
	}
	small, large := m, o
	if len(small.keys) > len(large.keys) {
		small, large = large, small
	}
	for k := range small.keys {
		if large.Has(k) {
			return true
		}
	}
	return false
}
