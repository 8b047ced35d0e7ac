// internal/rules/compile.go
package rules

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/solatis/protocheck/internal/expr"
	"github.com/solatis/protocheck/internal/types"
)

/*
 * Plan compilation.
 *
 * Turns a message descriptor and the rules attached to its fields, oneofs
 * and the message itself into a messagePlan: an ordered list of members
 * (fields and oneofs in declaration order) followed by message-level
 * custom rules.
 *
 * Compilation workflow per message:
 *   1. Insert an empty plan into the cache (recursive schemas resolve to it)
 *   2. Extract each field's RuleSet; collect schema errors per field
 *   3. Build value plans: scalar checks, collection checks, item/key/value
 *      sub-plans, nested message plans
 *   4. Order each value plan's checks by phase (see order.go)
 *   5. Aggregate the errors of every plan reachable from the new ones
 *
 * Plans are keyed by descriptor identity and cached in a copy-on-write map:
 * lookups are a single atomic load; builds serialise on a mutex, clone the
 * map, and publish it when every plan of the build is complete. A
 * published plan is never modified.
 *
 * Fields declared IGNORE_ALWAYS and fields with nothing to check are left
 * out of the plan. Messages from the google.protobuf package are never
 * recursed into; their rules are expressed on the referencing field.
 */

// checkFunc runs one rule against a value. It returns nil when the value
// satisfies the rule.
type checkFunc func(r *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation

type check struct {
	phase phase
	rule  string
	fn    checkFunc
}

// valuePlan validates one value: a field, a list item, a map key or value.
type valuePlan struct {
	desc    protoreflect.FieldDescriptor
	element bool // desc is a list field and the value one of its items
	ignore  types.Ignore
	unwrap  protoreflect.FieldDescriptor // value field of a wrapper message
	checks  []check

	message *messagePlan
	items   *valuePlan
	keys    *valuePlan
	values  *valuePlan
	keyKind protoreflect.Kind
}

func (vp *valuePlan) empty() bool {
	return vp == nil || (len(vp.checks) == 0 && vp.message == nil &&
		vp.items.empty() && vp.keys.empty() && vp.values.empty())
}

type fieldPlan struct {
	desc     protoreflect.FieldDescriptor
	data     *types.FieldData
	kind     types.FieldKind
	required bool
	ignore   types.Ignore
	value    *valuePlan
}

type oneofPlan struct {
	desc     protoreflect.OneofDescriptor
	required bool
	variants map[protoreflect.Name]*fieldPlan
}

// member is a field or a oneof, in declaration order.
type member struct {
	field *fieldPlan
	oneof *oneofPlan
}

type messagePlan struct {
	desc     protoreflect.MessageDescriptor
	members  []member
	custom   []*validate.Rule
	children []*messagePlan

	ownErr error // schema errors of this message's own declarations
	err    error // ownErr plus those of every reachable message
}

type planCache map[protoreflect.MessageDescriptor]*messagePlan

func (c planCache) clone() planCache {
	out := make(planCache, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// planner is a build-through cache of message plans.
type planner struct {
	mu     sync.Mutex
	cache  atomic.Pointer[planCache]
	bridge *expr.Bridge
	logger *slog.Logger
}

func newPlanner(bridge *expr.Bridge, logger *slog.Logger) *planner {
	p := &planner{bridge: bridge, logger: logger}
	p.cache.Store(&planCache{})
	return p
}

// load returns the plan of desc, building it and every plan it reaches on
// first use.
func (p *planner) load(desc protoreflect.MessageDescriptor) *messagePlan {
	if plan, ok := (*p.cache.Load())[desc]; ok {
		return plan
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cache := *p.cache.Load()
	if plan, ok := cache[desc]; ok {
		return plan
	}

	start := time.Now()
	next := cache.clone()
	var built []*messagePlan
	plan := p.build(desc, next, &built)
	for _, b := range built {
		b.err = reachableErrors(b)
	}
	p.cache.Store(&next)

	p.logger.Debug("compiled validation plan",
		"message", desc.FullName(),
		"messages", len(built),
		"members", len(plan.members),
		"duration", time.Since(start))
	return plan
}

func (p *planner) build(desc protoreflect.MessageDescriptor, cache planCache, built *[]*messagePlan) *messagePlan {
	if plan, ok := cache[desc]; ok {
		return plan
	}
	plan := &messagePlan{desc: desc}
	cache[desc] = plan
	*built = append(*built, plan)

	var errs *multierror.Error
	mr, err := messageRules(desc)
	if err != nil {
		errs = multierror.Append(errs, &types.SchemaError{Message: string(desc.FullName()), Err: err})
	}
	plan.custom = mr.GetCel()
	p.bridge.Precompile(plan.custom)

	fields := desc.Fields()
	seen := make(map[protoreflect.FullName]bool)
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if od := fd.ContainingOneof(); od != nil && !od.IsSynthetic() {
			if seen[od.FullName()] {
				continue
			}
			seen[od.FullName()] = true
			op, err := p.buildOneof(od, plan, cache, built)
			errs = multierror.Append(errs, err)
			if op != nil {
				plan.members = append(plan.members, member{oneof: op})
			}
			continue
		}
		fp, err := p.buildField(fd, plan, cache, built)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if fp != nil {
			plan.members = append(plan.members, member{field: fp})
		}
	}
	plan.ownErr = errs.ErrorOrNil()
	return plan
}

func (p *planner) buildOneof(od protoreflect.OneofDescriptor, parent *messagePlan, cache planCache, built *[]*messagePlan) (*oneofPlan, error) {
	var errs *multierror.Error
	or, err := oneofRules(od)
	if err != nil {
		errs = multierror.Append(errs, &types.SchemaError{
			Message: string(parent.desc.FullName()),
			Field:   string(od.Name()),
			Err:     err,
		})
	}
	op := &oneofPlan{
		desc:     od,
		required: or.GetRequired(),
		variants: make(map[protoreflect.Name]*fieldPlan),
	}
	fields := od.Fields()
	for i := 0; i < fields.Len(); i++ {
		fp, err := p.buildField(fields.Get(i), parent, cache, built)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if fp != nil {
			op.variants[fp.desc.Name()] = fp
		}
	}
	if !op.required && len(op.variants) == 0 {
		return nil, errs.ErrorOrNil()
	}
	return op, errs.ErrorOrNil()
}

func (p *planner) buildField(fd protoreflect.FieldDescriptor, parent *messagePlan, cache planCache, built *[]*messagePlan) (*fieldPlan, error) {
	fr, err := fieldRules(fd)
	var rs *types.RuleSet
	if err == nil {
		rs, err = Extract(fd, fr)
	}
	if err != nil {
		return nil, &types.SchemaError{
			Message: string(parent.desc.FullName()),
			Field:   string(fd.Name()),
			Err:     err,
		}
	}
	if rs.Ignore == types.IgnoreAlways {
		return nil, nil
	}

	data := types.NewFieldData(fd)
	data.Required = rs.Required
	data.Ignore = rs.Ignore
	fp := &fieldPlan{
		desc:     fd,
		data:     data,
		kind:     kindOf(fd),
		required: rs.Required,
		ignore:   rs.Ignore,
	}
	fp.value = p.buildValue(fd, rs, false, parent, cache, built)
	if !fp.required && fp.value.empty() {
		return nil, nil
	}
	return fp, nil
}

func kindOf(fd protoreflect.FieldDescriptor) types.FieldKind {
	switch {
	case fd.IsMap():
		return types.KindMap
	case fd.IsList():
		return types.KindRepeated
	default:
		return types.KindSingle
	}
}

// buildValue plans one value described by fd. element marks a list item.
func (p *planner) buildValue(fd protoreflect.FieldDescriptor, rs *types.RuleSet, element bool, parent *messagePlan, cache planCache, built *[]*messagePlan) *valuePlan {
	vp := &valuePlan{desc: fd, element: element, ignore: rs.Ignore}
	celField, celElement := fd, element

	switch {
	case fd.IsMap() && !element:
		if rs.Map != nil {
			vp.checks = mapChecks(rs.Map)
			vp.keys = p.buildValue(fd.MapKey(), orEmpty(rs.Map.Keys), false, parent, cache, built)
			vp.values = p.buildValue(fd.MapValue(), orEmpty(rs.Map.Values), false, parent, cache, built)
		} else {
			vp.values = p.buildValue(fd.MapValue(), &types.RuleSet{}, false, parent, cache, built)
		}
		vp.keyKind = fd.MapKey().Kind()
	case fd.IsList() && !element:
		items := &types.RuleSet{}
		if rs.Repeated != nil {
			vp.checks = repeatedChecks(rs.Repeated, fd)
			items = orEmpty(rs.Repeated.Items)
		}
		vp.items = p.buildValue(fd, items, true, parent, cache, built)
	case fd.Message() != nil:
		md := fd.Message()
		if inner := wrapperValue(md); inner != nil {
			vp.unwrap = inner
			celField, celElement = inner, false
			vp.checks = scalarChecks(rs, inner)
			break
		}
		vp.checks = scalarChecks(rs, fd)
		if md.ParentFile().Package() != "google.protobuf" {
			vp.message = p.build(md, cache, built)
			parent.children = append(parent.children, vp.message)
		}
	default:
		vp.checks = scalarChecks(rs, fd)
	}

	p.bridge.Precompile(rs.Custom)
	for _, rule := range rs.Custom {
		vp.checks = append(vp.checks, customCheck(rule, celField, celElement))
	}
	vp.checks = arrange(vp.checks)
	if vp.items.empty() {
		vp.items = nil
	}
	if vp.keys.empty() {
		vp.keys = nil
	}
	if vp.values.empty() {
		vp.values = nil
	}
	return vp
}

func orEmpty(rs *types.RuleSet) *types.RuleSet {
	if rs == nil {
		return &types.RuleSet{}
	}
	return rs
}

func customCheck(rule *validate.Rule, fd protoreflect.FieldDescriptor, element bool) check {
	return check{phase: phaseCustom, rule: "cel", fn: func(r *run, fc types.FieldContext, v protoreflect.Value) *validate.Violation {
		return r.bridge.Field(fc, rule, expr.Target{Value: v, Field: fd, Element: element}, r.now)
	}}
}

// reachableErrors collects the schema errors of plan and of every plan it
// reaches. Each message contributes once.
func reachableErrors(plan *messagePlan) error {
	var errs *multierror.Error
	visited := make(map[*messagePlan]bool)
	var walk func(*messagePlan)
	walk = func(mp *messagePlan) {
		if visited[mp] {
			return
		}
		visited[mp] = true
		if mp.ownErr != nil {
			errs = multierror.Append(errs, mp.ownErr)
		}
		for _, child := range mp.children {
			walk(child)
		}
	}
	walk(plan)
	return errs.ErrorOrNil()
}
