package expr

import (
	"fmt"
	"log/slog"
	"time"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"

	"github.com/solatis/protocheck/internal/types"
	"github.com/solatis/protocheck/internal/violations"
)

// Bridge turns expression outcomes into violations. A false result reports
// the rule's own id and message; any engine failure is downgraded to a
// single internal-error violation so other fields keep validating.
type Bridge struct {
	engine Engine
	logger *slog.Logger
}

// NewBridge wraps engine. A nil logger uses slog.Default().
func NewBridge(engine Engine, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{engine: engine, logger: logger}
}

// Precompile warms the program cache for rules. Failures are not fatal:
// they resurface as internal-error violations at validation time.
func (b *Bridge) Precompile(rules []*validate.Rule) {
	for _, rule := range rules {
		if _, err := b.engine.Compile(rule.GetExpression()); err != nil {
			b.logger.Warn("custom rule does not compile",
				"rule_id", rule.GetId(),
				"error", err)
		}
	}
}

// Field evaluates a field-level rule against target.
func (b *Bridge) Field(fc types.FieldContext, rule *validate.Rule, target Target, now time.Time) *validate.Violation {
	ok, err := b.eval(rule, target, now)
	switch {
	case err != nil:
		b.logger.Warn("custom rule failed",
			"rule_id", rule.GetId(),
			"field", fc.Data.Name,
			"error", err)
		return violations.Custom(fc, violations.InternalErrorID, violations.InternalErrorMessage)
	case !ok:
		return violations.Custom(fc, rule.GetId(), ruleMessage(rule))
	default:
		return nil
	}
}

// Message evaluates a message-level rule against the message in target.
// parent is the path of the message within the validated root.
func (b *Bridge) Message(parent []*validate.FieldPathElement, rule *validate.Rule, target Target, now time.Time) *validate.Violation {
	ok, err := b.eval(rule, target, now)
	switch {
	case err != nil:
		b.logger.Warn("custom rule failed",
			"rule_id", rule.GetId(),
			"error", err)
		return violations.ForMessage(parent, violations.InternalErrorID, violations.InternalErrorMessage)
	case !ok:
		return violations.ForMessage(parent, rule.GetId(), ruleMessage(rule))
	default:
		return nil
	}
}

func (b *Bridge) eval(rule *validate.Rule, target Target, now time.Time) (bool, error) {
	prg, err := b.engine.Compile(rule.GetExpression())
	if err != nil {
		return false, err
	}
	out, err := b.engine.Eval(prg, Bindings{This: target, Now: now})
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q produced %T", ErrNotBoolean, rule.GetExpression(), out)
	}
	return result, nil
}

func ruleMessage(rule *validate.Rule) string {
	if msg := rule.GetMessage(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s failed", rule.GetId())
}
