package expr

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/ext"
)

// CEL evaluates expressions written in the Common Expression Language.
// `this` is declared dynamic so a compiled program can be shared by every
// field and message that uses the same expression text.
type CEL struct {
	env      *cel.Env
	programs sync.Map // expression text -> *cacheEntry
}

type cacheEntry struct {
	once sync.Once
	prg  *celProgram
	err  error
}

type celProgram struct {
	src string
	prg cel.Program
}

func (p *celProgram) Source() string { return p.src }

// NewCEL builds a CEL engine with the string extensions and the format
// functions (isEmail, isHostname, isIp, isUri, ...) available.
func NewCEL() (*CEL, error) {
	env, err := cel.NewEnv(
		cel.Variable("this", cel.DynType),
		cel.Variable("now", cel.TimestampType),
		cel.DefaultUTCTimeZone(true),
		cel.CrossTypeNumericComparisons(true),
		ext.Strings(),
		cel.Lib(formatLibrary{}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	return &CEL{env: env}, nil
}

// Compile returns the cached program for expression, compiling it on first
// use. Concurrent callers for the same text share one compilation, and a
// compile failure is cached like a success.
func (c *CEL) Compile(expression string) (Program, error) {
	v, _ := c.programs.LoadOrStore(expression, &cacheEntry{})
	entry := v.(*cacheEntry)
	entry.once.Do(func() {
		entry.prg, entry.err = c.compile(expression)
	})
	if entry.err != nil {
		return nil, entry.err
	}
	return entry.prg, nil
}

func (c *CEL) compile(expression string) (*celProgram, error) {
	ast, issues := c.env.Compile(expression)
	if issues.Err() != nil {
		return nil, fmt.Errorf("compiling %q: %w", expression, issues.Err())
	}
	prg, err := c.env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		return nil, fmt.Errorf("planning %q: %w", expression, err)
	}
	return &celProgram{src: expression, prg: prg}, nil
}

// Eval runs p. The result is the native Go value of the CEL result, e.g.
// bool for a boolean expression.
func (c *CEL) Eval(p Program, b Bindings) (any, error) {
	prg, ok := p.(*celProgram)
	if !ok {
		return nil, fmt.Errorf("program %q was not compiled by this engine", p.Source())
	}
	this, err := ToValue(b.This)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.prg.Eval(map[string]any{
		"this": this,
		"now":  types.Timestamp{Time: b.Now.UTC()},
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", prg.src, err)
	}
	return out.Value(), nil
}
