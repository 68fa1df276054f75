package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprparser "github.com/expr-lang/expr/parser"
	exprtypes "github.com/expr-lang/expr/types"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/i18n"
)

// exprProgram is an expr-lang expression compiled against the field names of
// the form it runs on. Form fields are declared in the environment so they
// shadow builtins of the same name (min, max, len, ...). Names that are not
// declared evaluate to nil.
type exprProgram struct {
	src      string
	reserved []string

	mu       sync.Mutex
	compiled map[string]*exprvm.Program
}

// newExprProgram checks the syntax of the expression; type checking waits
// until the field names are known.
func newExprProgram(params map[string]any, reserved ...string) (*exprProgram, error) {
	src, ok := paramString(params, "expr", "expression")
	if !ok || src == "" {
		return nil, requireParam("expr")
	}
	if _, err := exprparser.Parse(src); err != nil {
		return nil, fmt.Errorf("expr %q: %w", src, err)
	}
	return &exprProgram{src: src, reserved: reserved, compiled: map[string]*exprvm.Program{}}, nil
}

func (p *exprProgram) program(fields []string) (*exprvm.Program, error) {
	names := append(append([]string(nil), fields...), p.reserved...)
	sort.Strings(names)
	k := strings.Join(names, "\x00")

	p.mu.Lock()
	defer p.mu.Unlock()
	if prog, ok := p.compiled[k]; ok {
		return prog, nil
	}
	env := make(exprtypes.Map, len(names))
	for _, n := range names {
		env[n] = exprtypes.Any
	}
	prog, err := exprlang.Compile(p.src, exprlang.Env(env), exprlang.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("expr %q: %w", p.src, err)
	}
	p.compiled[k] = prog
	return prog, nil
}

func (p *exprProgram) run(env map[string]any, fields []string) (bool, error) {
	prog, err := p.program(fields)
	if err != nil {
		return false, err
	}
	out, err := exprlang.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("expr %q: %w", p.src, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("expr %q: result is %T, want bool", p.src, out)
	}
	return ok, nil
}

// exprField evaluates with every form field in scope plus value, field and
// form (the whole form as a map).
func exprField(params map[string]any) (Func, error) {
	p, err := newExprProgram(params, "value", "field", "form")
	if err != nil {
		return nil, err
	}
	code := codeParam(params, formstate.CodeCustom)
	return func(c Context, v formstate.Value) error {
		form := plainValues(c.Values)
		env := make(map[string]any, len(form)+3)
		for k, x := range form {
			env[k] = x
		}
		env["value"] = plain(v)
		env["field"] = c.Field
		env["form"] = form
		ok, err := p.run(env, c.Values.Names())
		if err != nil {
			return err
		}
		if !ok {
			return issue(code, nil, "expr", p.src)
		}
		return nil
	}, nil
}

func exprForm(params map[string]any) (FormFunc, error) {
	p, err := newExprProgram(params, "form")
	if err != nil {
		return nil, err
	}
	code := codeParam(params, formstate.CodeBusinessRule)
	field, _ := paramString(params, "field")
	return func(c FormContext) []formstate.Issue {
		form := plainValues(c.Values)
		env := make(map[string]any, len(form)+1)
		for k, x := range form {
			env[k] = x
		}
		env["form"] = form
		ok, err := p.run(env, c.Values.Names())
		if err != nil {
			return []formstate.Issue{{Field: field, Code: formstate.CodeCustom, Message: err.Error()}}
		}
		if !ok {
			return []formstate.Issue{{Field: field, Code: code, Message: i18n.T(code, nil), Params: map[string]any{"expr": p.src}}}
		}
		return nil
	}, nil
}

func codeParam(params map[string]any, def string) string {
	if s, ok := paramString(params, "code"); ok && s != "" {
		return s
	}
	return def
}
