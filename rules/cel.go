package rules

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/i18n"
)

// CEL programs are type-checked once against a fixed environment:
// value (dyn), field (string) and form (map of field name to dyn).
func celEnv(withValue bool) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("form", celgo.MapType(celgo.StringType, celgo.DynType)),
	}
	if withValue {
		opts = append(opts,
			celgo.Variable("value", celgo.DynType),
			celgo.Variable("field", celgo.StringType),
		)
	}
	return celgo.NewEnv(opts...)
}

func compileCEL(params map[string]any, withValue bool) (celgo.Program, string, error) {
	src, ok := paramString(params, "expr", "expression")
	if !ok || src == "" {
		return nil, "", requireParam("expr")
	}
	env, err := celEnv(withValue)
	if err != nil {
		return nil, src, err
	}
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, src, fmt.Errorf("cel %q: %w", src, issues.Err())
	}
	if !ast.OutputType().IsExactType(celgo.BoolType) && !ast.OutputType().IsExactType(celgo.DynType) {
		return nil, src, fmt.Errorf("cel %q: result is %s, want bool", src, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, src, fmt.Errorf("cel %q: %w", src, err)
	}
	return prg, src, nil
}

func evalCEL(prg celgo.Program, src string, activation map[string]any) (bool, error) {
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("cel %q: %w", src, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("cel %q: result is %T, want bool", src, out.Value())
	}
	return ok, nil
}

func celField(params map[string]any) (Func, error) {
	prg, src, err := compileCEL(params, true)
	if err != nil {
		return nil, err
	}
	code := codeParam(params, formstate.CodeCustom)
	return func(c Context, v formstate.Value) error {
		ok, err := evalCEL(prg, src, map[string]any{
			"value": plain(v),
			"field": c.Field,
			"form":  plainValues(c.Values),
		})
		if err != nil {
			return err
		}
		if !ok {
			return issue(code, nil, "expr", src)
		}
		return nil
	}, nil
}

func celForm(params map[string]any) (FormFunc, error) {
	prg, src, err := compileCEL(params, false)
	if err != nil {
		return nil, err
	}
	code := codeParam(params, formstate.CodeBusinessRule)
	field, _ := paramString(params, "field")
	return func(c FormContext) []formstate.Issue {
		ok, err := evalCEL(prg, src, map[string]any{"form": plainValues(c.Values)})
		if err != nil {
			return []formstate.Issue{{Field: field, Code: formstate.CodeCustom, Message: err.Error()}}
		}
		if !ok {
			return []formstate.Issue{{Field: field, Code: code, Message: i18n.T(code, nil), Params: map[string]any{"expr": src}}}
		}
		return nil
	}, nil
}
