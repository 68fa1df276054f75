package rules

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/i18n"
)

// Builtin validator names.
const (
	Required  = "required"
	Email     = "email"
	URL       = "url"
	MinLength = "min_length"
	MaxLength = "max_length"
	Min       = "min"
	Max       = "max"
	Pattern   = "pattern"
	OneOf     = "one_of"
	Matches   = "matches"
	NoMarkup  = "no_markup"
	Expr      = "expr"
	CEL       = "cel"
	// Form-level only.
	AtLeastOne = "at_least_one"
	Unique     = "unique"
)

func registerBuiltins(r *Registry) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.RegisterBuiltin(Required, static(required)))
	must(r.RegisterBuiltin(Email, static(email)))
	must(r.RegisterBuiltin(URL, static(validURL)))
	must(r.RegisterBuiltin(MinLength, minLength))
	must(r.RegisterBuiltin(MaxLength, maxLength))
	must(r.RegisterBuiltin(Min, minValue))
	must(r.RegisterBuiltin(Max, maxValue))
	must(r.RegisterBuiltin(Pattern, pattern))
	must(r.RegisterBuiltin(OneOf, oneOf))
	must(r.RegisterBuiltin(Matches, matches))
	must(r.RegisterBuiltin(NoMarkup, static(noMarkup)))
	must(r.RegisterBuiltin(Expr, exprField))
	must(r.RegisterBuiltin(CEL, celField))

	must(r.RegisterFormFactory(Expr, exprForm))
	must(r.RegisterFormFactory(CEL, celForm))
	must(r.RegisterFormFactory(AtLeastOne, atLeastOne))
	must(r.RegisterFormFactory(Unique, unique))
}

func static(fn Func) Factory { return func(map[string]any) (Func, error) { return fn, nil } }

func issue(code string, data map[string]string, params ...any) formstate.Issue {
	it := formstate.Issue{Code: code, Message: i18n.T(code, data)}
	if len(params) > 0 {
		it.Params = map[string]any{}
		for i := 0; i+1 < len(params); i += 2 {
			if k, ok := params[i].(string); ok {
				it.Params[k] = params[i+1]
			}
		}
	}
	return it
}

func required(_ Context, v formstate.Value) error {
	if v.IsEmpty() {
		return issue(formstate.CodeRequired, nil)
	}
	return nil
}

// The format validators below pass on empty input; pair them with required.

func email(_ Context, v formstate.Value) error {
	s, ok := v.AsText()
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return issue(formstate.CodeInvalidFormat, nil, "format", "email")
	}
	at := strings.LastIndexByte(s, '@')
	if at < 1 || !strings.Contains(s[at+1:], ".") || strings.HasSuffix(s, ".") {
		return issue(formstate.CodeInvalidFormat, nil, "format", "email")
	}
	return nil
}

func validURL(_ Context, v formstate.Value) error {
	s, ok := v.AsText()
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	u, err := url.ParseRequestURI(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return issue(formstate.CodeInvalidFormat, nil, "format", "url")
	}
	return nil
}

func lengthOf(v formstate.Value) (int, bool) {
	switch v.Kind() {
	case formstate.KindText, formstate.KindArray:
		return v.Len(), true
	default:
		return 0, false
	}
}

func minLength(params map[string]any) (Func, error) {
	n, ok, err := paramInt(params, "min", "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, requireParam("min")
	}
	return func(_ Context, v formstate.Value) error {
		l, ok := lengthOf(v)
		if !ok || v.IsEmpty() {
			return nil
		}
		if l < n {
			return issue(formstate.CodeTooShort, map[string]string{"min": strconv.Itoa(n)}, "min", n, "got", l)
		}
		return nil
	}, nil
}

func maxLength(params map[string]any) (Func, error) {
	n, ok, err := paramInt(params, "max", "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, requireParam("max")
	}
	return func(_ Context, v formstate.Value) error {
		l, ok := lengthOf(v)
		if ok && l > n {
			return issue(formstate.CodeTooLong, map[string]string{"max": strconv.Itoa(n)}, "max", n, "got", l)
		}
		return nil
	}, nil
}

func minValue(params map[string]any) (Func, error) {
	limit, ok, err := paramFloat(params, "min", "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, requireParam("min")
	}
	return func(_ Context, v formstate.Value) error {
		f, ok := v.AsFloat()
		if ok && f < limit {
			return issue(formstate.CodeTooSmall, map[string]string{"min": formatFloat(limit)}, "min", limit, "got", f)
		}
		return nil
	}, nil
}

func maxValue(params map[string]any) (Func, error) {
	limit, ok, err := paramFloat(params, "max", "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, requireParam("max")
	}
	return func(_ Context, v formstate.Value) error {
		f, ok := v.AsFloat()
		if ok && f > limit {
			return issue(formstate.CodeTooBig, map[string]string{"max": formatFloat(limit)}, "max", limit, "got", f)
		}
		return nil
	}, nil
}

func pattern(params map[string]any) (Func, error) {
	src, ok := paramString(params, "pattern", "value")
	if !ok {
		return nil, requireParam("pattern")
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, err
	}
	return func(_ Context, v formstate.Value) error {
		s, ok := v.AsText()
		if !ok || s == "" {
			return nil
		}
		if !re.MatchString(s) {
			return issue(formstate.CodePattern, nil, "pattern", src)
		}
		return nil
	}, nil
}

func oneOf(params map[string]any) (Func, error) {
	allowed, err := paramStrings(params, "values")
	if err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return nil, requireParam("values")
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	list := strings.Join(allowed, ", ")
	return func(_ Context, v formstate.Value) error {
		if v.IsEmpty() {
			return nil
		}
		if _, ok := set[v.String()]; !ok {
			return issue(formstate.CodeInvalidEnum, map[string]string{"values": list}, "values", allowed, "got", v.String())
		}
		return nil
	}, nil
}

// matches compares against another field. The field must also be declared
// in DependsOn so edits to it re-validate this one.
func matches(params map[string]any) (Func, error) {
	other, ok := paramString(params, "field")
	if !ok || other == "" {
		return nil, requireParam("field")
	}
	return func(c Context, v formstate.Value) error {
		want, ok := c.Values[other]
		if !ok {
			return fmt.Errorf("matches: %w", &formstate.UnknownFieldError{Field: other})
		}
		if !formstate.Equal(v, want) {
			return issue(formstate.CodeMismatch, map[string]string{"field": other}, "field", other)
		}
		return nil
	}, nil
}
