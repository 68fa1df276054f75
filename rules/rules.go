package rules

import (
	"strings"
	"time"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/i18n"
)

// Op defines simple comparison operators for If(...).Then(...)
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Conditional composes conditional execution of refinements.
type Conditional struct {
	field string
	op    Op
	want  formstate.Value
	all   []Conditional // composite AND
	any   []Conditional // composite OR
}

// If builds a conditional that compares a field against a value. want is
// converted with formstate.FromAny; unsupported values never match.
func If(field string, op Op, want any) Conditional {
	v, err := formstate.FromAny(want)
	if err != nil {
		return Conditional{field: field, op: -1}
	}
	return Conditional{field: field, op: op, want: v}
}

// IfAll builds a conditional that requires all conditions to hold.
func IfAll(conds ...Conditional) Conditional { return Conditional{all: conds} }

// IfAny builds a conditional that requires any condition to hold.
func IfAny(conds ...Conditional) Conditional { return Conditional{any: conds} }

// And combines the receiver with additional conditions using logical AND.
func (c Conditional) And(others ...Conditional) Conditional {
	conds := append([]Conditional{c}, others...)
	return IfAll(conds...)
}

// Or combines the receiver with additional conditions using logical OR.
func (c Conditional) Or(others ...Conditional) Conditional {
	conds := append([]Conditional{c}, others...)
	return IfAny(conds...)
}

// Holds evaluates the condition against values.
func (c Conditional) Holds(values formstate.Values) bool {
	// composite AND
	if len(c.all) > 0 {
		for _, it := range c.all {
			if !it.Holds(values) {
				return false
			}
		}
		return true
	}
	// composite OR
	if len(c.any) > 0 {
		for _, it := range c.any {
			if it.Holds(values) {
				return true
			}
		}
		return false
	}
	cur, ok := values[c.field]
	if !ok {
		return false
	}
	return compare(cur, c.op, c.want)
}

// Then attaches refinements to run when the condition is satisfied.
func (c Conditional) Then(rules ...FormFunc) FormFunc {
	inner := And(rules...)
	return func(fc FormContext) []formstate.Issue {
		if !c.Holds(fc.Values) {
			return nil
		}
		return inner(fc)
	}
}

// RequiredIf reports field as required while cond holds.
func RequiredIf(cond Conditional, field string) FormFunc {
	return cond.Then(func(fc FormContext) []formstate.Issue {
		if v := fc.Values[field]; v.IsEmpty() {
			return []formstate.Issue{{Field: field, Code: formstate.CodeRequired, Message: i18n.T(formstate.CodeRequired, nil)}}
		}
		return nil
	})
}

// And executes all rules and concatenates Issues.
func And(rules ...FormFunc) FormFunc {
	return func(fc FormContext) []formstate.Issue {
		var out []formstate.Issue
		for _, r := range rules {
			if r == nil {
				continue
			}
			out = append(out, r(fc)...)
		}
		return out
	}
}

// Or succeeds if any rule returns no Issues. When all fail, the branch with
// the fewest issues is returned.
func Or(rules ...FormFunc) FormFunc {
	return func(fc FormContext) []formstate.Issue {
		var best []formstate.Issue
		bestSet := false
		for _, r := range rules {
			if r == nil {
				continue
			}
			iss := r(fc)
			if len(iss) == 0 {
				return nil
			}
			if !bestSet || len(iss) < len(best) {
				best = iss
				bestSet = true
			}
		}
		return best
	}
}

// AtLeastOneOf fails unless one of fields holds a non-empty value.
func AtLeastOneOf(fields ...string) FormFunc {
	list := strings.Join(fields, ", ")
	return func(fc FormContext) []formstate.Issue {
		for _, f := range fields {
			if v, ok := fc.Values[f]; ok && !v.IsEmpty() {
				return nil
			}
		}
		return []formstate.Issue{{
			Code:    formstate.CodeAggregateViolation,
			Message: i18n.T(formstate.CodeAggregateViolation, map[string]string{"fields": list}),
			Params:  map[string]any{"fields": fields},
		}}
	}
}

// UniqueAcross fails for every field whose non-empty value repeats the value
// of an earlier field in the list.
func UniqueAcross(fields ...string) FormFunc {
	list := strings.Join(fields, ", ")
	return func(fc FormContext) []formstate.Issue {
		var out []formstate.Issue
		for i, f := range fields {
			v, ok := fc.Values[f]
			if !ok || v.IsEmpty() {
				continue
			}
			for _, prev := range fields[:i] {
				if formstate.Equal(v, fc.Values[prev]) {
					out = append(out, formstate.Issue{
						Field:   f,
						Code:    formstate.CodeUniqueness,
						Message: i18n.T(formstate.CodeUniqueness, map[string]string{"fields": list}),
						Params:  map[string]any{"first": prev, "dup": f},
					})
					break
				}
			}
		}
		return out
	}
}

func atLeastOne(params map[string]any) (FormFunc, error) {
	fields, err := paramStrings(params, "fields")
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, requireParam("fields")
	}
	return AtLeastOneOf(fields...), nil
}

func unique(params map[string]any) (FormFunc, error) {
	fields, err := paramStrings(params, "fields")
	if err != nil {
		return nil, err
	}
	if len(fields) < 2 {
		return nil, requireParam("fields")
	}
	return UniqueAcross(fields...), nil
}

// ------- helpers -------

func compare(cur formstate.Value, op Op, want formstate.Value) bool {
	switch op {
	case Eq:
		return equalLoose(cur, want)
	case Ne:
		return !equalLoose(cur, want)
	case Lt, Le, Gt, Ge:
		c, ok := order(cur, want)
		if !ok {
			return false
		}
		switch op {
		case Lt:
			return c < 0
		case Le:
			return c <= 0
		case Gt:
			return c > 0
		default:
			return c >= 0
		}
	default:
		return false
	}
}

// equalLoose treats Integer and Number with the same magnitude as equal.
func equalLoose(a, b formstate.Value) bool {
	if formstate.Equal(a, b) {
		return true
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	return aok && bok && af == bf
}

// order compares numbers, text and times; other pairs are unordered.
func order(a, b formstate.Value) (int, bool) {
	if af, ok := a.AsFloat(); ok {
		bf, ok := b.AsFloat()
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if as, ok := a.AsText(); ok {
		bs, ok := b.AsText()
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if at, ok := a.AsTime(); ok {
		bt, ok := b.AsTime()
		if !ok {
			return 0, false
		}
		return compareTime(at, bt), true
	}
	return 0, false
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
