package formstate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AttrSensitive marks a field whose value must never leave the hot cache tier.
const AttrSensitive = "sensitive"

// ValidatorKind separates builtin validators from caller-registered ones.
type ValidatorKind uint8

const (
	ValidatorBuiltin ValidatorKind = iota
	ValidatorCustom
)

func (k ValidatorKind) String() string {
	if k == ValidatorCustom {
		return "custom"
	}
	return "builtin"
}

// ValidatorSpec names a validator and its parameters. Specs are data; the
// rules registry resolves them into executable validators.
type ValidatorSpec struct {
	Kind   ValidatorKind
	Name   string
	Params map[string]any
	// Message overrides the translated default message.
	Message string
	// Async marks a validator that runs off the caller's path (remote checks).
	Async bool
}

// Builtin returns a spec for a builtin validator.
func Builtin(name string, params map[string]any) ValidatorSpec {
	return ValidatorSpec{Kind: ValidatorBuiltin, Name: name, Params: params}
}

// Custom returns a spec for a validator registered under id.
func Custom(id string) ValidatorSpec {
	return ValidatorSpec{Kind: ValidatorCustom, Name: id}
}

// WithMessage returns a copy of s with a fixed failure message.
func (s ValidatorSpec) WithMessage(msg string) ValidatorSpec {
	s.Message = msg
	return s
}

// WithParam returns a copy of s with key set to v.
func (s ValidatorSpec) WithParam(key string, v any) ValidatorSpec {
	p := make(map[string]any, len(s.Params)+1)
	for k, x := range s.Params {
		p[k] = x
	}
	p[key] = v
	s.Params = p
	return s
}

// AsAsync returns a copy of s marked asynchronous.
func (s ValidatorSpec) AsAsync() ValidatorSpec {
	s.Async = true
	return s
}

func (s ValidatorSpec) clone() ValidatorSpec {
	if s.Params != nil {
		p := make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			p[k] = v
		}
		s.Params = p
	}
	return s
}

// FieldMetadata describes one field of a form.
type FieldMetadata struct {
	Name string
	Type FieldType
	// ElemType constrains array elements; TypeUnspecified accepts any value.
	ElemType   FieldType
	Validators []ValidatorSpec
	Required   bool
	Default    *Value
	// DependsOn lists fields whose validation result can change this field's.
	DependsOn []string
	// Attributes carry UI hints. Only AttrSensitive is interpreted.
	Attributes map[string]string
}

// Sensitive reports whether the field is marked with AttrSensitive.
func (m FieldMetadata) Sensitive() bool {
	return strings.EqualFold(m.Attributes[AttrSensitive], "true")
}

// DefaultValue returns the declared default or the zero value of the type.
func (m FieldMetadata) DefaultValue() Value {
	if m.Default != nil {
		return *m.Default
	}
	return Zero(m.Type)
}

// Clone returns a copy that shares nothing mutable with m.
func (m FieldMetadata) Clone() FieldMetadata {
	out := m
	if m.Validators != nil {
		out.Validators = make([]ValidatorSpec, len(m.Validators))
		for i, v := range m.Validators {
			out.Validators[i] = v.clone()
		}
	}
	if m.Default != nil {
		d := *m.Default
		out.Default = &d
	}
	if m.DependsOn != nil {
		out.DependsOn = append([]string(nil), m.DependsOn...)
	}
	if m.Attributes != nil {
		out.Attributes = make(map[string]string, len(m.Attributes))
		for k, v := range m.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Schema is the immutable description of a form: its fields, their
// dependency graph and the form-level refinements.
type Schema struct {
	name        string
	fields      []FieldMetadata
	index       map[string]int
	deps        map[string][]string
	rdeps       map[string][]string
	order       []string
	refinements []ValidatorSpec
}

// NewSchema validates the field declarations and builds the dependency graph.
// A dependency cycle is reported as a single *CycleError.
func NewSchema(name string, fields []FieldMetadata, refinements ...ValidatorSpec) (*Schema, error) {
	s := &Schema{
		name:  name,
		index: make(map[string]int, len(fields)),
		deps:  make(map[string][]string, len(fields)),
		rdeps: make(map[string][]string, len(fields)),
	}
	for i, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return nil, fmt.Errorf("%w: field #%d has no name", ErrInvalidSchema, i)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidSchema, f.Name)
		}
		if f.Type == TypeUnspecified {
			return nil, fmt.Errorf("%w: field %q has no type", ErrInvalidSchema, f.Name)
		}
		s.index[f.Name] = i
		s.fields = append(s.fields, f.Clone())
	}
	for _, f := range s.fields {
		seen := make(map[string]struct{}, len(f.DependsOn))
		for _, d := range f.DependsOn {
			if d == f.Name {
				return nil, fmt.Errorf("%w: field %q depends on itself", ErrInvalidSchema, f.Name)
			}
			if _, ok := s.index[d]; !ok {
				return nil, fmt.Errorf("%w: field %q depends on %w", ErrInvalidSchema, f.Name, &UnknownFieldError{Field: d, Schema: name})
			}
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			s.deps[f.Name] = append(s.deps[f.Name], d)
			s.rdeps[d] = append(s.rdeps[d], f.Name)
		}
		if f.Default != nil {
			opt := f
			opt.Required = false
			if _, err := CoerceField(*f.Default, opt); err != nil {
				return nil, fmt.Errorf("%w: default of %q: %w", ErrInvalidSchema, f.Name, err)
			}
		}
		for _, v := range f.Validators {
			if v.Name == "" {
				return nil, fmt.Errorf("%w: field %q has an unnamed validator", ErrInvalidSchema, f.Name)
			}
		}
	}
	if path := s.findCycle(); path != nil {
		return nil, &CycleError{Schema: name, Path: path}
	}
	s.order = s.topoOrder()
	for _, r := range refinements {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: unnamed refinement", ErrInvalidSchema)
		}
		s.refinements = append(s.refinements, r.clone())
	}
	return s, nil
}

// findCycle walks depends-on edges depth first in declaration order and
// returns the first cycle found as [a b ... a].
func (s *Schema) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(s.fields))
	var stack []string
	var visit func(n string) []string
	visit = func(n string) []string {
		color[n] = gray
		stack = append(stack, n)
		for _, d := range s.deps[n] {
			switch color[d] {
			case gray:
				start := 0
				for i, x := range stack {
					if x == d {
						start = i
						break
					}
				}
				path := append([]string(nil), stack[start:]...)
				return append(path, d)
			case white:
				if p := visit(d); p != nil {
					return p
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}
	for _, f := range s.fields {
		if color[f.Name] == white {
			if p := visit(f.Name); p != nil {
				return p
			}
		}
	}
	return nil
}

// topoOrder is Kahn's algorithm; among ready fields the earliest declared
// goes first so unrelated fields keep declaration order.
func (s *Schema) topoOrder() []string {
	indeg := make(map[string]int, len(s.fields))
	for _, f := range s.fields {
		indeg[f.Name] = len(s.deps[f.Name])
	}
	var ready []int
	for i, f := range s.fields {
		if indeg[f.Name] == 0 {
			ready = append(ready, i)
		}
	}
	out := make([]string, 0, len(s.fields))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		n := s.fields[i].Name
		out = append(out, n)
		for _, dep := range s.rdeps[n] {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, s.index[dep])
			}
		}
	}
	return out
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Len returns the number of declared fields.
func (s *Schema) Len() int { return len(s.fields) }

// FieldMetadata returns copies of the field declarations in declaration order.
func (s *Schema) FieldMetadata() []FieldMetadata {
	out := make([]FieldMetadata, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Clone()
	}
	return out
}

// Field returns a copy of the named field declaration.
func (s *Schema) Field(name string) (FieldMetadata, bool) {
	i, ok := s.index[name]
	if !ok {
		return FieldMetadata{}, false
	}
	return s.fields[i].Clone(), true
}

// Lookup is Field with an UnknownFieldError for undeclared names.
func (s *Schema) Lookup(name string) (FieldMetadata, error) {
	f, ok := s.Field(name)
	if !ok {
		return FieldMetadata{}, &UnknownFieldError{Field: name, Schema: s.name}
	}
	return f, nil
}

// Has reports whether name is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Names returns field names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Order returns field names in dependency order: every field follows the
// fields it depends on.
func (s *Schema) Order() []string { return append([]string(nil), s.order...) }

// DependencyGraph maps each field to the fields it depends on.
func (s *Schema) DependencyGraph() map[string][]string {
	out := make(map[string][]string, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = append([]string{}, s.deps[f.Name]...)
	}
	return out
}

// Dependents returns every field that directly or transitively depends on
// name, in dependency order.
func (s *Schema) Dependents(name string) []string {
	reach := map[string]struct{}{}
	queue := append([]string(nil), s.rdeps[name]...)
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, ok := reach[n]; ok {
			continue
		}
		reach[n] = struct{}{}
		queue = append(queue, s.rdeps[n]...)
	}
	out := make([]string, 0, len(reach))
	for _, n := range s.order {
		if _, ok := reach[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// DefaultValues returns the initial value of every field.
func (s *Schema) DefaultValues() Values {
	out := make(Values, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = f.DefaultValue()
	}
	return out
}

// SensitiveFields returns the names of fields marked sensitive.
func (s *Schema) SensitiveFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.Sensitive() {
			out = append(out, f.Name)
		}
	}
	return out
}

// Refinements returns copies of the form-level validator specs.
func (s *Schema) Refinements() []ValidatorSpec {
	out := make([]ValidatorSpec, len(s.refinements))
	for i, r := range s.refinements {
		out[i] = r.clone()
	}
	return out
}

// IsCycle reports whether err carries a *CycleError.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// GetFieldValue returns the value stored for name in values. An undeclared
// name is an *UnknownFieldError; a declared but absent field reports false.
func (s *Schema) GetFieldValue(values Values, name string) (Value, bool, error) {
	if !s.Has(name) {
		return Value{}, false, &UnknownFieldError{Field: name, Schema: s.name}
	}
	v, ok := values[name]
	return v, ok, nil
}

// SetFieldValue coerces v to the declared type of name and stores it in
// values. Coercion failures are *FieldError; values is left unchanged.
func (s *Schema) SetFieldValue(values Values, name string, v Value) error {
	i, ok := s.index[name]
	if !ok {
		return &UnknownFieldError{Field: name, Schema: s.name}
	}
	out, err := CoerceField(v, s.fields[i])
	if err != nil {
		return err
	}
	values[name] = out
	return nil
}

// CoerceValues builds a complete value set: every declared field starts from
// its default and is overwritten by the matching entry of in. Unknown keys
// are rejected.
func (s *Schema) CoerceValues(in Values) (Values, error) {
	out := s.DefaultValues()
	for name, v := range in {
		if err := s.SetFieldValue(out, name, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
