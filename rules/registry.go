package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/reoring/formstate"
)

// Context is passed to field validators.
type Context struct {
	Ctx   context.Context
	Field string
	Meta  formstate.FieldMetadata
	// Values is a read-only snapshot of the form at validation time.
	Values formstate.Values
	Params map[string]any
}

// Func validates one field value. A nil error passes. A formstate.Issue keeps
// its code; any other error becomes code "custom" with the error text.
type Func func(Context, formstate.Value) error

// Factory builds a Func from spec parameters. It runs once per schema so
// parameter errors (bad regexp, bad expression) surface at construction.
type Factory func(params map[string]any) (Func, error)

// FormContext is passed to form-level refinements.
type FormContext struct {
	Ctx    context.Context
	Values formstate.Values
	Params map[string]any
}

// FormFunc validates the whole form and returns form-level issues.
type FormFunc func(FormContext) []formstate.Issue

// FormFactory builds a FormFunc from spec parameters.
type FormFactory func(params map[string]any) (FormFunc, error)

type fieldEntry struct {
	name    string
	factory Factory
	async   bool
}

type formEntry struct {
	name    string
	factory FormFactory
}

// Registry maps validator names to implementations. Builtin and custom
// validators live in separate namespaces; names are case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]fieldEntry
	customs  map[string]fieldEntry
	forms    map[string]formEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builtins: map[string]fieldEntry{},
		customs:  map[string]fieldEntry{},
		forms:    map[string]formEntry{},
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns a clone of the registry holding every builtin validator.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry()
		registerBuiltins(defaultReg)
	})
	return defaultReg.Clone()
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (r *Registry) addField(ns map[string]fieldEntry, name string, f Factory, async bool) error {
	if f == nil {
		return fmt.Errorf("rules: validator %q is nil", name)
	}
	k := key(name)
	if k == "" {
		return fmt.Errorf("rules: validator name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := ns[k]; exists {
		return fmt.Errorf("rules: validator %q already registered", name)
	}
	ns[k] = fieldEntry{name: name, factory: f, async: async}
	return nil
}

// Register stores a custom synchronous validator under id.
func (r *Registry) Register(id string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("rules: validator %q is nil", id)
	}
	return r.addField(r.customs, id, func(map[string]any) (Func, error) { return fn, nil }, false)
}

// RegisterAsync stores a custom validator that always runs asynchronously.
// fn must honor Context.Ctx cancellation.
func (r *Registry) RegisterAsync(id string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("rules: validator %q is nil", id)
	}
	return r.addField(r.customs, id, func(map[string]any) (Func, error) { return fn, nil }, true)
}

// RegisterFactory stores a custom parameterized validator.
func (r *Registry) RegisterFactory(id string, f Factory) error {
	return r.addField(r.customs, id, f, false)
}

// RegisterBuiltin adds a builtin validator. Intended for extending Default.
func (r *Registry) RegisterBuiltin(name string, f Factory) error {
	return r.addField(r.builtins, name, f, false)
}

// RegisterForm stores a form-level refinement under id.
func (r *Registry) RegisterForm(id string, fn FormFunc) error {
	if fn == nil {
		return fmt.Errorf("rules: refinement %q is nil", id)
	}
	return r.RegisterFormFactory(id, func(map[string]any) (FormFunc, error) { return fn, nil })
}

// RegisterFormFactory stores a parameterized form-level refinement.
func (r *Registry) RegisterFormFactory(id string, f FormFactory) error {
	if f == nil {
		return fmt.Errorf("rules: refinement %q is nil", id)
	}
	k := key(id)
	if k == "" {
		return fmt.Errorf("rules: refinement name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.forms[k]; exists {
		return fmt.Errorf("rules: refinement %q already registered", id)
	}
	r.forms[k] = formEntry{name: id, factory: f}
	return nil
}

// Resolve turns a field validator spec into an executable Validator.
func (r *Registry) Resolve(spec formstate.ValidatorSpec) (*Validator, error) {
	r.mu.RLock()
	ns := r.builtins
	if spec.Kind == formstate.ValidatorCustom {
		ns = r.customs
	}
	e, ok := ns[key(spec.Name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rules: %s validator %q not registered", spec.Kind, spec.Name)
	}
	fn, err := e.factory(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("rules: validator %q: %w", spec.Name, err)
	}
	return &Validator{spec: spec, fn: fn, async: spec.Async || e.async}, nil
}

// ResolveForm turns a refinement spec into an executable FormValidator.
// Refinements share one namespace regardless of spec kind.
func (r *Registry) ResolveForm(spec formstate.ValidatorSpec) (*FormValidator, error) {
	r.mu.RLock()
	e, ok := r.forms[key(spec.Name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rules: refinement %q not registered", spec.Name)
	}
	fn, err := e.factory(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("rules: refinement %q: %w", spec.Name, err)
	}
	return &FormValidator{spec: spec, fn: fn}, nil
}

// Names returns registered field validator names (builtins first), sorted
// within each group.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	collect := func(ns map[string]fieldEntry) []string {
		out := make([]string, 0, len(ns))
		for k := range ns {
			out = append(out, k)
		}
		sort.Strings(out)
		return out
	}
	return append(collect(r.builtins), collect(r.customs)...)
}

// FormNames returns registered refinement names sorted alphabetically.
func (r *Registry) FormNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.forms))
	for k := range r.forms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a shallow copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for k, v := range r.builtins {
		c.builtins[k] = v
	}
	for k, v := range r.customs {
		c.customs[k] = v
	}
	for k, v := range r.forms {
		c.forms[k] = v
	}
	return c
}

// Validator is a resolved field validator.
type Validator struct {
	spec  formstate.ValidatorSpec
	fn    Func
	async bool
}

// Name returns the validator name as declared.
func (v *Validator) Name() string { return v.spec.Name }

// Async reports whether the validator runs off the caller's path.
func (v *Validator) Async() bool { return v.async }

// Spec returns the ValidatorSpec the validator was resolved from.
func (v *Validator) Spec() formstate.ValidatorSpec { return v.spec }

// Validate runs the validator and returns the issue it reports, or nil.
func (v *Validator) Validate(ctx context.Context, meta formstate.FieldMetadata, values formstate.Values, value formstate.Value) *formstate.Issue {
	err := v.fn(Context{Ctx: ctx, Field: meta.Name, Meta: meta, Values: values, Params: v.spec.Params}, value)
	if err == nil {
		return nil
	}
	it := formstate.AsIssue(err)
	it.Field = meta.Name
	it.Rule = v.spec.Name
	if v.spec.Message != "" {
		it.Message = v.spec.Message
	}
	return &it
}

// FormValidator is a resolved form-level refinement.
type FormValidator struct {
	spec formstate.ValidatorSpec
	fn   FormFunc
}

// Name returns the refinement name as declared.
func (v *FormValidator) Name() string { return v.spec.Name }

// Validate runs the refinement. Issues keep a Field when the refinement
// points at one; the message override applies to every issue.
func (v *FormValidator) Validate(ctx context.Context, values formstate.Values) formstate.Issues {
	iss := v.fn(FormContext{Ctx: ctx, Values: values, Params: v.spec.Params})
	if len(iss) == 0 {
		return nil
	}
	out := make(formstate.Issues, len(iss))
	for i, it := range iss {
		if it.Rule == "" {
			it.Rule = v.spec.Name
		}
		if v.spec.Message != "" {
			it.Message = v.spec.Message
		}
		out[i] = it
	}
	return out
}
