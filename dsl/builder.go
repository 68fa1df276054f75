package dsl

import (
	"errors"
	"fmt"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/rules"
)

// Option configures a Builder.
type Option func(*Builder)

// WithRegistry resolves validators through reg instead of rules.Default().
// It only affects FormDef.Validate; form containers take their own registry.
func WithRegistry(reg *rules.Registry) Option { return func(b *Builder) { b.reg = reg } }

// WithRefineOnFieldErrors makes FormDef.Validate run refinements even when a
// field failed.
func WithRefineOnFieldErrors(on bool) Option { return func(b *Builder) { b.refineOnErrs = on } }

// Builder accumulates field declarations. Declaration mistakes are collected
// and reported together by Build.
type Builder struct {
	name         string
	fields       []*FieldStep
	index        map[string]int
	refines      []formstate.ValidatorSpec
	trimAll      bool
	reg          *rules.Registry
	refineOnErrs bool
	errs         []error
}

// FieldStep configures the field most recently added with Field. Every
// method returns the step so declarations chain; Field, Refine and Build
// continue with the parent builder.
type FieldStep struct {
	b    *Builder
	meta formstate.FieldMetadata
	def  any
	hasD bool
	trim bool
}

// New starts a schema named name.
func New(name string, opts ...Option) *Builder {
	b := &Builder{name: name, index: map[string]int{}}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Field declares a field. Redeclaring a name is reported by Build.
func (b *Builder) Field(name string, t Type) *FieldStep {
	f := &FieldStep{b: b, meta: formstate.FieldMetadata{Name: name, Type: t.field, ElemType: t.elem}}
	if _, dup := b.index[name]; dup {
		b.errs = append(b.errs, fmt.Errorf("field %q declared twice", name))
		return f
	}
	b.index[name] = len(b.fields)
	b.fields = append(b.fields, f)
	return f
}

// Refine appends form-level refinements. They run in declaration order.
func (b *Builder) Refine(specs ...formstate.ValidatorSpec) *Builder {
	b.refines = append(b.refines, specs...)
	return b
}

// AtLeastOneOf requires a non-empty value in at least one of fields.
func (b *Builder) AtLeastOneOf(fields ...string) *Builder {
	return b.Refine(formstate.Builtin(rules.AtLeastOne, map[string]any{"fields": fields}))
}

// UniqueAcross requires fields to hold pairwise distinct values.
func (b *Builder) UniqueAcross(fields ...string) *Builder {
	return b.Refine(formstate.Builtin(rules.Unique, map[string]any{"fields": fields}))
}

// RefineExpr adds an expr-lang refinement; field names the field the issue
// is reported against, empty for a form-level issue.
func (b *Builder) RefineExpr(src, field string) *Builder {
	return b.Refine(formstate.Builtin(rules.Expr, exprParams(src, field)))
}

// RefineCEL adds a CEL refinement; see RefineExpr for field.
func (b *Builder) RefineCEL(src, field string) *Builder {
	return b.Refine(formstate.Builtin(rules.CEL, exprParams(src, field)))
}

func exprParams(src, field string) map[string]any {
	p := map[string]any{"expr": src}
	if field != "" {
		p["field"] = field
	}
	return p
}

// TrimSpace trims surrounding white space from every text field before it
// is stored.
func (b *Builder) TrimSpace() *Builder {
	b.trimAll = true
	return b
}

// Build checks the declarations and compiles the dependency graph.
// Validator names are resolved later, against the registry in use.
func (b *Builder) Build() (*FormDef, error) {
	errs := append([]error(nil), b.errs...)
	fields := make([]formstate.FieldMetadata, 0, len(b.fields))
	trim := map[string]bool{}
	for _, f := range b.fields {
		meta := f.meta.Clone()
		if f.hasD {
			v, err := formstate.FromAny(f.def)
			if err != nil {
				errs = append(errs, fmt.Errorf("default of %q: %w", meta.Name, err))
			} else {
				meta.Default = &v
			}
		}
		if meta.Type == formstate.TypeText && (f.trim || b.trimAll) {
			trim[meta.Name] = true
		}
		fields = append(fields, meta)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %q: %w", formstate.ErrInvalidSchema, b.name, errors.Join(errs...))
	}
	schema, err := formstate.NewSchema(b.name, fields, b.refines...)
	if err != nil {
		return nil, err
	}
	reg := b.reg
	if reg == nil {
		reg = rules.Default()
	}
	return &FormDef{schema: schema, trim: trim, reg: reg, refineOnErrs: b.refineOnErrs}, nil
}

// MustBuild is Build for package-level declarations; it panics on error.
func (b *Builder) MustBuild() *FormDef {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

// Field continues with the next field declaration.
func (f *FieldStep) Field(name string, t Type) *FieldStep { return f.b.Field(name, t) }

// Refine continues with form-level refinements.
func (f *FieldStep) Refine(specs ...formstate.ValidatorSpec) *Builder { return f.b.Refine(specs...) }

// Build finishes the schema.
func (f *FieldStep) Build() (*FormDef, error) { return f.b.Build() }

// MustBuild finishes the schema or panics.
func (f *FieldStep) MustBuild() *FormDef { return f.b.MustBuild() }

// Builder returns the parent builder.
func (f *FieldStep) Builder() *Builder { return f.b }

// Required rejects empty values. The required check always runs first.
func (f *FieldStep) Required() *FieldStep {
	f.meta.Required = true
	return f
}

// Optional undoes Required.
func (f *FieldStep) Optional() *FieldStep {
	f.meta.Required = false
	return f
}

// Default sets the initial value. v is plain Go data accepted by
// formstate.FromAny and must coerce to the field type.
func (f *FieldStep) Default(v any) *FieldStep {
	f.def, f.hasD = v, true
	return f
}

// DependsOn declares fields whose changes re-validate this one.
func (f *FieldStep) DependsOn(names ...string) *FieldStep {
	for _, n := range names {
		if !contains(f.meta.DependsOn, n) {
			f.meta.DependsOn = append(f.meta.DependsOn, n)
		}
	}
	return f
}

// Attr sets a UI attribute.
func (f *FieldStep) Attr(key, value string) *FieldStep {
	if f.meta.Attributes == nil {
		f.meta.Attributes = map[string]string{}
	}
	f.meta.Attributes[key] = value
	return f
}

// Sensitive keeps the value out of every cache tier but Hot.
func (f *FieldStep) Sensitive() *FieldStep { return f.Attr(formstate.AttrSensitive, "true") }

// TrimSpace trims surrounding white space before the value is stored.
// It has no effect on non-text fields.
func (f *FieldStep) TrimSpace() *FieldStep {
	f.trim = true
	return f
}

// Validate appends validators in the order they must run.
func (f *FieldStep) Validate(specs ...formstate.ValidatorSpec) *FieldStep {
	f.meta.Validators = append(f.meta.Validators, specs...)
	return f
}

// Message overrides the failure message of the last declared validator.
func (f *FieldStep) Message(msg string) *FieldStep {
	if n := len(f.meta.Validators); n > 0 {
		f.meta.Validators[n-1] = f.meta.Validators[n-1].WithMessage(msg)
	} else {
		f.b.errs = append(f.b.errs, fmt.Errorf("field %q: Message without a validator", f.meta.Name))
	}
	return f
}

func (f *FieldStep) builtin(name string, params map[string]any) *FieldStep {
	return f.Validate(formstate.Builtin(name, params))
}

// Email requires an e-mail address.
func (f *FieldStep) Email() *FieldStep { return f.builtin(rules.Email, nil) }

// URL requires an absolute URL.
func (f *FieldStep) URL() *FieldStep { return f.builtin(rules.URL, nil) }

// MinLength bounds the length of text or arrays from below.
func (f *FieldStep) MinLength(n int) *FieldStep {
	return f.builtin(rules.MinLength, map[string]any{"min": n})
}

// MaxLength bounds the length of text or arrays from above.
func (f *FieldStep) MaxLength(n int) *FieldStep {
	return f.builtin(rules.MaxLength, map[string]any{"max": n})
}

// Min bounds a numeric value from below.
func (f *FieldStep) Min(x float64) *FieldStep { return f.builtin(rules.Min, map[string]any{"min": x}) }

// Max bounds a numeric value from above.
func (f *FieldStep) Max(x float64) *FieldStep { return f.builtin(rules.Max, map[string]any{"max": x}) }

// Pattern requires text to match the regular expression re.
func (f *FieldStep) Pattern(re string) *FieldStep {
	return f.builtin(rules.Pattern, map[string]any{"pattern": re})
}

// OneOf restricts the value to the listed literals.
func (f *FieldStep) OneOf(values ...string) *FieldStep {
	return f.builtin(rules.OneOf, map[string]any{"values": values})
}

// Matches requires the value to equal the value of other and declares the
// dependency so edits to other re-validate this field.
func (f *FieldStep) Matches(other string) *FieldStep {
	f.DependsOn(other)
	return f.builtin(rules.Matches, map[string]any{"field": other})
}

// NoMarkup rejects text containing HTML.
func (f *FieldStep) NoMarkup() *FieldStep { return f.builtin(rules.NoMarkup, nil) }

// Expr adds an expr-lang predicate; value, field, form and every field name
// are in scope.
func (f *FieldStep) Expr(src string) *FieldStep {
	return f.builtin(rules.Expr, map[string]any{"expr": src})
}

// CEL adds a CEL predicate over value, field and form.
func (f *FieldStep) CEL(src string) *FieldStep {
	return f.builtin(rules.CEL, map[string]any{"expr": src})
}

// Custom adds a validator registered under id. Whether it runs
// asynchronously is decided by its registration.
func (f *FieldStep) Custom(id string) *FieldStep { return f.Validate(formstate.Custom(id)) }

// Async adds a custom validator under id and marks it asynchronous.
func (f *FieldStep) Async(id string) *FieldStep {
	return f.Validate(formstate.Custom(id).AsAsync())
}

func contains(list []string, s string) bool {
	for _, it := range list {
		if it == s {
			return true
		}
	}
	return false
}
