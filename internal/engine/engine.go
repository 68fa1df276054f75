// Package engine runs field validators and form refinements against a
// schema: dependency-ordered full passes, per-field first-error-wins, and
// debounced async validators guarded by per-field generations.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/rules"
)

// DefaultDebounce is the async validator delay used when Options leaves it
// unset.
const DefaultDebounce = 300 * time.Millisecond

// Options configures an Engine.
type Options struct {
	// RefineOnFieldErrors runs form-level refinements even when some field
	// failed. By default refinements only run on a clean field pass.
	RefineOnFieldErrors bool
	// Debounce delays async validators; negative disables the delay.
	Debounce time.Duration
	Logger   *slog.Logger
}

type fieldPlan struct {
	meta  formstate.FieldMetadata
	sync  []*rules.Validator
	async []*rules.Validator
}

// Engine is a compiled validation plan for one schema. It is safe for
// concurrent use; it holds no per-form state.
type Engine struct {
	schema      *formstate.Schema
	plans       map[string]*fieldPlan
	refinements []*rules.FormValidator
	opts        Options
	log         *slog.Logger
}

// Result is the outcome of a synchronous full pass.
type Result struct {
	Errors formstate.ValidationErrors
	// PendingAsync lists fields, in dependency order, that passed their sync
	// validators and still have async validators to run.
	PendingAsync []string
}

// New resolves every validator of schema through reg. Unknown validators and
// bad parameters are schema-definition errors reported here.
func New(schema *formstate.Schema, reg *rules.Registry, opts Options) (*Engine, error) {
	if reg == nil {
		reg = rules.Default()
	}
	if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		schema: schema,
		plans:  make(map[string]*fieldPlan, schema.Len()),
		opts:   opts,
		log:    log.With("schema", schema.Name()),
	}
	for _, meta := range schema.FieldMetadata() {
		p := &fieldPlan{meta: meta}
		specs := meta.Validators
		if meta.Required && !declaresRequired(specs) {
			specs = append([]formstate.ValidatorSpec{formstate.Builtin(rules.Required, nil)}, specs...)
		}
		for _, spec := range specs {
			v, err := reg.Resolve(spec)
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: %w", formstate.ErrInvalidSchema, meta.Name, err)
			}
			if v.Async() {
				p.async = append(p.async, v)
			} else {
				p.sync = append(p.sync, v)
			}
		}
		e.plans[meta.Name] = p
	}
	for _, spec := range schema.Refinements() {
		r, err := reg.ResolveForm(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", formstate.ErrInvalidSchema, err)
		}
		e.refinements = append(e.refinements, r)
	}
	return e, nil
}

func declaresRequired(specs []formstate.ValidatorSpec) bool {
	for _, s := range specs {
		if s.Kind == formstate.ValidatorBuiltin && s.Name == rules.Required {
			return true
		}
	}
	return false
}

// Schema returns the schema the engine was compiled for.
func (e *Engine) Schema() *formstate.Schema { return e.schema }

// Debounce returns the effective async delay.
func (e *Engine) Debounce() time.Duration { return e.opts.Debounce }

// HasAsync reports whether name has async validators.
func (e *Engine) HasAsync(name string) bool {
	p, ok := e.plans[name]
	return ok && len(p.async) > 0
}

// IsAsyncIssue reports whether it was produced by one of the async
// validators of name.
func (e *Engine) IsAsyncIssue(name string, it formstate.Issue) bool {
	p, ok := e.plans[name]
	if !ok {
		return false
	}
	for _, v := range p.async {
		if v.Name() == it.Rule {
			return true
		}
	}
	return false
}

// ValidateField runs the sync validators of name in order and returns the
// first failure, or nil when all pass.
func (e *Engine) ValidateField(ctx context.Context, name string, values formstate.Values) (*formstate.Issue, error) {
	p, ok := e.plans[name]
	if !ok {
		return nil, &formstate.UnknownFieldError{Field: name, Schema: e.schema.Name()}
	}
	return run(ctx, p, p.sync, values), nil
}

// ValidateAsync runs the async validators of name in order and returns the
// first failure. It blocks; callers run it off the mutation path.
func (e *Engine) ValidateAsync(ctx context.Context, name string, values formstate.Values) (*formstate.Issue, error) {
	p, ok := e.plans[name]
	if !ok {
		return nil, &formstate.UnknownFieldError{Field: name, Schema: e.schema.Name()}
	}
	it := run(ctx, p, p.async, values)
	if it == nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return it, nil
}

func run(ctx context.Context, p *fieldPlan, vs []*rules.Validator, values formstate.Values) *formstate.Issue {
	value := values[p.meta.Name]
	for _, v := range vs {
		if ctx.Err() != nil {
			return nil
		}
		if it := v.Validate(ctx, p.meta, values, value); it != nil {
			return it
		}
	}
	return nil
}

// Affected returns name followed by every field depending on it, in
// dependency order.
func (e *Engine) Affected(name string) []string {
	return append([]string{name}, e.schema.Dependents(name)...)
}

// ValidateFields validates names (typically Affected output) and returns the
// issue per field; a nil entry means the field passed.
func (e *Engine) ValidateFields(ctx context.Context, names []string, values formstate.Values) (map[string]*formstate.Issue, error) {
	out := make(map[string]*formstate.Issue, len(names))
	for _, n := range names {
		it, err := e.ValidateField(ctx, n, values)
		if err != nil {
			return nil, err
		}
		out[n] = it
	}
	return out, nil
}

// ValidateAll runs every field in dependency order, then the refinements.
// The returned errors are complete for the synchronous part of the pass.
func (e *Engine) ValidateAll(ctx context.Context, values formstate.Values) Result {
	res := Result{Errors: formstate.ValidationErrors{Fields: map[string]formstate.Issue{}}}
	for _, name := range e.schema.Order() {
		p := e.plans[name]
		if it := run(ctx, p, p.sync, values); it != nil {
			res.Errors.Fields[name] = *it
			continue
		}
		if len(p.async) > 0 {
			res.PendingAsync = append(res.PendingAsync, name)
		}
	}
	if len(res.Errors.Fields) == 0 || e.opts.RefineOnFieldErrors {
		res.Errors.Form = e.Refine(ctx, values)
	} else {
		e.log.DebugContext(ctx, "refinements skipped", "field_errors", len(res.Errors.Fields))
	}
	return res
}

// RefinesOnFieldErrors reports the configured refinement policy.
func (e *Engine) RefinesOnFieldErrors() bool { return e.opts.RefineOnFieldErrors }

// Refine runs the form-level refinements in declaration order.
func (e *Engine) Refine(ctx context.Context, values formstate.Values) formstate.Issues {
	var out formstate.Issues
	for _, r := range e.refinements {
		out = append(out, r.Validate(ctx, values)...)
	}
	return out
}
