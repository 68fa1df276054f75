package dsl

import (
	"context"
	"strings"
	"sync"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/internal/engine"
	"github.com/reoring/formstate/rules"
)

// FormDef is a built schema. It is immutable and safe for concurrent use.
type FormDef struct {
	schema       *formstate.Schema
	trim         map[string]bool
	reg          *rules.Registry
	refineOnErrs bool

	once   sync.Once
	eng    *engine.Engine
	engErr error
}

var (
	_ formstate.Form       = (*FormDef)(nil)
	_ formstate.Refiner    = (*FormDef)(nil)
	_ formstate.Normalizer = (*FormDef)(nil)
)

// FormName implements formstate.Form.
func (d *FormDef) FormName() string { return d.schema.Name() }

// Fields implements formstate.Form.
func (d *FormDef) Fields() []formstate.FieldMetadata { return d.schema.FieldMetadata() }

// Refinements implements formstate.Refiner.
func (d *FormDef) Refinements() []formstate.ValidatorSpec { return d.schema.Refinements() }

// Normalize implements formstate.Normalizer: text fields declared with
// TrimSpace lose surrounding white space.
func (d *FormDef) Normalize(field string, v formstate.Value) formstate.Value {
	if !d.trim[field] {
		return v
	}
	if s, ok := v.AsText(); ok {
		if t := strings.TrimSpace(s); t != s {
			return formstate.Text(t)
		}
	}
	return v
}

// Schema returns the compiled schema.
func (d *FormDef) Schema() *formstate.Schema { return d.schema }

// DefaultValues returns a value set holding every field's default.
func (d *FormDef) DefaultValues() formstate.Values { return d.schema.DefaultValues() }

// GetFieldValue reads name from values; see formstate.Schema.GetFieldValue.
func (d *FormDef) GetFieldValue(values formstate.Values, name string) (formstate.Value, bool, error) {
	return d.schema.GetFieldValue(values, name)
}

// SetFieldValue coerces and normalizes v, then stores it under name.
func (d *FormDef) SetFieldValue(values formstate.Values, name string, v formstate.Value) error {
	meta, err := d.schema.Lookup(name)
	if err != nil {
		return err
	}
	out, err := formstate.CoerceField(v, meta)
	if err != nil {
		return err
	}
	values[name] = d.Normalize(name, out)
	return nil
}

func (d *FormDef) compiled() (*engine.Engine, error) {
	d.once.Do(func() {
		d.eng, d.engErr = engine.New(d.schema, d.reg, engine.Options{
			RefineOnFieldErrors: d.refineOnErrs,
			Debounce:            -1,
		})
	})
	return d.eng, d.engErr
}

// Parse coerces in over the defaults and runs every validator, async ones
// included, in the calling goroutine. Values that cannot be coerced are
// reported as field issues. The returned error is ValidationErrors when the
// values are invalid; unknown fields, unresolvable validators and context
// cancellation are returned as they are.
func (d *FormDef) Parse(ctx context.Context, in formstate.Values) (formstate.Values, error) {
	eng, err := d.compiled()
	if err != nil {
		return nil, err
	}
	values := d.schema.DefaultValues()
	coerceErrs := map[string]formstate.Issue{}
	for name, v := range in {
		if err := d.SetFieldValue(values, name, v); err != nil {
			fe, ok := err.(*formstate.FieldError)
			if !ok {
				return nil, err
			}
			coerceErrs[name] = fe.Issue()
		}
	}
	res := eng.ValidateAll(ctx, values)
	for name, it := range coerceErrs {
		res.Errors.Fields[name] = it
	}
	if len(coerceErrs) > 0 && !d.refineOnErrs {
		res.Errors.Form = nil
	}
	for _, name := range res.PendingAsync {
		if _, failed := res.Errors.Fields[name]; failed {
			continue
		}
		it, err := eng.ValidateAsync(ctx, name, values)
		if err != nil {
			return nil, err
		}
		if it != nil {
			res.Errors.Fields[name] = *it
			if !d.refineOnErrs {
				res.Errors.Form = nil
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !res.Errors.Empty() {
		return values, res.Errors
	}
	return values, nil
}

// Validate reports whether values satisfy the schema; see Parse.
func (d *FormDef) Validate(ctx context.Context, values formstate.Values) error {
	_, err := d.Parse(ctx, values)
	return err
}
