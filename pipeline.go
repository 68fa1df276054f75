package formstate

// SchemaOf registers f: a *Schema is returned as is, any other Form is
// compiled with NewSchema using the refinements of Refiner when implemented.
func SchemaOf(f Form) (*Schema, error) {
	if s, ok := f.(*Schema); ok {
		return s, nil
	}
	return NewSchema(f.FormName(), f.Fields(), ApplyRefinements(f)...)
}

// ApplyRefinements returns the refinements of f if it implements Refiner.
func ApplyRefinements(f Form) []ValidatorSpec {
	if r, ok := f.(Refiner); ok {
		return r.Refinements()
	}
	return nil
}

// ApplyNormalize calls Normalizer if f implements it.
func ApplyNormalize(f Form, field string, v Value) Value {
	if n, ok := f.(Normalizer); ok {
		return n.Normalize(field, v)
	}
	return v
}
