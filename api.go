package formstate

// Form is implemented by anything that can describe a form: a *Schema, the
// dsl builder output, or a caller type.
type Form interface {
	// FormName identifies the schema (and namespaces persisted drafts).
	FormName() string
	// Fields returns the field declarations in declaration order.
	Fields() []FieldMetadata
}

// Refiner is implemented by forms that declare form-level refinements.
type Refiner interface {
	Refinements() []ValidatorSpec
}

// Normalizer is implemented by forms that rewrite a coerced value before it
// is stored (trimming, case folding).
type Normalizer interface {
	Normalize(field string, v Value) Value
}

// FormName makes *Schema a Form.
func (s *Schema) FormName() string { return s.name }

// Fields makes *Schema a Form.
func (s *Schema) Fields() []FieldMetadata { return s.FieldMetadata() }
