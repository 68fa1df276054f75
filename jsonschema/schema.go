package jsonschema

// Draft is the dialect declared by exported documents.
const Draft = "https://json-schema.org/draft/2020-12/schema"

// Schema is a minimal JSON Schema representation used for export.
// Only the keywords a form field can express are modelled.
type Schema struct {
	// Core
	SchemaURI   string `json:"$schema,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// WriteOnly marks sensitive fields (passwords, tokens).
	WriteOnly bool `json:"writeOnly,omitempty"`

	// String
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	// Number
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// Object
	Properties           map[string]*Schema  `json:"properties,omitempty"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties any                 `json:"additionalProperties,omitempty"`

	// Array
	Items    *Schema `json:"items,omitempty"`
	MinItems *int    `json:"minItems,omitempty"`
	MaxItems *int    `json:"maxItems,omitempty"`

	// Extensions carry form metadata that has no JSON Schema keyword
	// (dependencies, UI attributes, custom validator ids).
	DependsOn  []string          `json:"x-depends-on,omitempty"`
	Attributes map[string]string `json:"x-attributes,omitempty"`
	Validators []string          `json:"x-validators,omitempty"`
}

// Int returns a pointer to n for the optional integer keywords.
func Int(n int) *int { return &n }

// Float returns a pointer to f for the optional number keywords.
func Float(f float64) *float64 { return &f }
