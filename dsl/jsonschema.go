package dsl

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/reoring/formstate"
	js "github.com/reoring/formstate/jsonschema"
	"github.com/reoring/formstate/rules"
)

// JSONSchema projects the form onto a JSON Schema object. Validators without
// a keyword (matches, expressions, custom ids) are listed in x-validators.
func (d *FormDef) JSONSchema() *js.Schema {
	out := &js.Schema{
		SchemaURI:            js.Draft,
		Title:                d.schema.Name(),
		Type:                 "object",
		Properties:           make(map[string]*js.Schema, d.schema.Len()),
		AdditionalProperties: false,
	}
	for _, meta := range d.schema.FieldMetadata() {
		out.Properties[meta.Name] = fieldSchema(meta)
		if meta.Required {
			out.Required = append(out.Required, meta.Name)
		}
	}
	return out
}

// MarshalJSONSchema renders JSONSchema as indented JSON.
func (d *FormDef) MarshalJSONSchema() ([]byte, error) {
	return gojson.MarshalIndent(d.JSONSchema(), "", "  ")
}

func fieldSchema(meta formstate.FieldMetadata) *js.Schema {
	s := typeSchema(meta.Type)
	if meta.Type == formstate.TypeArray && meta.ElemType != formstate.TypeUnspecified {
		s.Items = typeSchema(meta.ElemType)
	}
	if meta.Default != nil {
		s.Default = jsonDefault(*meta.Default)
	}
	if meta.Sensitive() {
		s.WriteOnly = true
	}
	if len(meta.DependsOn) > 0 {
		s.DependsOn = append([]string(nil), meta.DependsOn...)
	}
	for k, v := range meta.Attributes {
		if k == formstate.AttrSensitive {
			continue
		}
		if s.Attributes == nil {
			s.Attributes = map[string]string{}
		}
		s.Attributes[k] = v
	}
	for _, spec := range meta.Validators {
		if !applyKeyword(s, meta.Type, spec) {
			s.Validators = append(s.Validators, validatorName(spec))
		}
	}
	return s
}

func typeSchema(t formstate.FieldType) *js.Schema {
	switch t {
	case formstate.TypeText:
		return &js.Schema{Type: "string"}
	case formstate.TypeNumber:
		return &js.Schema{Type: "number"}
	case formstate.TypeInteger:
		return &js.Schema{Type: "integer"}
	case formstate.TypeBoolean:
		return &js.Schema{Type: "boolean"}
	case formstate.TypeDate:
		return &js.Schema{Type: "string", Format: "date"}
	case formstate.TypeDateTime:
		return &js.Schema{Type: "string", Format: "date-time"}
	case formstate.TypeArray:
		return &js.Schema{Type: "array"}
	case formstate.TypeObject:
		return &js.Schema{Type: "object"}
	case formstate.TypeFile:
		return &js.Schema{Type: "string", Format: "binary"}
	default:
		return &js.Schema{}
	}
}

// applyKeyword maps builtin validators that have a JSON Schema keyword.
func applyKeyword(s *js.Schema, t formstate.FieldType, spec formstate.ValidatorSpec) bool {
	if spec.Kind != formstate.ValidatorBuiltin || spec.Async {
		return false
	}
	switch spec.Name {
	case rules.Required:
		return true
	case rules.Email:
		s.Format = "email"
		return true
	case rules.URL:
		s.Format = "uri"
		return true
	case rules.MinLength, rules.MaxLength:
		n, ok := intParam(spec.Params, "min", "max", "value")
		if !ok {
			return false
		}
		switch {
		case t == formstate.TypeArray && spec.Name == rules.MinLength:
			s.MinItems = js.Int(n)
		case t == formstate.TypeArray:
			s.MaxItems = js.Int(n)
		case spec.Name == rules.MinLength:
			s.MinLength = js.Int(n)
		default:
			s.MaxLength = js.Int(n)
		}
		return true
	case rules.Min, rules.Max:
		f, ok := floatParam(spec.Params, "min", "max", "value")
		if !ok {
			return false
		}
		if spec.Name == rules.Min {
			s.Minimum = js.Float(f)
		} else {
			s.Maximum = js.Float(f)
		}
		return true
	case rules.Pattern:
		src, ok := spec.Params["pattern"].(string)
		if !ok {
			return false
		}
		s.Pattern = src
		return true
	case rules.OneOf:
		switch vs := spec.Params["values"].(type) {
		case []string:
			for _, v := range vs {
				s.Enum = append(s.Enum, v)
			}
		case []any:
			s.Enum = append(s.Enum, vs...)
		default:
			return false
		}
		return true
	}
	return false
}

func validatorName(spec formstate.ValidatorSpec) string {
	name := spec.Name
	if spec.Kind == formstate.ValidatorCustom {
		name = "custom:" + name
	}
	if spec.Async {
		name += " (async)"
	}
	return name
}

func floatParam(params map[string]any, names ...string) (float64, bool) {
	for _, n := range names {
		switch x := params[n].(type) {
		case int:
			return float64(x), true
		case int64:
			return float64(x), true
		case float64:
			return x, true
		case json.Number:
			f, err := x.Float64()
			return f, err == nil
		case string:
			f, err := strconv.ParseFloat(x, 64)
			return f, err == nil
		}
	}
	return 0, false
}

func intParam(params map[string]any, names ...string) (int, bool) {
	f, ok := floatParam(params, names...)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func jsonDefault(v formstate.Value) any {
	switch v.Kind() {
	case formstate.KindDate:
		t, _ := v.AsTime()
		return t.Format(time.DateOnly)
	case formstate.KindDateTime:
		t, _ := v.AsTime()
		return t.Format(time.RFC3339Nano)
	case formstate.KindFile:
		return nil
	}
	return v.Any()
}
