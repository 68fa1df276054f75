package dsl

import (
	"fmt"
	"strings"

	"github.com/reoring/formstate"
)

// Type is a declared field type. Arrays also carry their element type.
type Type struct {
	field formstate.FieldType
	elem  formstate.FieldType
}

// Text declares a string field.
func Text() Type { return Type{field: formstate.TypeText} }

// Number declares a floating point field.
func Number() Type { return Type{field: formstate.TypeNumber} }

// Integer declares an integral field.
func Integer() Type { return Type{field: formstate.TypeInteger} }

// Bool declares a boolean field.
func Bool() Type { return Type{field: formstate.TypeBoolean} }

// Date declares a calendar date field.
func Date() Type { return Type{field: formstate.TypeDate} }

// DateTime declares a timestamp field.
func DateTime() Type { return Type{field: formstate.TypeDateTime} }

// Array declares a list field whose elements are not constrained.
func Array() Type { return Type{field: formstate.TypeArray} }

// ArrayOf declares a list field whose elements are coerced to elem.
// Nested element constraints are not kept: ArrayOf(ArrayOf(Text())) is a
// list of untyped lists.
func ArrayOf(elem Type) Type { return Type{field: formstate.TypeArray, elem: elem.field} }

// Object declares a nested key/value field.
func Object() Type { return Type{field: formstate.TypeObject} }

// File declares an uploaded file field.
func File() Type { return Type{field: formstate.TypeFile} }

// FieldType returns the storage type.
func (t Type) FieldType() formstate.FieldType { return t.field }

// Elem returns the array element type, TypeUnspecified for other types.
func (t Type) Elem() formstate.FieldType { return t.elem }

func (t Type) String() string {
	if t.field == formstate.TypeArray && t.elem != formstate.TypeUnspecified {
		return "array<" + t.elem.String() + ">"
	}
	return t.field.String()
}

// ParseType accepts the names understood by formstate.ParseFieldType plus
// the "array<elem>" and "[]elem" spellings.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	var elem string
	switch {
	case strings.HasPrefix(lower, "array<") && strings.HasSuffix(lower, ">"):
		elem = s[len("array<") : len(s)-1]
	case strings.HasPrefix(lower, "[]"):
		elem = s[2:]
	default:
		ft, err := formstate.ParseFieldType(s)
		if err != nil {
			return Type{}, err
		}
		if ft == formstate.TypeUnspecified {
			return Type{}, fmt.Errorf("dsl: field type is required")
		}
		return Type{field: ft}, nil
	}
	et, err := formstate.ParseFieldType(elem)
	if err != nil {
		return Type{}, err
	}
	if et == formstate.TypeArray {
		return Type{}, fmt.Errorf("dsl: nested array type %q is not supported", s)
	}
	return Type{field: formstate.TypeArray, elem: et}, nil
}
