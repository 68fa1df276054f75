package formstate

import (
	"fmt"
	"strings"
	"time"
)

// FieldType is the declared storage type of a field.
type FieldType uint8

const (
	TypeUnspecified FieldType = iota // No constraint; only valid as an array element type.
	TypeText
	TypeNumber
	TypeInteger
	TypeBoolean
	TypeDate
	TypeDateTime
	TypeArray
	TypeObject
	TypeFile
)

var fieldTypeNames = map[FieldType]string{
	TypeUnspecified: "",
	TypeText:        "text",
	TypeNumber:      "number",
	TypeInteger:     "integer",
	TypeBoolean:     "boolean",
	TypeDate:        "date",
	TypeDateTime:    "datetime",
	TypeArray:       "array",
	TypeObject:      "object",
	TypeFile:        "file",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		if s == "" {
			return "unspecified"
		}
		return s
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseFieldType maps a type name ("text", "integer", ...) to a FieldType.
// "string", "int", "bool" and "float" are accepted as aliases.
func ParseFieldType(s string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "string":
		return TypeText, nil
	case "number", "float":
		return TypeNumber, nil
	case "integer", "int":
		return TypeInteger, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "datetime", "date-time", "timestamp":
		return TypeDateTime, nil
	case "array", "list":
		return TypeArray, nil
	case "object", "map":
		return TypeObject, nil
	case "file":
		return TypeFile, nil
	case "", "any":
		return TypeUnspecified, nil
	default:
		return TypeUnspecified, fmt.Errorf("formstate: unknown field type %q", s)
	}
}

// Kind returns the value kind a field of this type stores.
func (t FieldType) Kind() Kind {
	switch t {
	case TypeText:
		return KindText
	case TypeNumber:
		return KindNumber
	case TypeInteger:
		return KindInteger
	case TypeBoolean:
		return KindBoolean
	case TypeDate:
		return KindDate
	case TypeDateTime:
		return KindDateTime
	case TypeArray:
		return KindArray
	case TypeObject:
		return KindObject
	case TypeFile:
		return KindFile
	default:
		return KindNull
	}
}

// Zero returns the zero value of a field type.
func Zero(t FieldType) Value {
	switch t {
	case TypeText:
		return Text("")
	case TypeNumber:
		return Number(0)
	case TypeInteger:
		return Integer(0)
	case TypeBoolean:
		return Bool(false)
	case TypeDate:
		return Date(time.Time{})
	case TypeDateTime:
		return DateTime(time.Time{})
	case TypeArray:
		return Array()
	case TypeObject:
		return Object(nil)
	case TypeFile:
		return FileOf(File{})
	default:
		return Null()
	}
}

// Mode decides when a form instance runs field validation.
type Mode uint8

const (
	ModeOnSubmit Mode = iota // Validate only when submitting.
	ModeOnBlur               // Validate a field when it loses focus.
	ModeOnChange             // Validate a field on every value change.
)

func (m Mode) String() string {
	switch m {
	case ModeOnSubmit:
		return "on_submit"
	case ModeOnBlur:
		return "on_blur"
	case ModeOnChange:
		return "on_change"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode accepts "on_submit", "on_blur" and "on_change" (also the
// camel-case spellings).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "onsubmit", "submit":
		return ModeOnSubmit, nil
	case "onblur", "blur":
		return ModeOnBlur, nil
	case "onchange", "change":
		return ModeOnChange, nil
	default:
		return ModeOnSubmit, fmt.Errorf("formstate: unknown validation mode %q", s)
	}
}

// FieldStatus is the per-field validation state:
// Untouched -> Validating -> {Valid, Invalid}, re-entrant.
type FieldStatus uint8

const (
	StatusUntouched FieldStatus = iota
	StatusValidating
	StatusValid
	StatusInvalid
)

func (s FieldStatus) String() string {
	switch s {
	case StatusUntouched:
		return "untouched"
	case StatusValidating:
		return "validating"
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}
