package formstate

import (
	"math"
	"strconv"
	"strings"

	"github.com/reoring/formstate/i18n"
)

// Coerce converts v to the kind stored by target. Null coerces to the zero
// value of target; use CoerceField to apply the required-field rule.
func Coerce(v Value, target FieldType) (Value, error) {
	return coerceTo(v, target, TypeUnspecified)
}

// CoerceField converts v for storage in the field described by meta. Null
// fails on required fields and becomes the zero value otherwise. Array
// elements are coerced to meta.ElemType when it is set.
func CoerceField(v Value, meta FieldMetadata) (Value, error) {
	if v.IsNull() {
		if meta.Required {
			return Value{}, &FieldError{Field: meta.Name, Code: CodeRequired, Message: i18n.T(CodeRequired, nil)}
		}
		return Zero(meta.Type), nil
	}
	out, err := coerceTo(v, meta.Type, meta.ElemType)
	if err != nil {
		fe, ok := err.(*FieldError)
		if !ok {
			fe = &FieldError{Code: CodeInvalidType, Message: err.Error(), Cause: err}
		}
		fe.Field = meta.Name
		return Value{}, fe
	}
	return out, nil
}

func coerceTo(v Value, target, elem FieldType) (Value, error) {
	if target == TypeUnspecified {
		return v, nil
	}
	if v.kind == KindNull {
		return Zero(target), nil
	}
	switch target {
	case TypeText:
		switch v.kind {
		case KindText:
			return v, nil
		case KindNumber, KindInteger, KindBoolean, KindDate, KindDateTime:
			return Text(v.String()), nil
		}
	case TypeNumber:
		switch v.kind {
		case KindNumber:
			return v, nil
		case KindInteger:
			return Number(float64(v.i)), nil
		case KindText:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
			if err != nil {
				return Value{}, typeMismatch(v, target, err)
			}
			return Number(f), nil
		}
	case TypeInteger:
		switch v.kind {
		case KindInteger:
			return v, nil
		case KindNumber:
			if i, ok := integral(v.num); ok {
				return Integer(i), nil
			}
		case KindText:
			s := strings.TrimSpace(v.str)
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return Integer(i), nil
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				if i, ok := integral(f); ok {
					return Integer(i), nil
				}
			}
		}
	case TypeBoolean:
		switch v.kind {
		case KindBoolean:
			return v, nil
		case KindInteger:
			if v.i == 0 || v.i == 1 {
				return Bool(v.i == 1), nil
			}
		case KindText:
			if b, ok := parseBool(v.str); ok {
				return Bool(b), nil
			}
		}
	case TypeDate:
		switch v.kind {
		case KindDate:
			return v, nil
		case KindDateTime:
			return Date(v.t), nil
		case KindText:
			s := strings.TrimSpace(v.str)
			if t, err := ParseDate(s); err == nil {
				return Date(t), nil
			}
			if t, err := ParseDateTime(s); err == nil {
				return Date(t), nil
			}
		}
	case TypeDateTime:
		switch v.kind {
		case KindDateTime:
			return v, nil
		case KindDate:
			return DateTime(v.t), nil
		case KindText:
			t, err := ParseDateTime(strings.TrimSpace(v.str))
			if err != nil {
				return Value{}, typeMismatch(v, target, err)
			}
			return DateTime(t), nil
		}
	case TypeArray:
		if v.kind == KindArray {
			if elem == TypeUnspecified {
				return v, nil
			}
			items := make([]Value, len(v.arr))
			for i, it := range v.arr {
				c, err := coerceTo(it, elem, TypeUnspecified)
				if err != nil {
					fe := err.(*FieldError)
					fe.Message = "[" + strconv.Itoa(i) + "]: " + fe.Message
					return Value{}, fe
				}
				items[i] = c
			}
			return Value{kind: KindArray, arr: items}, nil
		}
	case TypeObject:
		if v.kind == KindObject {
			return v, nil
		}
	case TypeFile:
		if v.kind == KindFile {
			return v, nil
		}
	}
	return Value{}, typeMismatch(v, target, nil)
}

func typeMismatch(v Value, target FieldType, cause error) *FieldError {
	msg := i18n.T(CodeInvalidType, map[string]string{"expected": target.String(), "got": v.kind.String()})
	return &FieldError{Code: CodeInvalidType, Message: msg, Cause: cause}
}

func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes", "y", "t":
		return true, true
	case "false", "0", "off", "no", "n", "f":
		return false, true
	default:
		return false, false
	}
}
