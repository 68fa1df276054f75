package formstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindInteger
	KindBoolean
	KindDate
	KindDateTime
	KindArray
	KindObject
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindFile:
		return "file"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// File describes an uploaded file. Handle is an opaque reference to the
// file bytes owned by the host.
type File struct {
	Name   string
	Size   int64
	MIME   string
	Handle string
}

// Value is a storable field value. The set of variants is closed; the zero
// Value is Null. Values are immutable: constructors and accessors copy
// arrays and objects.
type Value struct {
	kind Kind
	str  string
	num  float64
	i    int64
	b    bool
	t    time.Time
	arr  []Value
	obj  map[string]Value
	file File
}

// ErrUnsupportedValue is returned by FromAny for host values outside the
// closed value domain.
var ErrUnsupportedValue = errors.New("formstate: unsupported value")

func Null() Value               { return Value{} }
func Text(s string) Value       { return Value{kind: KindText, str: s} }
func Number(f float64) Value    { return Value{kind: KindNumber, num: f} }
func Integer(i int64) Value     { return Value{kind: KindInteger, i: i} }
func Bool(b bool) Value         { return Value{kind: KindBoolean, b: b} }
func FileOf(f File) Value       { return Value{kind: KindFile, file: f} }
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t.UTC()} }

// Date keeps only the calendar day of t, in t's own location.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Array builds an array value from items.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Object builds an object value from m.
func Object(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindObject, obj: cp}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsText() (string, bool)     { return v.str, v.kind == KindText }
func (v Value) AsNumber() (float64, bool)  { return v.num, v.kind == KindNumber }
func (v Value) AsInteger() (int64, bool)   { return v.i, v.kind == KindInteger }
func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBoolean }
func (v Value) AsFile() (File, bool)       { return v.file, v.kind == KindFile }

// AsTime returns the instant of a Date or DateTime value.
func (v Value) AsTime() (time.Time, bool) {
	return v.t, v.kind == KindDate || v.kind == KindDateTime
}

// AsFloat returns Number and Integer values as float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindInteger:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	cp := make(map[string]Value, len(v.obj))
	for k, x := range v.obj {
		cp[k] = x
	}
	return cp, true
}

// Len reports the length of text (in runes), arrays and objects.
func (v Value) Len() int {
	switch v.kind {
	case KindText:
		return len([]rune(v.str))
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// IsEmpty reports whether v counts as "no input": Null, blank text, and
// empty arrays or objects, and a file with neither name nor handle.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNull:
		return true
	case KindText:
		return strings.TrimSpace(v.str) == ""
	case KindArray:
		return len(v.arr) == 0
	case KindObject:
		return len(v.obj) == 0
	case KindFile:
		return v.file.Name == "" && v.file.Handle == ""
	default:
		return false
	}
}

// Equal reports structural equality with o.
func (v Value) Equal(o Value) bool { return Equal(v, o) }

// Equal reports whether a and b hold the same variant and the same content.
// Arrays compare element-wise in order; objects compare key sets and values.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindText:
		return a.str == b.str
	case KindNumber:
		return a.num == b.num || (math.IsNaN(a.num) && math.IsNaN(b.num))
	case KindInteger:
		return a.i == b.i
	case KindBoolean:
		return a.b == b.b
	case KindDate, KindDateTime:
		return a.t.Equal(b.t)
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindFile:
		return a.file == b.file
	default:
		return false
	}
}

// String renders v for display.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindText:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindDate:
		return FormatDate(v.t)
	case KindDateTime:
		return FormatDateTime(v.t)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, it := range v.arr {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.obj[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindFile:
		return fmt.Sprintf("%s (%d bytes)", v.file.Name, v.file.Size)
	default:
		return ""
	}
}

// Keys returns object keys in ascending order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the object member named key.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	x, ok := v.obj[key]
	return x, ok
}

// Index returns the array element at i.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Value{}, false
	}
	return v.arr[i], true
}

// Any projects v onto plain Go data: nil, string, float64, int64, bool,
// time.Time, []any, map[string]any or File.
func (v Value) Any() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindText:
		return v.str
	case KindNumber:
		return v.num
	case KindInteger:
		return v.i
	case KindBoolean:
		return v.b
	case KindDate, KindDateTime:
		return v.t
	case KindArray:
		out := make([]any, len(v.arr))
		for i, it := range v.arr {
			out[i] = it.Any()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, it := range v.obj {
			out[k] = it.Any()
		}
		return out
	case KindFile:
		return v.file
	default:
		return nil
	}
}

// FromAny converts plain host data into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Integer(int64(t)), nil
	case int8:
		return Integer(int64(t)), nil
	case int16:
		return Integer(int64(t)), nil
	case int32:
		return Integer(int64(t)), nil
	case int64:
		return Integer(t), nil
	case uint:
		return fromUint(uint64(t))
	case uint8:
		return Integer(int64(t)), nil
	case uint16:
		return Integer(int64(t)), nil
	case uint32:
		return Integer(int64(t)), nil
	case uint64:
		return fromUint(t)
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case json.Number:
		if isIntegerLiteral(string(t)) {
			if i, err := t.Int64(); err == nil {
				return Integer(i), nil
			}
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q: %v", ErrUnsupportedValue, string(t), err)
		}
		return Number(f), nil
	case time.Time:
		return DateTime(t), nil
	case File:
		return FileOf(t), nil
	case *File:
		if t == nil {
			return Null(), nil
		}
		return FileOf(*t), nil
	case []Value:
		return Array(t...), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = Text(s)
		}
		return Value{kind: KindArray, arr: items}, nil
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			v, err := FromAny(it)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]Value:
		return Object(t), nil
	case Values:
		return Object(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			v, err := FromAny(it)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = v
		}
		return Value{kind: KindObject, obj: m}, nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: %d overflows integer", ErrUnsupportedValue, u)
	}
	return Integer(int64(u)), nil
}

func isIntegerLiteral(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".eE")
}

// Values is the value object of a form instance, keyed by field name.
type Values map[string]Value

// Clone returns a shallow copy; Value itself is immutable.
func (vs Values) Clone() Values {
	out := make(Values, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}

// Get returns the value stored under name.
func (vs Values) Get(name string) (Value, bool) {
	v, ok := vs[name]
	return v, ok
}

// Names returns the field names in vs, sorted.
func (vs Values) Names() []string {
	out := make([]string, 0, len(vs))
	for k := range vs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Object returns vs as an object Value.
func (vs Values) Object() Value { return Object(vs) }

// Plain projects vs onto plain Go data.
func (vs Values) Plain() map[string]any {
	out := make(map[string]any, len(vs))
	for k, v := range vs {
		out[k] = v.Any()
	}
	return out
}

// Equal reports whether both value objects hold the same fields and values.
func (vs Values) Equal(o Values) bool {
	return Equal(Object(vs), Object(o))
}

// ValuesFromAny converts a plain map into Values.
func ValuesFromAny(m map[string]any) (Values, error) {
	out := make(Values, len(m))
	for k, x := range m {
		v, err := FromAny(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
