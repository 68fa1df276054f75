package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/internal/jsontok"
)

// typeKey tags JSON objects that carry a non-JSON variant.
const typeKey = "$type"

// JSONOption configures the human-readable encoding.
type JSONOption func(*jsonEncoding)

// WithMaxDepth rejects documents nested deeper than n.
func WithMaxDepth(n int) JSONOption { return func(j *jsonEncoding) { j.lim.MaxDepth = n } }

// WithMaxBytes rejects documents larger than n bytes.
func WithMaxBytes(n int64) JSONOption { return func(j *jsonEncoding) { j.lim.MaxBytes = n } }

// WithIndent pretty-prints encoded output.
func WithIndent(indent string) JSONOption { return func(j *jsonEncoding) { j.indent = indent } }

type jsonEncoding struct {
	lim    jsontok.Limits
	indent string
}

// JSON returns the human-readable encoding. Integers are written without a
// fraction and Numbers always with one (or an exponent), so the two kinds
// survive a round trip. Dates, date-times and files are written as objects
// tagged with "$type". Duplicate keys are rejected on decode.
func JSON(opts ...JSONOption) Encoding {
	j := &jsonEncoding{lim: jsontok.Limits{MaxDepth: 64}}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j
}

func (j *jsonEncoding) Name() string { return FormatJSON }

func (j *jsonEncoding) marshal(v any) ([]byte, error) {
	if j.indent != "" {
		return gojson.MarshalIndent(v, "", j.indent)
	}
	return gojson.Marshal(v)
}

func (j *jsonEncoding) EncodeValue(v formstate.Value) ([]byte, error) {
	b, err := j.marshal(toJSONWire(v))
	if err != nil {
		return nil, serr(FormatJSON, "encode_value", KindEncode, err)
	}
	return b, nil
}

func (j *jsonEncoding) DecodeValue(data []byte) (formstate.Value, error) {
	raw, err := jsontok.DecodeBytes(data, j.lim)
	if err != nil {
		return formstate.Value{}, serr(FormatJSON, "decode_value", decodeKind(err), err)
	}
	v, err := fromJSONWire(raw)
	if err != nil {
		return formstate.Value{}, serr(FormatJSON, "decode_value", KindCorrupted, err)
	}
	return v, nil
}

type jsonSnapshot struct {
	Version     int            `json:"version"`
	FormKey     string         `json:"form_key"`
	Schema      string         `json:"schema"`
	Values      map[string]any `json:"values"`
	Touched     []string       `json:"touched"`
	Dirty       []string       `json:"dirty"`
	Redacted    []string       `json:"redacted,omitempty"`
	SubmitCount int            `json:"submit_count"`
	SavedAt     string         `json:"saved_at"`
}

func (j *jsonEncoding) EncodeSnapshot(s Snapshot) ([]byte, error) {
	w := jsonSnapshot{
		Version:     snapshotVersion,
		FormKey:     s.FormKey,
		Schema:      s.Schema,
		Values:      make(map[string]any, len(s.Values)),
		Touched:     nonNil(s.Touched),
		Dirty:       nonNil(s.Dirty),
		Redacted:    s.Redacted,
		SubmitCount: s.SubmitCount,
		SavedAt:     formstate.FormatDateTime(s.SavedAt),
	}
	for k, v := range s.Values {
		w.Values[k] = toJSONWire(v)
	}
	b, err := j.marshal(w)
	if err != nil {
		return nil, serr(FormatJSON, "encode_snapshot", KindEncode, err)
	}
	return b, nil
}

// DecodeSnapshot parses through the enforcing token reader and then maps the
// generic tree, so duplicate keys anywhere in the document are rejected.
func (j *jsonEncoding) DecodeSnapshot(data []byte) (Snapshot, error) {
	raw, err := jsontok.DecodeBytes(data, j.lim)
	if err != nil {
		return Snapshot{}, serr(FormatJSON, "decode_snapshot", decodeKind(err), err)
	}
	s, err := snapshotFromTree(raw)
	if err != nil {
		return Snapshot{}, serr(FormatJSON, "decode_snapshot", KindCorrupted, err)
	}
	return s, nil
}

func decodeKind(err error) ErrorKind {
	var je *jsontok.Error
	if errors.As(err, &je) && je.Code != "duplicate_key" {
		return KindDecode
	}
	return KindCorrupted
}

func snapshotFromTree(raw formstate.Value) (Snapshot, error) {
	if raw.Kind() != formstate.KindObject {
		return Snapshot{}, fmt.Errorf("snapshot: want object, got %s", raw.Kind())
	}
	var s Snapshot
	if v, _ := raw.Field("version"); !v.Equal(formstate.Integer(snapshotVersion)) {
		return Snapshot{}, fmt.Errorf("snapshot: unsupported version %s", v)
	}
	s.FormKey, _ = textField(raw, "form_key")
	s.Schema, _ = textField(raw, "schema")
	if n, ok := raw.Field("submit_count"); ok {
		i, ok := n.AsInteger()
		if !ok || i < 0 {
			return Snapshot{}, fmt.Errorf("snapshot: bad submit_count %s", n)
		}
		s.SubmitCount = int(i)
	}
	if at, ok := textField(raw, "saved_at"); ok && at != "" {
		t, err := formstate.ParseDateTime(at)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: saved_at: %w", err)
		}
		s.SavedAt = t
	}
	var err error
	if s.Touched, err = stringList(raw, "touched"); err != nil {
		return Snapshot{}, err
	}
	if s.Dirty, err = stringList(raw, "dirty"); err != nil {
		return Snapshot{}, err
	}
	if s.Redacted, err = stringList(raw, "redacted"); err != nil {
		return Snapshot{}, err
	}
	s.Values = formstate.Values{}
	if vals, ok := raw.Field("values"); ok && !vals.IsNull() {
		obj, ok := vals.AsObject()
		if !ok {
			return Snapshot{}, fmt.Errorf("snapshot: values: want object, got %s", vals.Kind())
		}
		for k, w := range obj {
			v, err := fromJSONWire(w)
			if err != nil {
				return Snapshot{}, fmt.Errorf("snapshot: values.%s: %w", k, err)
			}
			s.Values[k] = v
		}
	}
	return s, nil
}

func textField(obj formstate.Value, key string) (string, bool) {
	v, ok := obj.Field(key)
	if !ok {
		return "", false
	}
	return v.AsText()
}

func stringList(obj formstate.Value, key string) ([]string, error) {
	v, ok := obj.Field(key)
	if !ok || v.IsNull() {
		return nil, nil
	}
	items, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("snapshot: %s: want array, got %s", key, v.Kind())
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.AsText()
		if !ok {
			return nil, fmt.Errorf("snapshot: %s: want text, got %s", key, it.Kind())
		}
		out = append(out, s)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// toJSONWire maps a Value onto data goccy/go-json writes as intended.
func toJSONWire(v formstate.Value) any {
	switch v.Kind() {
	case formstate.KindNull:
		return nil
	case formstate.KindText:
		s, _ := v.AsText()
		return s
	case formstate.KindNumber:
		f, _ := v.AsNumber()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return map[string]any{typeKey: "number", "value": strconv.FormatFloat(f, 'g', -1, 64)}
		}
		return gojson.RawMessage(numberLiteral(f))
	case formstate.KindInteger:
		i, _ := v.AsInteger()
		return i
	case formstate.KindBoolean:
		b, _ := v.AsBool()
		return b
	case formstate.KindDate:
		t, _ := v.AsTime()
		return map[string]any{typeKey: "date", "value": formstate.FormatDate(t)}
	case formstate.KindDateTime:
		t, _ := v.AsTime()
		return map[string]any{typeKey: "datetime", "value": formstate.FormatDateTime(t)}
	case formstate.KindArray:
		items, _ := v.AsArray()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = toJSONWire(it)
		}
		return out
	case formstate.KindObject:
		obj, _ := v.AsObject()
		out := make(map[string]any, len(obj))
		for k, it := range obj {
			out[k] = toJSONWire(it)
		}
		if _, clash := obj[typeKey]; clash {
			return map[string]any{typeKey: "object", "value": out}
		}
		return out
	case formstate.KindFile:
		f, _ := v.AsFile()
		return map[string]any{typeKey: "file", "name": f.Name, "size": f.Size, "mime": f.MIME, "handle": f.Handle}
	default:
		return nil
	}
}

// numberLiteral always carries a fraction or an exponent.
func numberLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func fromJSONWire(v formstate.Value) (formstate.Value, error) {
	switch v.Kind() {
	case formstate.KindArray:
		items, _ := v.AsArray()
		for i, it := range items {
			x, err := fromJSONWire(it)
			if err != nil {
				return formstate.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = x
		}
		return formstate.Array(items...), nil
	case formstate.KindObject:
		obj, _ := v.AsObject()
		tag, tagged := obj[typeKey]
		if !tagged {
			return unwrapObject(obj)
		}
		name, ok := tag.AsText()
		if !ok {
			return formstate.Value{}, fmt.Errorf("%s must be text", typeKey)
		}
		return fromTagged(name, obj)
	default:
		return v, nil
	}
}

func unwrapObject(obj map[string]formstate.Value) (formstate.Value, error) {
	for k, it := range obj {
		x, err := fromJSONWire(it)
		if err != nil {
			return formstate.Value{}, fmt.Errorf("%s: %w", k, err)
		}
		obj[k] = x
	}
	return formstate.Object(obj), nil
}

func fromTagged(name string, obj map[string]formstate.Value) (formstate.Value, error) {
	text := func(key string) (string, error) {
		s, ok := obj[key].AsText()
		if !ok {
			return "", fmt.Errorf("%s %q: %s must be text", typeKey, name, key)
		}
		return s, nil
	}
	switch name {
	case "date":
		s, err := text("value")
		if err != nil {
			return formstate.Value{}, err
		}
		t, err := formstate.ParseDate(s)
		if err != nil {
			return formstate.Value{}, err
		}
		return formstate.Date(t), nil
	case "datetime":
		s, err := text("value")
		if err != nil {
			return formstate.Value{}, err
		}
		t, err := formstate.ParseDateTime(s)
		if err != nil {
			return formstate.Value{}, err
		}
		return formstate.DateTime(t), nil
	case "number":
		s, err := text("value")
		if err != nil {
			return formstate.Value{}, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return formstate.Value{}, err
		}
		return formstate.Number(f), nil
	case "file":
		var f formstate.File
		var err error
		if f.Name, err = text("name"); err != nil {
			return formstate.Value{}, err
		}
		f.MIME, _ = obj["mime"].AsText()
		f.Handle, _ = obj["handle"].AsText()
		size, ok := obj["size"].AsInteger()
		if !ok {
			return formstate.Value{}, fmt.Errorf("%s %q: size must be an integer", typeKey, name)
		}
		f.Size = size
		return formstate.FileOf(f), nil
	case "object":
		inner, ok := obj["value"].AsObject()
		if !ok {
			return formstate.Value{}, fmt.Errorf("%s %q: value must be an object", typeKey, name)
		}
		return unwrapObject(inner)
	default:
		return formstate.Value{}, fmt.Errorf("unknown %s %q", typeKey, name)
	}
}
