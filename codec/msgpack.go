package codec

import (
	"fmt"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/reoring/formstate"
)

// Wire tags of the compact encoding. They are persisted; never renumber.
const (
	tagNull uint8 = iota
	tagText
	tagNumber
	tagInteger
	tagBoolean
	tagDate
	tagDateTime
	tagArray
	tagObject
	tagFile
)

// The struct used to serialize a Value to msgpack. Only the member selected
// by T is populated.
type wireValue struct {
	T    uint8                `codec:"t"`
	S    string               `codec:"s,omitempty"`
	F    float64              `codec:"f,omitempty"`
	I    int64                `codec:"i,omitempty"`
	B    bool                 `codec:"b,omitempty"`
	A    []wireValue          `codec:"a,omitempty"`
	O    map[string]wireValue `codec:"o,omitempty"`
	File *wireFile            `codec:"file,omitempty"`
}

type wireFile struct {
	Name   string `codec:"n"`
	Size   int64  `codec:"z"`
	MIME   string `codec:"m"`
	Handle string `codec:"h"`
}

type wireSnapshot struct {
	Version     int                  `codec:"v"`
	FormKey     string               `codec:"k"`
	Schema      string               `codec:"s"`
	Values      map[string]wireValue `codec:"vals"`
	Touched     []string             `codec:"t,omitempty"`
	Dirty       []string             `codec:"d,omitempty"`
	Redacted    []string             `codec:"r,omitempty"`
	SubmitCount int                  `codec:"n"`
	SavedAt     int64                `codec:"at"` // unix nanoseconds, 0 for the zero time
}

type msgpackEncoding struct{}

// Msgpack returns the compact encoding used for internal persistence.
func Msgpack() Encoding { return msgpackEncoding{} }

func (msgpackEncoding) Name() string { return FormatMsgpack }

func newHandle() *codec.MsgpackHandle {
	var mh codec.MsgpackHandle
	mh.RawToString = true
	mh.WriteExt = true
	return &mh
}

func encodeMsgpack(v any) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, newHandle())
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeMsgpack(data []byte, v any) (err error) {
	// Truncated or hostile input can make the decoder panic deep inside
	// reflection; surface that as an error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("msgpack: %v", r)
		}
	}()
	dec := codec.NewDecoderBytes(data, newHandle())
	return dec.Decode(v)
}

func (msgpackEncoding) EncodeValue(v formstate.Value) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, serr(FormatMsgpack, "encode_value", KindUnsupported, err)
	}
	b, err := encodeMsgpack(&w)
	if err != nil {
		return nil, serr(FormatMsgpack, "encode_value", KindEncode, err)
	}
	return b, nil
}

func (msgpackEncoding) DecodeValue(data []byte) (formstate.Value, error) {
	var w wireValue
	if err := decodeMsgpack(data, &w); err != nil {
		return formstate.Value{}, serr(FormatMsgpack, "decode_value", KindCorrupted, err)
	}
	v, err := fromWire(w)
	if err != nil {
		return formstate.Value{}, serr(FormatMsgpack, "decode_value", KindCorrupted, err)
	}
	return v, nil
}

func (msgpackEncoding) EncodeSnapshot(s Snapshot) ([]byte, error) {
	w := wireSnapshot{
		Version:     snapshotVersion,
		FormKey:     s.FormKey,
		Schema:      s.Schema,
		Values:      make(map[string]wireValue, len(s.Values)),
		Touched:     s.Touched,
		Dirty:       s.Dirty,
		Redacted:    s.Redacted,
		SubmitCount: s.SubmitCount,
	}
	if !s.SavedAt.IsZero() {
		w.SavedAt = s.SavedAt.UnixNano()
	}
	for k, v := range s.Values {
		wv, err := toWire(v)
		if err != nil {
			return nil, serr(FormatMsgpack, "encode_snapshot", KindUnsupported, fmt.Errorf("%s: %w", k, err))
		}
		w.Values[k] = wv
	}
	b, err := encodeMsgpack(&w)
	if err != nil {
		return nil, serr(FormatMsgpack, "encode_snapshot", KindEncode, err)
	}
	return b, nil
}

func (msgpackEncoding) DecodeSnapshot(data []byte) (Snapshot, error) {
	var w wireSnapshot
	if err := decodeMsgpack(data, &w); err != nil {
		return Snapshot{}, serr(FormatMsgpack, "decode_snapshot", KindCorrupted, err)
	}
	if w.Version != snapshotVersion {
		return Snapshot{}, serr(FormatMsgpack, "decode_snapshot", KindCorrupted, fmt.Errorf("unsupported version %d", w.Version))
	}
	s := Snapshot{
		FormKey:     w.FormKey,
		Schema:      w.Schema,
		Values:      make(formstate.Values, len(w.Values)),
		Touched:     w.Touched,
		Dirty:       w.Dirty,
		Redacted:    w.Redacted,
		SubmitCount: w.SubmitCount,
	}
	if w.SavedAt != 0 {
		s.SavedAt = time.Unix(0, w.SavedAt).UTC()
	}
	for k, wv := range w.Values {
		v, err := fromWire(wv)
		if err != nil {
			return Snapshot{}, serr(FormatMsgpack, "decode_snapshot", KindCorrupted, fmt.Errorf("%s: %w", k, err))
		}
		s.Values[k] = v
	}
	return s, nil
}

func toWire(v formstate.Value) (wireValue, error) {
	switch v.Kind() {
	case formstate.KindNull:
		return wireValue{T: tagNull}, nil
	case formstate.KindText:
		s, _ := v.AsText()
		return wireValue{T: tagText, S: s}, nil
	case formstate.KindNumber:
		f, _ := v.AsNumber()
		return wireValue{T: tagNumber, F: f}, nil
	case formstate.KindInteger:
		i, _ := v.AsInteger()
		return wireValue{T: tagInteger, I: i}, nil
	case formstate.KindBoolean:
		b, _ := v.AsBool()
		return wireValue{T: tagBoolean, B: b}, nil
	case formstate.KindDate:
		t, _ := v.AsTime()
		return wireValue{T: tagDate, S: formstate.FormatDate(t)}, nil
	case formstate.KindDateTime:
		t, _ := v.AsTime()
		return wireValue{T: tagDateTime, S: formstate.FormatDateTime(t)}, nil
	case formstate.KindArray:
		items, _ := v.AsArray()
		w := wireValue{T: tagArray, A: make([]wireValue, len(items))}
		for i, it := range items {
			x, err := toWire(it)
			if err != nil {
				return wireValue{}, err
			}
			w.A[i] = x
		}
		return w, nil
	case formstate.KindObject:
		obj, _ := v.AsObject()
		w := wireValue{T: tagObject, O: make(map[string]wireValue, len(obj))}
		for k, it := range obj {
			x, err := toWire(it)
			if err != nil {
				return wireValue{}, err
			}
			w.O[k] = x
		}
		return w, nil
	case formstate.KindFile:
		f, _ := v.AsFile()
		return wireValue{T: tagFile, File: &wireFile{Name: f.Name, Size: f.Size, MIME: f.MIME, Handle: f.Handle}}, nil
	default:
		return wireValue{}, fmt.Errorf("%w: kind %s", formstate.ErrUnsupportedValue, v.Kind())
	}
}

func fromWire(w wireValue) (formstate.Value, error) {
	switch w.T {
	case tagNull:
		return formstate.Null(), nil
	case tagText:
		return formstate.Text(w.S), nil
	case tagNumber:
		return formstate.Number(w.F), nil
	case tagInteger:
		return formstate.Integer(w.I), nil
	case tagBoolean:
		return formstate.Bool(w.B), nil
	case tagDate:
		t, err := formstate.ParseDate(w.S)
		if err != nil {
			return formstate.Value{}, err
		}
		return formstate.Date(t), nil
	case tagDateTime:
		t, err := formstate.ParseDateTime(w.S)
		if err != nil {
			return formstate.Value{}, err
		}
		return formstate.DateTime(t), nil
	case tagArray:
		items := make([]formstate.Value, len(w.A))
		for i, x := range w.A {
			v, err := fromWire(x)
			if err != nil {
				return formstate.Value{}, err
			}
			items[i] = v
		}
		return formstate.Array(items...), nil
	case tagObject:
		obj := make(map[string]formstate.Value, len(w.O))
		for k, x := range w.O {
			v, err := fromWire(x)
			if err != nil {
				return formstate.Value{}, err
			}
			obj[k] = v
		}
		return formstate.Object(obj), nil
	case tagFile:
		if w.File == nil {
			return formstate.Value{}, fmt.Errorf("file tag without file body")
		}
		return formstate.FileOf(formstate.File{Name: w.File.Name, Size: w.File.Size, MIME: w.File.MIME, Handle: w.File.Handle}), nil
	default:
		return formstate.Value{}, fmt.Errorf("unknown wire tag %d", w.T)
	}
}
