package codec

import (
	"errors"
	"fmt"
)

// ErrorKind classifies serialization failures.
type ErrorKind uint8

const (
	KindEncode ErrorKind = iota
	KindDecode
	KindUnsupported
	KindCorrupted
)

func (k ErrorKind) String() string {
	switch k {
	case KindEncode:
		return "encode"
	case KindDecode:
		return "decode"
	case KindUnsupported:
		return "unsupported"
	case KindCorrupted:
		return "corrupted"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ErrUnsupportedFormat is returned by ByName for unknown encoding names.
var ErrUnsupportedFormat = errors.New("codec: unsupported format")

// SerializationError reports an encode or decode failure of one format.
type SerializationError struct {
	Format string
	Op     string // "encode_value", "decode_snapshot", ...
	Kind   ErrorKind
	Err    error
}

func (e *SerializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("codec: %s %s: %s", e.Format, e.Op, e.Kind)
	}
	return fmt.Sprintf("codec: %s %s: %s: %v", e.Format, e.Op, e.Kind, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// IsCorrupted reports whether err is a decode failure caused by malformed
// input, as opposed to an unsupported format or value.
func IsCorrupted(err error) bool {
	var se *SerializationError
	return errors.As(err, &se) && (se.Kind == KindCorrupted || se.Kind == KindDecode)
}

func serr(format, op string, kind ErrorKind, err error) error {
	return &SerializationError{Format: format, Op: op, Kind: kind, Err: err}
}
