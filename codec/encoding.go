package codec

import (
	"fmt"
	"strings"

	"github.com/reoring/formstate"
)

// Encoding serializes values and snapshots in one payload format.
type Encoding interface {
	Name() string
	EncodeValue(v formstate.Value) ([]byte, error)
	DecodeValue(data []byte) (formstate.Value, error)
	EncodeSnapshot(s Snapshot) ([]byte, error)
	DecodeSnapshot(data []byte) (Snapshot, error)
}

// Format names accepted by ByName.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// snapshotVersion is written into every encoded snapshot.
const snapshotVersion = 1

// ByName returns the encoding registered under name.
func ByName(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatJSON, "":
		return JSON(), nil
	case FormatMsgpack, "compact":
		return Msgpack(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}
