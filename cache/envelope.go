package cache

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/ugorji/go/codec"
)

// wireEntry is the on-disk envelope. Times are unix nanoseconds, zero for
// the zero time.
type wireEntry struct {
	ID      string `codec:"id"`
	Payload []byte `codec:"p"`
	Created int64  `codec:"c"`
	Expires int64  `codec:"e"`
	Tier    uint8  `codec:"t"`
}

var envelopeHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	h.WriteExt = true
	return h
}()

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func encodeEntry(e Entry) ([]byte, error) {
	w := wireEntry{
		ID:      e.ID,
		Payload: e.Payload,
		Created: unixNano(e.CreatedAt),
		Expires: unixNano(e.ExpiresAt),
		Tier:    uint8(e.Tier),
	}
	var out []byte
	if err := codec.NewEncoderBytes(&out, envelopeHandle).Encode(&w); err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return out, nil
}

func decodeEntry(data []byte) (e Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to decode entry: %v", r)
		}
	}()
	var w wireEntry
	if err := codec.NewDecoderBytes(data, envelopeHandle).Decode(&w); err != nil {
		return Entry{}, fmt.Errorf("failed to decode entry: %w", err)
	}
	if w.ID == "" || w.Tier > uint8(TierArchive) {
		return Entry{}, fmt.Errorf("failed to decode entry: malformed envelope")
	}
	return Entry{
		ID:        w.ID,
		Payload:   w.Payload,
		CreatedAt: fromUnixNano(w.Created),
		ExpiresAt: fromUnixNano(w.Expires),
		Tier:      Tier(w.Tier),
	}, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
