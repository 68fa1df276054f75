package jsontok

import (
	"bytes"
	"io"
	"strconv"

	j "github.com/goccy/go-json"
)

type containerKind int

const (
	kindObject containerKind = iota
	kindArray
)

type frame struct {
	kind         containerKind
	expectingKey bool
}

// countingReader tracks consumed bytes for MaxBytes enforcement.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type source struct {
	in    *countingReader
	dec   *j.Decoder
	stack []frame
}

// NewReader wraps an io.Reader into a TokenSource backed by goccy/go-json.
func NewReader(r io.Reader) TokenSource {
	in := &countingReader{r: r}
	dec := j.NewDecoder(in)
	dec.UseNumber()
	return &source{in: in, dec: dec}
}

// NewBytes wraps a byte slice into a TokenSource.
func NewBytes(b []byte) TokenSource { return NewReader(bytes.NewReader(b)) }

// valueDone flips the enclosing object back to expecting a key.
func (s *source) valueDone() {
	if n := len(s.stack); n > 0 {
		top := &s.stack[n-1]
		if top.kind == kindObject && !top.expectingKey {
			top.expectingKey = true
		}
	}
}

func (s *source) NextToken() (Token, error) {
	tok, err := s.dec.Token()
	if err != nil {
		return Token{}, err
	}
	switch v := tok.(type) {
	case j.Delim:
		switch v {
		case '{':
			s.stack = append(s.stack, frame{kind: kindObject, expectingKey: true})
			return Token{Kind: KindBeginObject}, nil
		case '}':
			if n := len(s.stack); n > 0 {
				s.stack = s.stack[:n-1]
			}
			s.valueDone()
			return Token{Kind: KindEndObject}, nil
		case '[':
			s.stack = append(s.stack, frame{kind: kindArray})
			return Token{Kind: KindBeginArray}, nil
		case ']':
			if n := len(s.stack); n > 0 {
				s.stack = s.stack[:n-1]
			}
			s.valueDone()
			return Token{Kind: KindEndArray}, nil
		}
	case string:
		if n := len(s.stack); n > 0 {
			top := &s.stack[n-1]
			if top.kind == kindObject && top.expectingKey {
				top.expectingKey = false
				return Token{Kind: KindKey, String: v}, nil
			}
		}
		s.valueDone()
		return Token{Kind: KindString, String: v}, nil
	case bool:
		s.valueDone()
		return Token{Kind: KindBool, Bool: v}, nil
	case j.Number:
		s.valueDone()
		return Token{Kind: KindNumber, Number: string(v)}, nil
	case float64:
		s.valueDone()
		return Token{Kind: KindNumber, Number: strconv.FormatFloat(v, 'g', -1, 64)}, nil
	case nil:
		s.valueDone()
		return Token{Kind: KindNull}, nil
	}
	s.valueDone()
	return Token{Kind: KindNull}, nil
}

func (s *source) Location() int64 { return s.in.n }
