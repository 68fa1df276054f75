package jsontok

import (
	"strconv"
	"strings"
)

// Limits controls enforcement. Zero values disable the respective check.
type Limits struct {
	// AllowDuplicates accepts repeated object keys (last one wins).
	AllowDuplicates bool
	MaxDepth        int
	MaxBytes        int64
}

type dupFrame struct {
	kind         containerKind
	keys         map[string]struct{}
	expectingKey bool
	path         string
	nextIndex    int
	pendingKey   string
}

// Enforce returns a TokenSource that rejects duplicate keys, excessive
// nesting and oversized input with *Error.
func Enforce(inner TokenSource, lim Limits) TokenSource {
	return &enforcingSource{inner: inner, lim: lim}
}

type enforcingSource struct {
	inner TokenSource
	lim   Limits
	stack []dupFrame
}

func (e *enforcingSource) NextToken() (Token, error) {
	tok, err := e.inner.NextToken()
	if err != nil {
		return Token{}, err
	}
	path := e.pathFor(tok)

	switch tok.Kind {
	case KindBeginObject, KindBeginArray:
		f := dupFrame{kind: kindArray, path: path}
		if tok.Kind == KindBeginObject {
			f = dupFrame{kind: kindObject, keys: map[string]struct{}{}, expectingKey: true, path: path}
		}
		e.stack = append(e.stack, f)
		if e.lim.MaxDepth > 0 && len(e.stack) > e.lim.MaxDepth {
			return Token{}, &Error{Code: "max_depth", Path: pointer(path), Message: "max depth exceeded"}
		}
	case KindEndObject, KindEndArray:
		if n := len(e.stack); n > 0 {
			e.stack = e.stack[:n-1]
		}
		e.valueDone()
	case KindKey:
		if n := len(e.stack); n > 0 {
			top := &e.stack[n-1]
			if top.kind == kindObject && top.expectingKey {
				if _, dup := top.keys[tok.String]; dup && !e.lim.AllowDuplicates {
					return Token{}, &Error{Code: "duplicate_key", Path: pointer(path), Message: "key '" + tok.String + "' duplicated"}
				}
				top.keys[tok.String] = struct{}{}
				top.expectingKey = false
				top.pendingKey = tok.String
			}
		}
	default:
		e.valueDone()
	}

	if e.lim.MaxBytes > 0 {
		if off := e.inner.Location(); off > e.lim.MaxBytes {
			return Token{}, &Error{Code: "truncated", Path: pointer(path), Message: "max bytes exceeded"}
		}
	}
	return tok, nil
}

func (e *enforcingSource) valueDone() {
	if n := len(e.stack); n > 0 {
		top := &e.stack[n-1]
		if top.kind == kindObject && !top.expectingKey {
			top.expectingKey = true
			top.pendingKey = ""
		}
	}
}

func (e *enforcingSource) pathFor(tok Token) string {
	if len(e.stack) == 0 {
		return ""
	}
	top := &e.stack[len(e.stack)-1]
	switch tok.Kind {
	case KindKey:
		return joinPointer(top.path, tok.String)
	case KindEndObject, KindEndArray:
		return top.path
	}
	if top.kind == kindArray {
		p := joinPointer(top.path, strconv.Itoa(top.nextIndex))
		top.nextIndex++
		return p
	}
	if !top.expectingKey {
		return joinPointer(top.path, top.pendingKey)
	}
	return top.path
}

func (e *enforcingSource) Location() int64 { return e.inner.Location() }

func pointer(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func joinPointer(base, token string) string {
	return base + "/" + pointerEscaper.Replace(token)
}
