// Package jsontok reads JSON as a token stream with duplicate-key, depth and
// size enforcement and builds formstate values from it.
package jsontok

// Kind represents token kinds from a generic source.
type Kind int

const (
	KindBeginObject Kind = iota
	KindEndObject
	KindBeginArray
	KindEndArray
	KindKey
	KindString
	KindNumber
	KindBool
	KindNull
)

// Token represents a streaming token. Number keeps the literal so integers
// and decimals stay distinguishable.
type Token struct {
	Kind   Kind
	String string
	Number string
	Bool   bool
}

// TokenSource is a minimal interface required by the decoder.
type TokenSource interface {
	NextToken() (Token, error)
	// Location returns the number of input bytes consumed so far, or -1.
	Location() int64
}

// Error reports an enforcement or structure failure at a JSON Pointer path.
type Error struct {
	Code    string // "duplicate_key", "max_depth", "truncated" or "parse_error"
	Path    string
	Message string
}

func (e *Error) Error() string { return e.Message + " at " + e.Path }
