package jsontok

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/reoring/formstate"
)

// DecodeValue reads one JSON document from src. Number literals without a
// fraction or exponent become Integer (when they fit in int64); all others
// become Number. Trailing data after the document is an error.
func DecodeValue(src TokenSource) (formstate.Value, error) {
	tok, err := src.NextToken()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return formstate.Value{}, io.ErrUnexpectedEOF
		}
		return formstate.Value{}, err
	}
	v, err := decodeValue(src, tok)
	if err != nil {
		return formstate.Value{}, err
	}
	if _, err := src.NextToken(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = &Error{Code: "parse_error", Path: "/", Message: "trailing data after document"}
		}
		return formstate.Value{}, err
	}
	return v, nil
}

// DecodeBytes decodes data with the given limits.
func DecodeBytes(data []byte, lim Limits) (formstate.Value, error) {
	return DecodeValue(Enforce(NewBytes(data), lim))
}

func decodeValue(src TokenSource, tok Token) (formstate.Value, error) {
	switch tok.Kind {
	case KindBeginObject:
		return decodeObject(src)
	case KindBeginArray:
		return decodeArray(src)
	case KindString:
		return formstate.Text(tok.String), nil
	case KindNumber:
		return number(tok.Number)
	case KindBool:
		return formstate.Bool(tok.Bool), nil
	case KindNull:
		return formstate.Null(), nil
	default:
		return formstate.Value{}, io.ErrUnexpectedEOF
	}
}

func number(lit string) (formstate.Value, error) {
	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return formstate.Integer(i), nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return formstate.Value{}, fmt.Errorf("number %q: %w", lit, err)
	}
	return formstate.Number(f), nil
}

func decodeObject(src TokenSource) (formstate.Value, error) {
	m := make(map[string]formstate.Value)
	for {
		tok, err := src.NextToken()
		if err != nil {
			return formstate.Value{}, err
		}
		if tok.Kind == KindEndObject {
			return formstate.Object(m), nil
		}
		if tok.Kind != KindKey {
			return formstate.Value{}, io.ErrUnexpectedEOF
		}
		vt, err := src.NextToken()
		if err != nil {
			return formstate.Value{}, err
		}
		v, err := decodeValue(src, vt)
		if err != nil {
			return formstate.Value{}, err
		}
		m[tok.String] = v
	}
}

func decodeArray(src TokenSource) (formstate.Value, error) {
	var arr []formstate.Value
	for {
		tok, err := src.NextToken()
		if err != nil {
			return formstate.Value{}, err
		}
		if tok.Kind == KindEndArray {
			return formstate.Array(arr...), nil
		}
		v, err := decodeValue(src, tok)
		if err != nil {
			return formstate.Value{}, err
		}
		arr = append(arr, v)
	}
}
