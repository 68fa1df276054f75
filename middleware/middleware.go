// Package middleware validates JSON form submissions at HTTP boundaries.
// The core is framework neutral (net/http); echo and gin adapters live in
// their own modules under this directory.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	gojson "github.com/goccy/go-json"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/codec"
)

// DefaultMaxBytes bounds request bodies when no limit is configured.
const DefaultMaxBytes int64 = 1 << 20

// ErrNotObject is returned for bodies that are valid JSON but not an object.
var ErrNotObject = errors.New("middleware: body is not a JSON object")

// Parser coerces and validates submitted values. *dsl.FormDef implements it.
type Parser interface {
	FormName() string
	Parse(ctx context.Context, in formstate.Values) (formstate.Values, error)
}

// ctxKeyValues is a typed context key for the parsed values.
type ctxKeyValues struct{}

// ContextWithValues attaches parsed values to ctx.
func ContextWithValues(ctx context.Context, values formstate.Values) context.Context {
	return context.WithValue(ctx, ctxKeyValues{}, values)
}

// ValuesFromContext retrieves values stored by ContextWithValues.
func ValuesFromContext(ctx context.Context) (formstate.Values, bool) {
	v, ok := ctx.Value(ctxKeyValues{}).(formstate.Values)
	return v, ok
}

// Decode reads a JSON object from body and parses it with p. Duplicate keys,
// bodies over maxBytes and non-object documents are errors; maxBytes <= 0
// selects DefaultMaxBytes.
func Decode(ctx context.Context, p Parser, body io.Reader, maxBytes int64) (formstate.Values, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("middleware: read body: %w", err)
	}
	v, err := codec.JSON(codec.WithMaxBytes(maxBytes)).DecodeValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, ErrNotObject
	}
	return p.Parse(ctx, formstate.Values(obj))
}

// StatusOf maps a Decode error to a response status: 422 for invalid
// values, 400 for anything the client sent that could not be read.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, formstate.ErrInvalidSchema):
		return http.StatusInternalServerError
	}
	if _, ok := formstate.AsValidationErrors(err); ok {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// IssuePayload is the JSON shape of one issue.
type IssuePayload struct {
	Field   string         `json:"field,omitempty"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// ErrorBody is the JSON response written for a rejected submission.
type ErrorBody struct {
	Form   string                  `json:"form,omitempty"`
	Error  string                  `json:"error,omitempty"`
	Fields map[string]IssuePayload `json:"fields,omitempty"`
	Issues []IssuePayload          `json:"issues,omitempty"`
}

// ErrorPayload shapes a Decode error for JSON responses.
func ErrorPayload(form string, err error) ErrorBody {
	out := ErrorBody{Form: form}
	ve, ok := formstate.AsValidationErrors(err)
	if !ok {
		out.Error = err.Error()
		return out
	}
	out.Fields = make(map[string]IssuePayload, len(ve.Fields))
	for name, it := range ve.Fields {
		out.Fields[name] = issuePayload(it)
	}
	for _, it := range ve.Form {
		out.Issues = append(out.Issues, issuePayload(it))
	}
	return out
}

func issuePayload(it formstate.Issue) IssuePayload {
	return IssuePayload{Field: it.Field, Code: it.Code, Message: it.Message, Params: it.Params}
}

// Option configures Validate.
type Option func(*config)

type config struct {
	maxBytes int64
	log      *slog.Logger
}

// WithMaxBytes bounds request bodies.
func WithMaxBytes(n int64) Option { return func(c *config) { c.maxBytes = n } }

// WithLogger logs rejected submissions at debug level and server-side
// failures at error level.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.log = l } }

// Validate returns net/http middleware that parses the request body with p.
// Accepted values are stored in the request context; rejected requests are
// answered with an ErrorBody and never reach next.
func Validate(p Parser, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{maxBytes: DefaultMaxBytes, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(&cfg)
	}
	log := cfg.log.With("form", p.FormName())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			values, err := Decode(r.Context(), p, r.Body, cfg.maxBytes)
			if err != nil {
				status := StatusOf(err)
				if status >= http.StatusInternalServerError {
					log.ErrorContext(r.Context(), "submission failed", "err", err, "status", status)
				} else {
					log.DebugContext(r.Context(), "submission rejected", "err", err, "status", status)
				}
				WriteJSON(w, status, ErrorPayload(p.FormName(), err))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithValues(r.Context(), values)))
		})
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := gojson.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
