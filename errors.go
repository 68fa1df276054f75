package formstate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeInvalidType   = "invalid_type"
	CodeRequired      = "required"
	CodeUnknownField  = "unknown_field"
	CodeTooSmall      = "too_small"
	CodeTooBig        = "too_big"
	CodeTooShort      = "too_short"
	CodeTooLong       = "too_long"
	CodePattern       = "pattern"
	CodeInvalidEnum   = "invalid_enum"
	CodeInvalidFormat = "invalid_format"
	CodeMismatch      = "mismatch"
	CodeMarkup        = "markup"
	CodeCustom        = "custom"
	// Form-level refinements (business semantics)
	CodeAggregateViolation = "aggregate_violation"
	CodeUniqueness         = "uniqueness"
	CodeBusinessRule       = "business_rule"
	// Async validators that could not reach their dependency
	CodeDependencyUnavailable = "dependency_unavailable"
)

// Issue represents a single validation entry. Field is empty for form-level
// issues.
type Issue struct {
	Field   string
	Code    string // One of the codes listed above.
	Message string
	// Params carries structured parameters (e.g., {"min":1, "got":0})
	// for i18n and observability.
	Params map[string]any
	// Rule optionally records the validator that produced this issue.
	Rule string
}

// Error returns the message so validators can return an Issue as an error.
func (i Issue) Error() string {
	if i.Message != "" {
		return i.Message
	}
	return i.Code
}

// Issues is a collection of validation entries that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		if it.Field == "" {
			fmt.Fprintf(b, "%s: %s", it.Code, it.Message)
		} else {
			fmt.Fprintf(b, "%s at %s", it.Code, it.Field)
		}
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// AsIssue converts any validator error into an Issue. Errors that are not
// Issues (or FieldErrors) become CodeCustom with the error text.
func AsIssue(err error) Issue {
	var it Issue
	if errors.As(err, &it) {
		return it
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Issue()
	}
	return Issue{Code: CodeCustom, Message: err.Error()}
}

// FieldError reports a value that could not be stored in a field, either
// because coercion failed or because a validator rejected it.
type FieldError struct {
	Field   string
	Code    string
	Message string
	Cause   error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *FieldError) Unwrap() error { return e.Cause }

// Issue converts the error into the issue recorded in ValidationErrors.
func (e *FieldError) Issue() Issue {
	return Issue{Field: e.Field, Code: e.Code, Message: e.Message}
}

// ErrUnknownField marks integration errors: the caller addressed a field the
// schema does not declare. It is never a user-input validation failure.
var ErrUnknownField = errors.New("formstate: unknown field")

// UnknownFieldError names the offending field. It matches ErrUnknownField.
type UnknownFieldError struct {
	Field  string
	Schema string
}

func (e *UnknownFieldError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("formstate: unknown field %q", e.Field)
	}
	return fmt.Sprintf("formstate: unknown field %q in schema %q", e.Field, e.Schema)
}

func (e *UnknownFieldError) Is(target error) bool { return target == ErrUnknownField }

// ErrInvalidSchema wraps schema-definition errors.
var ErrInvalidSchema = errors.New("formstate: invalid schema")

// CycleError is reported once, at schema registration, for a dependency cycle.
// Path starts and ends with the same field.
type CycleError struct {
	Schema string
	Path   []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("formstate: dependency cycle in schema %q: %s", e.Schema, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrInvalidSchema }

// ValidationErrors aggregates one issue per field plus ordered form-level
// issues. Field keys are always declared field names.
type ValidationErrors struct {
	Fields map[string]Issue
	Form   Issues
}

// Empty reports whether there is neither a field nor a form issue.
func (e ValidationErrors) Empty() bool { return len(e.Fields) == 0 && len(e.Form) == 0 }

// Len counts field and form issues.
func (e ValidationErrors) Len() int { return len(e.Fields) + len(e.Form) }

// Message returns the error message recorded for field.
func (e ValidationErrors) Message(field string) (string, bool) {
	it, ok := e.Fields[field]
	return it.Message, ok
}

// Messages returns field messages keyed by field name.
func (e ValidationErrors) Messages() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for k, it := range e.Fields {
		out[k] = it.Message
	}
	return out
}

// FormMessages returns form-level messages in order.
func (e ValidationErrors) FormMessages() []string {
	out := make([]string, len(e.Form))
	for i, it := range e.Form {
		out[i] = it.Message
	}
	return out
}

// FieldNames returns the fields with an issue in ascending order.
func (e ValidationErrors) FieldNames() []string {
	out := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep enough copy for callers to mutate freely.
func (e ValidationErrors) Clone() ValidationErrors {
	out := ValidationErrors{Fields: make(map[string]Issue, len(e.Fields))}
	for k, it := range e.Fields {
		out.Fields[k] = it
	}
	if len(e.Form) > 0 {
		out.Form = append(Issues(nil), e.Form...)
	}
	return out
}

// Error summarizes field issues in name order followed by form issues.
func (e ValidationErrors) Error() string {
	all := make(Issues, 0, e.Len())
	for _, name := range e.FieldNames() {
		all = append(all, e.Fields[name])
	}
	all = append(all, e.Form...)
	if len(all) == 0 {
		return "formstate: no validation errors"
	}
	return "formstate: validation failed: " + all.Error()
}

// AsValidationErrors extracts ValidationErrors from err.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	if err == nil {
		return ValidationErrors{}, false
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ve, true
	}
	return ValidationErrors{}, false
}
