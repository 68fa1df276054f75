package formstate_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/formstate"
)

func TestIssues_ErrorSummary(t *testing.T) {
	iss := formstate.Issues{
		{Field: "a", Code: formstate.CodeInvalidType},
		{Code: formstate.CodeAggregateViolation, Message: "one of a, b"},
		{Field: "c", Code: formstate.CodeTooShort},
		{Field: "d", Code: formstate.CodeTooLong},
	}
	want := "invalid_type at a; aggregate_violation: one of a, b; too_short at c; ... (total 4)"
	if got := iss.Error(); got != want {
		t.Fatalf("summary:\n got %q\nwant %q", got, want)
	}
	wrapped := fmt.Errorf("save: %w", iss)
	got, ok := formstate.AsIssues(wrapped)
	if !ok || len(got) != 4 {
		t.Fatalf("AsIssues: %v %v", got, ok)
	}
	if _, ok := formstate.AsIssues(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no issues")
	}
}

func TestAsIssue(t *testing.T) {
	cases := []struct {
		err  error
		want formstate.Issue
	}{
		{formstate.Issue{Code: formstate.CodeUniqueness, Message: "taken"}, formstate.Issue{Code: formstate.CodeUniqueness, Message: "taken"}},
		{&formstate.FieldError{Field: "n", Code: formstate.CodeInvalidType, Message: "bad"}, formstate.Issue{Field: "n", Code: formstate.CodeInvalidType, Message: "bad"}},
		{errors.New("boom"), formstate.Issue{Code: formstate.CodeCustom, Message: "boom"}},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, formstate.AsIssue(tc.err)); diff != "" {
			t.Fatalf("%v (-want +got):\n%s", tc.err, diff)
		}
	}
}

func TestValidationErrors(t *testing.T) {
	ve := formstate.ValidationErrors{
		Fields: map[string]formstate.Issue{
			"email": {Field: "email", Code: formstate.CodeInvalidFormat, Message: "invalid format"},
			"age":   {Field: "age", Code: formstate.CodeTooSmall, Message: "too small"},
		},
		Form: formstate.Issues{{Code: formstate.CodeBusinessRule, Message: "no"}},
	}
	if ve.Empty() || ve.Len() != 3 {
		t.Fatalf("len: %d", ve.Len())
	}
	if diff := cmp.Diff([]string{"age", "email"}, ve.FieldNames()); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"email": "invalid format", "age": "too small"}, ve.Messages()); diff != "" {
		t.Fatalf("messages (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"no"}, ve.FormMessages()); diff != "" {
		t.Fatalf("form messages (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(ve.Error(), "formstate: validation failed: too_small at age") {
		t.Fatalf("error text: %q", ve.Error())
	}

	cp := ve.Clone()
	delete(cp.Fields, "age")
	cp.Form[0].Message = "changed"
	if ve.Len() != 3 || ve.Form[0].Message != "no" {
		t.Fatalf("clone aliases the original")
	}

	got, ok := formstate.AsValidationErrors(fmt.Errorf("submit: %w", ve))
	if !ok || got.Len() != 3 {
		t.Fatalf("AsValidationErrors: %v %v", got, ok)
	}
	if !(formstate.ValidationErrors{}).Empty() {
		t.Fatalf("zero value is empty")
	}
}

func TestUnknownFieldError(t *testing.T) {
	err := fmt.Errorf("set: %w", &formstate.UnknownFieldError{Field: "x", Schema: "s"})
	if !errors.Is(err, formstate.ErrUnknownField) {
		t.Fatalf("must match ErrUnknownField")
	}
	if !strings.Contains(err.Error(), `unknown field "x" in schema "s"`) {
		t.Fatalf("text: %q", err.Error())
	}
}
