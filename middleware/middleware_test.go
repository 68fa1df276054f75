package middleware_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/dsl"
	"github.com/reoring/formstate/middleware"
)

func signupHandler(t *testing.T) (http.Handler, *formstate.Values) {
	t.Helper()
	def := dsl.New("signup").
		Field("email", dsl.Text()).Required().Email().TrimSpace().
		Field("age", dsl.Integer()).Min(18).
		MustBuild()
	var seen formstate.Values
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := middleware.ValuesFromContext(r.Context())
		if !ok {
			t.Errorf("values missing from context")
		}
		seen = v
		w.WriteHeader(http.StatusNoContent)
	})
	return middleware.Validate(def, middleware.WithMaxBytes(256))(next), &seen
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(body)))
	return rec
}

func TestValidate_Accepts(t *testing.T) {
	h, seen := signupHandler(t)
	rec := post(h, `{"email":" a@b.com ","age":"30"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	want := formstate.Values{"email": formstate.Text("a@b.com"), "age": formstate.Integer(30)}
	if !seen.Equal(want) {
		t.Fatalf("values: %v", *seen)
	}
}

func TestValidate_RejectsInvalidValues(t *testing.T) {
	h, _ := signupHandler(t)
	rec := post(h, `{"email":"nope","age":12}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var body struct {
		Form   string `json:"form"`
		Fields map[string]struct {
			Code string `json:"code"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := map[string]string{}
	for k, v := range body.Fields {
		got[k] = v.Code
	}
	want := map[string]string{"email": formstate.CodeInvalidFormat, "age": formstate.CodeTooSmall}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("codes (-want +got):\n%s", diff)
	}
	if body.Form != "signup" {
		t.Fatalf("form %q", body.Form)
	}
}

func TestValidate_BadRequests(t *testing.T) {
	h, _ := signupHandler(t)
	cases := map[string]string{
		"malformed":     `{"email":`,
		"duplicate key": `{"email":"a@b.com","email":"c@d.com"}`,
		"not an object": `["a@b.com"]`,
		"unknown field": `{"nickname":"x"}`,
		"too large":     `{"email":"` + strings.Repeat("a", 300) + `@b.com"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := post(h, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d: %s", rec.Code, rec.Body)
			}
			raw, _ := io.ReadAll(rec.Body)
			if !strings.Contains(string(raw), `"error"`) {
				t.Fatalf("body: %s", raw)
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	if got := middleware.StatusOf(nil); got != http.StatusOK {
		t.Fatalf("nil: %d", got)
	}
	if got := middleware.StatusOf(formstate.ValidationErrors{Fields: map[string]formstate.Issue{"a": {}}}); got != http.StatusUnprocessableEntity {
		t.Fatalf("validation: %d", got)
	}
	if got := middleware.StatusOf(&formstate.UnknownFieldError{Field: "x"}); got != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", got)
	}
	if got := middleware.StatusOf(formstate.ErrInvalidSchema); got != http.StatusInternalServerError {
		t.Fatalf("schema: %d", got)
	}
}
