package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/internal/engine"
	"github.com/reoring/formstate/rules"
)

func signupSchema(t *testing.T, refinements ...formstate.ValidatorSpec) *formstate.Schema {
	t.Helper()
	s, err := formstate.NewSchema("signup", []formstate.FieldMetadata{
		{Name: "confirm", Type: formstate.TypeText, DependsOn: []string{"password"},
			Validators: []formstate.ValidatorSpec{formstate.Builtin(rules.Matches, map[string]any{"field": "password"})}},
		{Name: "email", Type: formstate.TypeText, Required: true,
			Validators: []formstate.ValidatorSpec{formstate.Builtin(rules.Email, nil)}},
		{Name: "password", Type: formstate.TypeText, Required: true,
			Validators: []formstate.ValidatorSpec{formstate.Builtin(rules.MinLength, map[string]any{"min": 3})}},
	}, refinements...)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func newEngine(t *testing.T, s *formstate.Schema, opts engine.Options) *engine.Engine {
	t.Helper()
	e, err := engine.New(s, rules.Default(), opts)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestValidateField_FirstErrorWins(t *testing.T) {
	e := newEngine(t, signupSchema(t), engine.Options{})
	ctx := context.Background()
	values := formstate.Values{"email": formstate.Text("")}
	it, err := e.ValidateField(ctx, "email", values)
	if err != nil || it == nil || it.Message != "required" {
		t.Fatalf("expected required, got %+v %v", it, err)
	}
	values["email"] = formstate.Text("foo")
	if it, _ := e.ValidateField(ctx, "email", values); it == nil || it.Message != "invalid format" {
		t.Fatalf("expected invalid format, got %+v", it)
	}
	values["email"] = formstate.Text("a@b.com")
	if it, _ := e.ValidateField(ctx, "email", values); it != nil {
		t.Fatalf("expected pass, got %+v", it)
	}
	if _, err := e.ValidateField(ctx, "nope", values); !errors.Is(err, formstate.ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
}

func TestValidateAll_DependencyPropagationAndIdempotence(t *testing.T) {
	e := newEngine(t, signupSchema(t), engine.Options{})
	ctx := context.Background()
	values := formstate.Values{
		"email":    formstate.Text("a@b.com"),
		"password": formstate.Text("abc"),
		"confirm":  formstate.Text("abc"),
	}
	if res := e.ValidateAll(ctx, values); !res.Errors.Empty() {
		t.Fatalf("expected valid, got %v", res.Errors)
	}
	values["password"] = formstate.Text("abcd")
	first := e.ValidateAll(ctx, values)
	if msg, ok := first.Errors.Message("confirm"); !ok || msg != "does not match" {
		t.Fatalf("confirm must be re-validated, got %v", first.Errors)
	}
	second := e.ValidateAll(ctx, values)
	if first.Errors.Error() != second.Errors.Error() || first.Errors.Len() != second.Errors.Len() {
		t.Fatalf("not idempotent: %v vs %v", first.Errors, second.Errors)
	}
	if got := e.Affected("password"); len(got) != 2 || got[0] != "password" || got[1] != "confirm" {
		t.Fatalf("affected: %v", got)
	}
}

func TestValidateAll_RefinementPolicy(t *testing.T) {
	ref := formstate.Builtin(rules.Expr, map[string]any{"expr": "email != password"})
	s := signupSchema(t, ref)
	ctx := context.Background()
	bad := formstate.Values{"email": formstate.Text(""), "password": formstate.Text(""), "confirm": formstate.Text("")}

	strict := newEngine(t, s, engine.Options{})
	if res := strict.ValidateAll(ctx, bad); len(res.Errors.Form) != 0 {
		t.Fatalf("refinements must be skipped on field errors: %v", res.Errors.Form)
	}
	loose := newEngine(t, s, engine.Options{RefineOnFieldErrors: true})
	if res := loose.ValidateAll(ctx, bad); len(res.Errors.Form) != 1 {
		t.Fatalf("refinement expected: %v", res.Errors.Form)
	}
}

func TestNew_UnresolvedValidatorIsSchemaError(t *testing.T) {
	s, err := formstate.NewSchema("x", []formstate.FieldMetadata{
		{Name: "a", Type: formstate.TypeText, Validators: []formstate.ValidatorSpec{formstate.Custom("missing")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.New(s, rules.Default(), engine.Options{}); !errors.Is(err, formstate.ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestValidateAll_PendingAsync(t *testing.T) {
	reg := rules.Default()
	if err := reg.RegisterAsync("free", func(rules.Context, formstate.Value) error { return nil }); err != nil {
		t.Fatal(err)
	}
	s, err := formstate.NewSchema("x", []formstate.FieldMetadata{
		{Name: "user", Type: formstate.TypeText, Required: true, Validators: []formstate.ValidatorSpec{formstate.Custom("free")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(s, reg, engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res := e.ValidateAll(context.Background(), formstate.Values{"user": formstate.Text("")}); len(res.PendingAsync) != 0 {
		t.Fatalf("failed sync validators must not queue async work: %v", res.PendingAsync)
	}
	if res := e.ValidateAll(context.Background(), formstate.Values{"user": formstate.Text("bob")}); len(res.PendingAsync) != 1 {
		t.Fatalf("expected pending async for user: %v", res.PendingAsync)
	}
	if e.Debounce() != engine.DefaultDebounce {
		t.Fatalf("default debounce: %v", e.Debounce())
	}
}

func TestScheduler_DebounceRestarts(t *testing.T) {
	s := engine.NewScheduler(30 * time.Millisecond)
	var calls atomic.Int32
	var applied atomic.Value
	fn := func(v string) engine.AsyncFunc {
		return func(context.Context) (*formstate.Issue, error) {
			calls.Add(1)
			return &formstate.Issue{Message: v}, nil
		}
	}
	apply := func(_ uint64, it *formstate.Issue, _ error) { applied.Store(it.Message) }
	s.Schedule("f", fn("first"), apply)
	time.Sleep(5 * time.Millisecond)
	s.Schedule("f", fn("second"), apply)
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 || applied.Load() != "second" {
		t.Fatalf("expected only the second call, calls=%d applied=%v", calls.Load(), applied.Load())
	}
}

func TestScheduler_StaleResultRejected(t *testing.T) {
	s := engine.NewScheduler(0)
	release := make(chan struct{})
	started := make(chan struct{})
	var applied atomic.Int32
	s.Schedule("f", func(context.Context) (*formstate.Issue, error) {
		close(started)
		<-release
		return &formstate.Issue{Message: "taken"}, nil
	}, func(uint64, *formstate.Issue, error) { applied.Add(1) })
	<-started
	s.Bump("f")
	s.Bump("f")
	close(release)
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if applied.Load() != 0 {
		t.Fatalf("stale result was applied")
	}
	if s.Generation("f") != 2 {
		t.Fatalf("generation: %d", s.Generation("f"))
	}
}

func TestScheduler_RunNowAndCancel(t *testing.T) {
	s := engine.NewScheduler(time.Hour)
	s.Schedule("f", func(context.Context) (*formstate.Issue, error) {
		t.Error("debounced call must not run")
		return nil, nil
	}, func(uint64, *formstate.Issue, error) {})
	it, gen, stale, err := s.RunNow(context.Background(), "f", func(context.Context) (*formstate.Issue, error) {
		return &formstate.Issue{Message: "now"}, nil
	})
	if err != nil || stale || gen != 0 || it.Message != "now" {
		t.Fatalf("RunNow: %+v %d %v %v", it, gen, stale, err)
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("RunNow must release the pending timer: %v", err)
	}

	blocked := make(chan struct{})
	s2 := engine.NewScheduler(0)
	s2.Schedule("f", func(ctx context.Context) (*formstate.Issue, error) {
		close(blocked)
		<-ctx.Done()
		return nil, ctx.Err()
	}, func(uint64, *formstate.Issue, error) { t.Error("cancelled run must not apply") })
	<-blocked
	s2.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s2.Wait(ctx); err != nil {
		t.Fatalf("wait after cancel: %v", err)
	}
	if s2.IsCurrent("f", 0) {
		t.Fatalf("a cancelled scheduler has no current generation")
	}
}
