package binding_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/binding"
	"github.com/reoring/formstate/form"
	"github.com/reoring/formstate/rules"
)

func newContainer(t *testing.T, opts ...form.Option) *form.Container {
	t.Helper()
	s, err := formstate.NewSchema("contact", []formstate.FieldMetadata{
		{Name: "email", Type: formstate.TypeText, Validators: []formstate.ValidatorSpec{
			formstate.Builtin(rules.Required, nil),
			formstate.Builtin(rules.Email, nil),
		}},
		{Name: "name", Type: formstate.TypeText},
	})
	if err != nil {
		t.Fatal(err)
	}
	c, err := form.New(s, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Dispose(context.Background(), false) })
	return c
}

func TestFieldSinksForwardToContainer(t *testing.T) {
	c := newContainer(t, form.WithMode(formstate.ModeOnBlur))
	reg := binding.NewRegistry(c)
	f, err := reg.Register("email")
	if err != nil {
		t.Fatal(err)
	}

	if err := f.OnFocus(); err != nil || !f.Focused() {
		t.Fatalf("focus: %v focused=%v", err, f.Focused())
	}
	if err := f.OnInput("foo"); err != nil {
		t.Fatalf("input: %v", err)
	}
	if _, has := f.Error(); has {
		t.Fatalf("validated before blur")
	}
	if err := f.OnBlur(); err != nil {
		t.Fatalf("blur: %v", err)
	}
	want := binding.State{
		Value:    formstate.Text("foo"),
		Error:    "invalid format",
		HasError: true,
		Touched:  true,
		Dirty:    true,
		Status:   formstate.StatusInvalid,
	}
	if diff := cmp.Diff(want, f.State()); diff != "" {
		t.Fatalf("state (-want +got):\n%s", diff)
	}
	if err := f.OnChange("a@b.com"); err != nil {
		t.Fatalf("change: %v", err)
	}
	if got := f.Value().String(); got != "a@b.com" {
		t.Fatalf("value = %q", got)
	}
}

func TestObserveOnlyOnChange(t *testing.T) {
	c := newContainer(t)
	reg := binding.NewRegistry(c)
	f, _ := reg.Register("email")

	var mu sync.Mutex
	var seen []binding.State
	f.Observe(func(s binding.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	_ = c.SetFieldValue("name", "Ada") // other field
	_ = f.OnInput("x")
	_ = f.OnInput("x")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("observer called %d times, want 1: %+v", len(seen), seen)
	}
	if !seen[0].HasError || seen[0].Value.String() != "x" {
		t.Fatalf("state = %+v", seen[0])
	}
}

func TestUnregisterReleasesButKeepsValue(t *testing.T) {
	c := newContainer(t)
	reg := binding.NewRegistry(c)
	before := c.Subscribers()
	f, _ := reg.Register("name")
	f.Observe(func(binding.State) {})
	if c.Subscribers() != before+1 {
		t.Fatalf("subscribers = %d", c.Subscribers())
	}
	_ = f.OnInput("Grace")

	f.Unregister()
	if c.Subscribers() != before || f.Observers() != 0 {
		t.Fatalf("subscription leaked: container=%d observers=%d", c.Subscribers(), f.Observers())
	}
	if err := f.OnInput("Ada"); !errors.Is(err, binding.ErrUnregistered) {
		t.Fatalf("input after unregister: %v", err)
	}
	if v, _ := c.GetFieldValue("name"); v.String() != "Grace" {
		t.Fatalf("value = %v", v)
	}
	if len(reg.Fields()) != 0 {
		t.Fatalf("fields = %v", reg.Fields())
	}

	again, err := reg.Register("name")
	if err != nil || again == f || again.Value().String() != "Grace" {
		t.Fatalf("re-register: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	c := newContainer(t)
	reg := binding.NewRegistry(c)
	if _, err := reg.Register("nope"); !errors.Is(err, formstate.ErrUnknownField) {
		t.Fatalf("unknown: %v", err)
	}
	a, _ := reg.Register("email")
	b, _ := reg.Register("email")
	if a != b {
		t.Fatalf("register is not idempotent")
	}
	_, _ = reg.Register("name")
	if diff := cmp.Diff([]string{"email", "name"}, reg.Fields()); diff != "" {
		t.Fatalf("fields (-want +got):\n%s", diff)
	}
	reg.Unregister("email")
	if err := a.OnBlur(); !errors.Is(err, binding.ErrUnregistered) {
		t.Fatalf("blur after unregister: %v", err)
	}
	reg.Close()
	if len(reg.Fields()) != 0 || c.Subscribers() != 0 {
		t.Fatalf("close left %v / %d", reg.Fields(), c.Subscribers())
	}
}

func TestObserveSeesAsyncStatus(t *testing.T) {
	gate := make(chan struct{})
	reg := rules.Default()
	_ = reg.RegisterAsync("reachable", func(c rules.Context, _ formstate.Value) error {
		select {
		case <-gate:
		case <-c.Ctx.Done():
		}
		return nil
	})
	s, err := formstate.NewSchema("site", []formstate.FieldMetadata{{
		Name:       "host",
		Type:       formstate.TypeText,
		Validators: []formstate.ValidatorSpec{formstate.Custom("reachable")},
	}})
	if err != nil {
		t.Fatal(err)
	}
	c, err := form.New(s, form.WithRegistry(reg), form.WithDebounce(-1))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Dispose(context.Background(), false) })
	f, _ := binding.NewRegistry(c).Register("host")

	var mu sync.Mutex
	var statuses []formstate.FieldStatus
	f.Observe(func(s binding.State) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})

	if err := f.OnInput("example.com"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if len(statuses) == 0 || statuses[len(statuses)-1] != formstate.StatusValidating {
		t.Fatalf("statuses after input = %v", statuses)
	}
	mu.Unlock()

	close(gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if statuses[len(statuses)-1] != formstate.StatusValid {
		t.Fatalf("statuses after async run = %v", statuses)
	}
}
