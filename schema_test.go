package formstate_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/formstate"
)

func field(name string, t formstate.FieldType, deps ...string) formstate.FieldMetadata {
	return formstate.FieldMetadata{Name: name, Type: t, DependsOn: deps}
}

func TestNewSchema_OrderAndDependents(t *testing.T) {
	s, err := formstate.NewSchema("order", []formstate.FieldMetadata{
		field("confirm", formstate.TypeText, "password"),
		field("password", formstate.TypeText),
		field("total", formstate.TypeNumber, "qty", "price"),
		field("qty", formstate.TypeInteger),
		field("price", formstate.TypeNumber),
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	order := s.Order()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	for name, deps := range s.DependencyGraph() {
		for _, d := range deps {
			if pos[d] > pos[name] {
				t.Fatalf("%s validated before its dependency %s: %v", name, d, order)
			}
		}
	}
	if diff := cmp.Diff([]string{"password", "confirm", "qty", "price", "total"}, order); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"total"}, s.Dependents("qty")); diff != "" {
		t.Fatalf("dependents (-want +got):\n%s", diff)
	}
	if got := s.Dependents("total"); len(got) != 0 {
		t.Fatalf("total has no dependents, got %v", got)
	}
}

func TestNewSchema_CycleReportedOnce(t *testing.T) {
	_, err := formstate.NewSchema("loop", []formstate.FieldMetadata{
		field("a", formstate.TypeText, "b"),
		field("b", formstate.TypeText, "a"),
		field("c", formstate.TypeText, "c2"),
		field("c2", formstate.TypeText, "c"),
	})
	if !formstate.IsCycle(err) {
		t.Fatalf("want cycle, got %v", err)
	}
	if !errors.Is(err, formstate.ErrInvalidSchema) {
		t.Fatalf("cycle must match ErrInvalidSchema")
	}
	var ce *formstate.CycleError
	errors.As(err, &ce)
	if diff := cmp.Diff([]string{"a", "b", "a"}, ce.Path); diff != "" {
		t.Fatalf("path (-want +got):\n%s", diff)
	}
}

func TestNewSchema_Rejects(t *testing.T) {
	def := formstate.Text("x")
	cases := map[string][]formstate.FieldMetadata{
		"no name":       {field("", formstate.TypeText)},
		"duplicate":     {field("a", formstate.TypeText), field("a", formstate.TypeInteger)},
		"no type":       {field("a", formstate.TypeUnspecified)},
		"self":          {field("a", formstate.TypeText, "a")},
		"unknown dep":   {field("a", formstate.TypeText, "zz")},
		"bad default":   {{Name: "n", Type: formstate.TypeInteger, Default: &def}},
		"unnamed check": {{Name: "a", Type: formstate.TypeText, Validators: []formstate.ValidatorSpec{{}}}},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := formstate.NewSchema("x", fields); !errors.Is(err, formstate.ErrInvalidSchema) {
				t.Fatalf("want ErrInvalidSchema, got %v", err)
			}
		})
	}
	if _, err := formstate.NewSchema("x", nil, formstate.ValidatorSpec{}); !errors.Is(err, formstate.ErrInvalidSchema) {
		t.Fatalf("unnamed refinement: %v", err)
	}
}

func TestSchema_FieldValues(t *testing.T) {
	qty := formstate.Integer(1)
	s, err := formstate.NewSchema("cart", []formstate.FieldMetadata{
		{Name: "qty", Type: formstate.TypeInteger, Default: &qty, Required: true},
		{Name: "note", Type: formstate.TypeText},
		{Name: "pin", Type: formstate.TypeText, Attributes: map[string]string{formstate.AttrSensitive: "TRUE"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	values := s.DefaultValues()
	want := formstate.Values{"qty": formstate.Integer(1), "note": formstate.Text(""), "pin": formstate.Text("")}
	if !values.Equal(want) {
		t.Fatalf("defaults: %v", values)
	}
	if err := s.SetFieldValue(values, "qty", formstate.Text("3")); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.GetFieldValue(values, "qty")
	if err != nil || !ok || !v.Equal(formstate.Integer(3)) {
		t.Fatalf("get: %v %v %v", v, ok, err)
	}
	var fe *formstate.FieldError
	if err := s.SetFieldValue(values, "qty", formstate.Null()); !errors.As(err, &fe) || fe.Code != formstate.CodeRequired {
		t.Fatalf("null on required: %v", err)
	}
	if err := s.SetFieldValue(values, "ghost", formstate.Text("")); !errors.Is(err, formstate.ErrUnknownField) {
		t.Fatalf("unknown: %v", err)
	}
	if _, _, err := s.GetFieldValue(values, "ghost"); !errors.Is(err, formstate.ErrUnknownField) {
		t.Fatalf("unknown get: %v", err)
	}
	if diff := cmp.Diff([]string{"pin"}, s.SensitiveFields()); diff != "" {
		t.Fatalf("sensitive (-want +got):\n%s", diff)
	}

	out, err := s.CoerceValues(formstate.Values{"note": formstate.Integer(5)})
	if err != nil {
		t.Fatal(err)
	}
	if !out["note"].Equal(formstate.Text("5")) || !out["qty"].Equal(formstate.Integer(1)) {
		t.Fatalf("coerce values: %v", out)
	}
}

func TestSchema_MetadataIsCopied(t *testing.T) {
	fields := []formstate.FieldMetadata{field("a", formstate.TypeText), field("b", formstate.TypeText, "a")}
	s, err := formstate.NewSchema("copy", fields)
	if err != nil {
		t.Fatal(err)
	}
	fields[1].DependsOn[0] = "b"
	got := s.FieldMetadata()
	got[1].DependsOn[0] = "zz"
	if meta, _ := s.Field("b"); meta.DependsOn[0] != "a" {
		t.Fatalf("schema shares field metadata: %v", meta.DependsOn)
	}
}

func TestParseFieldTypeAndMode(t *testing.T) {
	for in, want := range map[string]formstate.FieldType{
		"text": formstate.TypeText, "int": formstate.TypeInteger, "date-time": formstate.TypeDateTime,
		"bool": formstate.TypeBoolean, "list": formstate.TypeArray,
	} {
		got, err := formstate.ParseFieldType(in)
		if err != nil || got != want {
			t.Fatalf("%q: %v %v", in, got, err)
		}
	}
	if _, err := formstate.ParseFieldType("blob"); err == nil {
		t.Fatalf("want error")
	}
	for in, want := range map[string]formstate.Mode{
		"onBlur": formstate.ModeOnBlur, "on_change": formstate.ModeOnChange, "submit": formstate.ModeOnSubmit,
	} {
		got, err := formstate.ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("%q: %v %v", in, got, err)
		}
	}
	if _, err := formstate.ParseMode("eventually"); err == nil {
		t.Fatalf("want error")
	}
}

func TestFlagMap(t *testing.T) {
	m := formstate.FlagMap{}
	m.Set("a", formstate.FlagTouched)
	m.Set("a", formstate.FlagDirty)
	m.Set("b", formstate.FlagDirty)
	if !m.Has("a", formstate.FlagTouched) || m.Has("b", formstate.FlagTouched) {
		t.Fatalf("has: %v", m)
	}
	if diff := cmp.Diff([]string{"a", "b"}, m.Names(formstate.FlagDirty)); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
	m.ClearAll(formstate.FlagDirty)
	if m.Any(formstate.FlagDirty) {
		t.Fatalf("dirty flags left: %v", m)
	}
	if _, ok := m["b"]; ok {
		t.Fatalf("entries without flags must be dropped")
	}
}
