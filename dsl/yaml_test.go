package dsl_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/reoring/formstate"
	"github.com/reoring/formstate/dsl"
	js "github.com/reoring/formstate/jsonschema"
)

const signupYAML = `
name: signup
trim_space: true
fields:
  - name: email
    type: text
    required: true
    validators: [email]
    attributes: {label: E-mail}
  - name: password
    type: text
    required: true
    sensitive: true
    validators:
      - {name: min_length, params: {min: 8}}
  - name: confirm
    type: text
    depends_on: [password]
    validators:
      - {name: matches, params: {field: password}, message: passwords differ}
  - name: plan
    type: text
    default: free
    validators:
      - {name: one_of, params: {values: [free, pro]}}
  - name: seats
    type: integer
    default: 1
    validators:
      - {name: min, params: {min: 1}}
      - {name: max, params: {max: 50}}
  - name: tags
    type: array<text>
    validators:
      - {name: max_length, params: {max: 3}}
refinements:
  - {name: expr, params: {expr: "plan == 'pro' || seats == 1", field: seats}}
`

func TestLoadYAML(t *testing.T) {
	def, err := dsl.LoadYAML(strings.NewReader(signupYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if def.FormName() != "signup" || len(def.Fields()) != 6 {
		t.Fatalf("unexpected schema %q with %d fields", def.FormName(), len(def.Fields()))
	}
	if diff := cmp.Diff([]string{"password"}, def.Schema().SensitiveFields()); diff != "" {
		t.Fatalf("sensitive (-want +got):\n%s", diff)
	}
	dv := def.DefaultValues()
	if !dv["plan"].Equal(formstate.Text("free")) || !dv["seats"].Equal(formstate.Integer(1)) {
		t.Fatalf("defaults: %v", dv)
	}

	ctx := context.Background()
	err = def.Validate(ctx, formstate.Values{
		"email":    formstate.Text(" a@b.com "),
		"password": formstate.Text("longenough"),
		"confirm":  formstate.Text("longenough"),
		"seats":    formstate.Integer(3),
	})
	ve, ok := formstate.AsValidationErrors(err)
	if !ok || len(ve.Form) != 1 || ve.Form[0].Field != "seats" {
		t.Fatalf("want the seats refinement to fail, got %v", err)
	}
	err = def.Validate(ctx, formstate.Values{
		"email":    formstate.Text(" a@b.com "),
		"password": formstate.Text("longenough"),
		"confirm":  formstate.Text("longenough"),
		"plan":     formstate.Text("pro"),
		"seats":    formstate.Integer(3),
	})
	if err != nil {
		t.Fatalf("valid: %v", err)
	}
}

func TestLoadYAML_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "name: x\nfields:\n  - name: a\n    type: text\n    colour: red\n",
		"missing name":    "fields:\n  - name: a\n    type: text\n",
		"bad type":        "name: x\nfields:\n  - name: a\n    type: blob\n",
		"empty validator": "name: x\nfields:\n  - name: a\n    type: text\n    validators:\n      - {message: hi}\n",
		"both kinds":      "name: x\nfields:\n  - name: a\n    type: text\n    validators:\n      - {name: email, custom: mine}\n",
		"bad default":     "name: x\nfields:\n  - name: a\n    type: integer\n    default: many\n",
		"two documents":   "name: x\nfields: []\n---\nname: y\nfields: []\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := dsl.LoadYAML(strings.NewReader(doc)); err == nil {
				t.Fatalf("want error")
			}
		})
	}
}

func TestLoadYAML_DuplicateKey(t *testing.T) {
	doc := "name: x\nfields:\n  - name: a\n    type: text\n    type: integer\n"
	_, err := dsl.LoadYAML(strings.NewReader(doc))
	var de *dsl.DuplicateKeyError
	if !errors.As(err, &de) {
		t.Fatalf("want DuplicateKeyError, got %v", err)
	}
	want := dsl.DuplicateKeyError{Key: "type", FirstLine: 4, FirstCol: 5, Line: 5, Col: 5}
	if diff := cmp.Diff(want, *de); diff != "" {
		t.Fatalf("position (-want +got):\n%s", diff)
	}
}

func TestLoadAllYAML(t *testing.T) {
	doc := "name: a\nfields:\n  - {name: x, type: text}\n---\n---\nname: b\nfields:\n  - {name: y, type: \"[]int\"}\n"
	defs, err := dsl.LoadAllYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var names []string
	for _, d := range defs {
		names = append(names, d.FormName())
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Fatalf("documents (-want +got):\n%s", diff)
	}
	if got := defs[1].Fields()[0].ElemType; got != formstate.TypeInteger {
		t.Fatalf("elem type: %v", got)
	}
}

func TestJSONSchema(t *testing.T) {
	def, err := dsl.LoadYAML(strings.NewReader(signupYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := def.JSONSchema()
	want := &js.Schema{
		SchemaURI:            js.Draft,
		Title:                "signup",
		Type:                 "object",
		Required:             []string{"email", "password"},
		AdditionalProperties: false,
		Properties: map[string]*js.Schema{
			"email":    {Type: "string", Format: "email", Attributes: map[string]string{"label": "E-mail"}},
			"password": {Type: "string", MinLength: js.Int(8), WriteOnly: true},
			"confirm":  {Type: "string", DependsOn: []string{"password"}, Validators: []string{"matches"}},
			"plan":     {Type: "string", Default: "free", Enum: []any{"free", "pro"}},
			"seats":    {Type: "integer", Default: int64(1), Minimum: js.Float(1), Maximum: js.Float(50)},
			"tags":     {Type: "array", Items: &js.Schema{Type: "string"}, MaxItems: js.Int(3)},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("json schema (-want +got):\n%s", diff)
	}

	raw, err := def.MarshalJSONSchema()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if back["additionalProperties"] != false {
		t.Fatalf("additionalProperties: %v", back["additionalProperties"])
	}
	props := back["properties"].(map[string]any)
	if _, ok := props["password"].(map[string]any)["writeOnly"]; !ok {
		t.Fatalf("password should be writeOnly: %s", raw)
	}
}
