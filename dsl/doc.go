// Package dsl declares form schemas without hand-writing FieldMetadata.
//
// Overview
//   - Builder API: New(name).Field(name, Text()).Required().Email() ... Build().
//   - YAML: LoadYAML/LoadAllYAML decode declarative schema documents.
//   - FormDef: the build output. It is a formstate.Form, a formstate.Refiner
//     and a formstate.Normalizer, so it can be handed to form.New directly.
//   - JSON Schema: FormDef.JSONSchema projects the declaration for
//     interchange and debugging.
//
// Quickstart
//
//	def := dsl.New("signup").
//		Field("email", dsl.Text()).Required().Email().TrimSpace().
//		Field("password", dsl.Text()).Required().MinLength(8).Sensitive().
//		Field("confirm", dsl.Text()).Required().Matches("password").
//		MustBuild()
//
//	c, err := form.New(def)
//
// Validators are data (formstate.ValidatorSpec); they are resolved against a
// rules.Registry when a FormDef validates values or when a form container is
// created from it.
package dsl
