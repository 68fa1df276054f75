// Package formstate provides:
//
// - A closed value model for form fields (Value, Kind, Coerce, Equal)
// - Schemas with a validated field dependency graph (NewSchema, Order, Dependents)
// - A stable error model via Issues and ValidationErrors (field, code, message)
//
// Design policy:
// - Keep only public types in the root package; the validation engine lives under internal/.
// - The form container is in form/, field bindings in binding/, persistence in cache/ and codec/.
// - Schemas are built with dsl/ or directly with NewSchema.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//	def, err := dsl.New("signup").
//		Field("email", dsl.Text()).Required().Email().
//		Field("password", dsl.Text()).Required().MinLength(8).Sensitive().
//		Build()
//	c, err := form.New(def, form.WithMode(formstate.ModeOnBlur))
//	err = c.SetFieldValue("email", "a@example.com")
//	values, err := c.Submit(ctx)
package formstate
