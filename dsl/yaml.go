package dsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/reoring/formstate"
)

// DuplicateKeyError reports a key declared twice in one YAML mapping, with
// the position of both occurrences.
type DuplicateKeyError struct {
	Key       string
	FirstLine int
	FirstCol  int
	Line      int
	Col       int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate YAML key %q at %d:%d (first at %d:%d)", e.Key, e.Line, e.Col, e.FirstLine, e.FirstCol)
}

// formDoc is the YAML shape of one schema:
//
//	name: signup
//	trim_space: true
//	fields:
//	  - name: email
//	    type: text
//	    required: true
//	    validators: [email]
//	  - name: tags
//	    type: array<text>
//	    validators:
//	      - {name: max_length, params: {max: 5}, message: "at most five tags"}
//	refinements:
//	  - {name: at_least_one, params: {fields: [email, phone]}}
type formDoc struct {
	Name        string         `yaml:"name"`
	TrimSpace   bool           `yaml:"trim_space"`
	Fields      []fieldDoc     `yaml:"fields"`
	Refinements []validatorDoc `yaml:"refinements"`
}

type fieldDoc struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type"`
	Required   bool              `yaml:"required"`
	Default    any               `yaml:"default"`
	DependsOn  []string          `yaml:"depends_on"`
	Sensitive  bool              `yaml:"sensitive"`
	TrimSpace  bool              `yaml:"trim_space"`
	Attributes map[string]string `yaml:"attributes"`
	Validators []validatorDoc    `yaml:"validators"`
}

// validatorDoc is either a bare builtin name or a mapping. A mapping names a
// builtin with name or a registered validator with custom.
type validatorDoc struct {
	Name    string         `yaml:"name"`
	Custom  string         `yaml:"custom"`
	Params  map[string]any `yaml:"params"`
	Message string         `yaml:"message"`
	Async   bool           `yaml:"async"`
}

func (v *validatorDoc) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*v = validatorDoc{Name: n.Value}
		return nil
	}
	type plain validatorDoc
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*v = validatorDoc(p)
	return nil
}

func (v validatorDoc) spec() (formstate.ValidatorSpec, error) {
	var s formstate.ValidatorSpec
	switch {
	case v.Name != "" && v.Custom != "":
		return s, fmt.Errorf("validator declares both name %q and custom %q", v.Name, v.Custom)
	case v.Custom != "":
		s = formstate.Custom(v.Custom)
	case v.Name != "":
		s = formstate.Builtin(v.Name, nil)
	default:
		return s, errors.New("validator has neither name nor custom")
	}
	if len(v.Params) > 0 {
		s.Params = v.Params
	}
	s.Message = v.Message
	s.Async = v.Async
	return s, nil
}

// LoadYAML decodes exactly one schema document. Unknown keys and duplicate
// keys are errors.
func LoadYAML(r io.Reader, opts ...Option) (*FormDef, error) {
	defs, err := LoadAllYAML(r, opts...)
	if err != nil {
		return nil, err
	}
	if len(defs) != 1 {
		return nil, fmt.Errorf("dsl: want one schema document, got %d", len(defs))
	}
	return defs[0], nil
}

// LoadAllYAML decodes a multi-document stream, one schema per document.
// Empty documents are skipped.
func LoadAllYAML(r io.Reader, opts ...Option) ([]*FormDef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dsl: read yaml: %w", err)
	}
	if err := checkDuplicateKeys(data); err != nil {
		return nil, fmt.Errorf("dsl: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var out []*FormDef
	for i := 0; ; i++ {
		var doc *formDoc
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("dsl: document %d: %w", i, err)
		}
		if doc == nil {
			continue
		}
		def, err := doc.build(opts...)
		if err != nil {
			return nil, fmt.Errorf("dsl: document %d: %w", i, err)
		}
		out = append(out, def)
	}
}

func (doc *formDoc) build(opts ...Option) (*FormDef, error) {
	if doc.Name == "" {
		return nil, fmt.Errorf("%w: schema has no name", formstate.ErrInvalidSchema)
	}
	b := New(doc.Name, opts...)
	if doc.TrimSpace {
		b.TrimSpace()
	}
	for i, fd := range doc.Fields {
		t, err := ParseType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", formstate.ErrInvalidSchema, fieldLabel(fd.Name, i), err)
		}
		f := b.Field(fd.Name, t)
		if fd.Required {
			f.Required()
		}
		if fd.Default != nil {
			f.Default(fd.Default)
		}
		f.DependsOn(fd.DependsOn...)
		for k, v := range fd.Attributes {
			f.Attr(k, v)
		}
		if fd.Sensitive {
			f.Sensitive()
		}
		if fd.TrimSpace {
			f.TrimSpace()
		}
		for j, vd := range fd.Validators {
			spec, err := vd.spec()
			if err != nil {
				return nil, fmt.Errorf("%w: field %q: validator %d: %w", formstate.ErrInvalidSchema, fieldLabel(fd.Name, i), j, err)
			}
			f.Validate(spec)
		}
	}
	for j, vd := range doc.Refinements {
		spec, err := vd.spec()
		if err != nil {
			return nil, fmt.Errorf("%w: refinement %d: %w", formstate.ErrInvalidSchema, j, err)
		}
		b.Refine(spec)
	}
	return b.Build()
}

func fieldLabel(name string, i int) string {
	if name == "" {
		return "#" + strconv.Itoa(i)
	}
	return name
}

// checkDuplicateKeys walks every document as a yaml.Node tree.
func checkDuplicateKeys(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var root yaml.Node
		if err := dec.Decode(&root); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := duplicateKeys(&root); err != nil {
			return err
		}
	}
}

func duplicateKeys(n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		first := make(map[string]*yaml.Node, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if prev, ok := first[k.Value]; ok {
				return &DuplicateKeyError{Key: k.Value, FirstLine: prev.Line, FirstCol: prev.Column, Line: k.Line, Col: k.Column}
			}
			first[k.Value] = k
		}
	}
	for _, c := range n.Content {
		if err := duplicateKeys(c); err != nil {
			return err
		}
	}
	return nil
}
