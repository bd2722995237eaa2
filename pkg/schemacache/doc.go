package schemacache

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/rawbytedev/asnkit/pkg/schema"
)

// entry is the YAML document stored in a cache file. Source guards against
// hash collisions: a hit requires the exact schema text.
type entry struct {
	Source string    `yaml:"source"`
	Module moduleDoc `yaml:"module"`
}

type moduleDoc struct {
	Name  string    `yaml:"name"`
	Tags  string    `yaml:"tags"`
	Types []typeDef `yaml:"types"`
}

type typeDef struct {
	Name string   `yaml:"name"`
	Type *typeDoc `yaml:"type"`
}

type typeDoc struct {
	Kind       string     `yaml:"kind"`
	Ref        string     `yaml:"ref,omitempty"`
	Range      *rangeDoc  `yaml:"range,omitempty"`
	Fields     []fieldDoc `yaml:"fields,omitempty"`
	Extensible bool       `yaml:"extensible,omitempty"`
	Class      string     `yaml:"class,omitempty"`
	Number     int        `yaml:"number,omitempty"`
	Implicit   bool       `yaml:"implicit,omitempty"`
	Inner      *typeDoc   `yaml:"inner,omitempty"`
}

type fieldDoc struct {
	Name     string   `yaml:"name"`
	Type     *typeDoc `yaml:"type"`
	Optional bool     `yaml:"optional,omitempty"`
}

type rangeDoc struct {
	Lower      string `yaml:"lower,omitempty"`
	Upper      string `yaml:"upper,omitempty"`
	Extensible bool   `yaml:"extensible,omitempty"`
}

const (
	kindInteger   = "INTEGER"
	kindBoolean   = "BOOLEAN"
	kindSequence  = "SEQUENCE"
	kindReference = "reference"
	kindTagged    = "tagged"
)

func fromModule(m *schema.Module) moduleDoc {
	doc := moduleDoc{Name: m.Name, Tags: m.TagDefault.String()}
	for _, def := range m.Types {
		doc.Types = append(doc.Types, typeDef{Name: def.Name, Type: fromType(def.Type)})
	}
	return doc
}

func fromType(t schema.Type) *typeDoc {
	switch tt := t.(type) {
	case *schema.Integer:
		return &typeDoc{Kind: kindInteger, Range: fromRange(tt.Range)}
	case *schema.Boolean:
		return &typeDoc{Kind: kindBoolean}
	case *schema.CharString:
		return &typeDoc{Kind: tt.StringKind.String(), Range: fromRange(tt.Size)}
	case *schema.Sequence:
		d := &typeDoc{Kind: kindSequence, Extensible: tt.Extensible}
		for _, f := range tt.Fields {
			d.Fields = append(d.Fields, fieldDoc{Name: f.Name, Type: fromType(f.Type), Optional: f.Optional})
		}
		return d
	case *schema.Reference:
		return &typeDoc{Kind: kindReference, Ref: tt.Name}
	case *schema.Tagged:
		return &typeDoc{
			Kind:     kindTagged,
			Class:    tt.Class.String(),
			Number:   tt.Number,
			Implicit: tt.Implicit,
			Inner:    fromType(tt.Type),
		}
	}
	return &typeDoc{Kind: t.Kind().String()}
}

func fromRange(r *schema.Range) *rangeDoc {
	if r == nil {
		return nil
	}
	d := &rangeDoc{Extensible: r.Extensible}
	if r.Lower != nil {
		d.Lower = r.Lower.String()
	}
	if r.Upper != nil {
		d.Upper = r.Upper.String()
	}
	return d
}

// toModule rebuilds the module through schema.NewModule, so a tampered
// document is checked like freshly parsed text.
func (doc moduleDoc) toModule() (*schema.Module, error) {
	var tags schema.TagDefault
	switch doc.Tags {
	case "EXPLICIT":
		tags = schema.TagsExplicit
	case "IMPLICIT":
		tags = schema.TagsImplicit
	case "AUTOMATIC":
		tags = schema.TagsAutomatic
	default:
		return nil, fmt.Errorf("schemacache: unknown tag default %q", doc.Tags)
	}
	defs := make([]*schema.TypeDef, 0, len(doc.Types))
	for _, td := range doc.Types {
		t, err := td.Type.toType()
		if err != nil {
			return nil, fmt.Errorf("schemacache: type %s: %w", td.Name, err)
		}
		defs = append(defs, &schema.TypeDef{Name: td.Name, Type: t})
	}
	return schema.NewModule(doc.Name, tags, defs)
}

var classes = map[string]schema.Class{
	"UNIVERSAL":   schema.ClassUniversal,
	"APPLICATION": schema.ClassApplication,
	"CONTEXT":     schema.ClassContext,
	"PRIVATE":     schema.ClassPrivate,
}

func (d *typeDoc) toType() (schema.Type, error) {
	if d == nil {
		return nil, errors.New("missing type")
	}
	switch d.Kind {
	case kindInteger:
		r, err := d.Range.toRange()
		if err != nil {
			return nil, err
		}
		return &schema.Integer{Range: r}, nil
	case kindBoolean:
		return &schema.Boolean{}, nil
	case kindSequence:
		seq := &schema.Sequence{Extensible: d.Extensible, Fields: make([]schema.Field, 0, len(d.Fields))}
		for _, f := range d.Fields {
			ft, err := f.Type.toType()
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			seq.Fields = append(seq.Fields, schema.Field{Name: f.Name, Type: ft, Optional: f.Optional})
		}
		return seq, nil
	case kindReference:
		return &schema.Reference{Name: d.Ref}, nil
	case kindTagged:
		class, ok := classes[d.Class]
		if !ok {
			return nil, fmt.Errorf("unknown tag class %q", d.Class)
		}
		inner, err := d.Inner.toType()
		if err != nil {
			return nil, err
		}
		return &schema.Tagged{Class: class, Number: d.Number, Implicit: d.Implicit, Type: inner}, nil
	}
	if k, ok := schema.LookupStringKind(d.Kind); ok {
		r, err := d.Range.toRange()
		if err != nil {
			return nil, err
		}
		return &schema.CharString{StringKind: k, Size: r}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", d.Kind)
}

func (d *rangeDoc) toRange() (*schema.Range, error) {
	if d == nil {
		return nil, nil
	}
	r := &schema.Range{Extensible: d.Extensible}
	for _, b := range []struct {
		text string
		dst  **big.Int
	}{{d.Lower, &r.Lower}, {d.Upper, &r.Upper}} {
		if b.text == "" {
			continue
		}
		x, ok := new(big.Int).SetString(b.text, 10)
		if !ok {
			return nil, fmt.Errorf("bad bound %q", b.text)
		}
		*b.dst = x
	}
	return r, nil
}
