// Package schema holds the type model an ASN.1 module is compiled into.
//
// A Module is built once, by the parser or by NewModule directly, and is
// read-only afterwards: rule sets and bindings share it between goroutines
// without locking.
package schema

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateType  = errors.New("duplicate type name")
	ErrDuplicateField = errors.New("duplicate field name")
	ErrUnresolved     = errors.New("unresolved type reference")
	ErrRecursive      = errors.New("recursion through mandatory fields")
	ErrBadConstraint  = errors.New("invalid constraint")
	ErrAmbiguousTag   = errors.New("ambiguous component tags")
)

// SemanticError reports a well-formed schema whose names or constraints do
// not hold together.
type SemanticError struct {
	Module string
	Type   string
	Detail string
	Err    error
}

func (e *SemanticError) Error() string {
	msg := fmt.Sprintf("schema: module %s", e.Module)
	if e.Type != "" {
		msg += ", type " + e.Type
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SemanticError) Unwrap() error { return e.Err }

// TagDefault is the module-wide tagging mode from the module header.
type TagDefault int

const (
	TagsExplicit TagDefault = iota
	TagsImplicit
	TagsAutomatic
)

func (d TagDefault) String() string {
	switch d {
	case TagsImplicit:
		return "IMPLICIT"
	case TagsAutomatic:
		return "AUTOMATIC"
	default:
		return "EXPLICIT"
	}
}

// TypeDef is one type assignment, Name ::= Type.
type TypeDef struct {
	Name string
	Type Type
}

// Module is a named, resolved collection of type assignments.
type Module struct {
	Name       string
	TagDefault TagDefault
	Types      []*TypeDef

	index map[string]*TypeDef
}

// NewModule resolves references, applies automatic tagging and checks the
// module invariants. The definitions are owned by the returned module and
// must not be modified afterwards.
func NewModule(name string, tagDefault TagDefault, defs []*TypeDef) (*Module, error) {
	m := &Module{
		Name:       name,
		TagDefault: tagDefault,
		Types:      defs,
		index:      make(map[string]*TypeDef, len(defs)),
	}
	for _, def := range defs {
		if _, dup := m.index[def.Name]; dup {
			return nil, m.errorf(def.Name, ErrDuplicateType, "%s assigned twice", def.Name)
		}
		m.index[def.Name] = def
	}
	for _, def := range defs {
		if err := m.resolve(def.Name, def.Type); err != nil {
			return nil, err
		}
	}
	if err := m.checkRecursion(); err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := m.checkTags(def.Name, def.Type); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Lookup returns the assignment called name.
func (m *Module) Lookup(name string) (*TypeDef, bool) {
	def, ok := m.index[name]
	return def, ok
}

// Names lists the assigned type names in declaration order.
func (m *Module) Names() []string {
	names := make([]string, 0, len(m.Types))
	for _, def := range m.Types {
		names = append(names, def.Name)
	}
	return names
}

func (m *Module) errorf(typeName string, err error, format string, args ...any) *SemanticError {
	return &SemanticError{Module: m.Name, Type: typeName, Err: err, Detail: fmt.Sprintf(format, args...)}
}

func (m *Module) resolve(owner string, t Type) error {
	switch tt := t.(type) {
	case *Reference:
		def, ok := m.index[tt.Name]
		if !ok {
			return m.errorf(owner, ErrUnresolved, "%s", tt.Name)
		}
		tt.Def = def
	case *Integer:
		if err := checkRange(tt.Range, false); err != nil {
			return m.errorf(owner, ErrBadConstraint, "%v", err)
		}
	case *CharString:
		if err := checkRange(tt.Size, true); err != nil {
			return m.errorf(owner, ErrBadConstraint, "SIZE %v", err)
		}
	case *Tagged:
		if tt.Number < 0 {
			return m.errorf(owner, ErrBadConstraint, "negative tag number %d", tt.Number)
		}
		return m.resolve(owner, tt.Type)
	case *Sequence:
		seen := make(map[string]struct{}, len(tt.Fields))
		for _, f := range tt.Fields {
			if _, dup := seen[f.Name]; dup {
				return m.errorf(owner, ErrDuplicateField, "%s", f.Name)
			}
			seen[f.Name] = struct{}{}
			if err := m.resolve(owner, f.Type); err != nil {
				return err
			}
		}
		if m.TagDefault == TagsAutomatic {
			autoTag(tt)
		}
	}
	return nil
}

// autoTag numbers the components with context tags when none is tagged.
func autoTag(seq *Sequence) {
	for _, f := range seq.Fields {
		if _, tagged := f.Type.(*Tagged); tagged {
			return
		}
	}
	for i := range seq.Fields {
		seq.Fields[i].Type = &Tagged{Class: ClassContext, Number: i, Implicit: true, Type: seq.Fields[i].Type}
	}
}

func checkRange(r *Range, size bool) error {
	if r == nil {
		return nil
	}
	if size {
		if r.Lower != nil && r.Lower.Sign() < 0 {
			return fmt.Errorf("lower bound %s is negative", r.Lower)
		}
		if r.Upper != nil && r.Upper.Sign() < 0 {
			return fmt.Errorf("upper bound %s is negative", r.Upper)
		}
	}
	if r.Bounded() && r.Lower.Cmp(r.Upper) > 0 {
		return fmt.Errorf("empty range %s", r)
	}
	return nil
}

// checkRecursion rejects reference cycles that never pass an OPTIONAL
// field; no finite value could satisfy them.
func (m *Module) checkRecursion() error {
	const (
		white = iota
		grey
		black
	)
	state := make(map[*TypeDef]int, len(m.Types))
	var visit func(def *TypeDef) error
	var walk func(owner *TypeDef, t Type) error
	walk = func(owner *TypeDef, t Type) error {
		switch tt := t.(type) {
		case *Reference:
			switch state[tt.Def] {
			case grey:
				return m.errorf(owner.Name, ErrRecursive, "%s reaches %s", owner.Name, tt.Def.Name)
			case white:
				return visit(tt.Def)
			}
		case *Tagged:
			return walk(owner, tt.Type)
		case *Sequence:
			for _, f := range tt.Fields {
				if f.Optional {
					continue
				}
				if err := walk(owner, f.Type); err != nil {
					return err
				}
			}
		}
		return nil
	}
	visit = func(def *TypeDef) error {
		state[def] = grey
		if err := walk(def, def.Type); err != nil {
			return err
		}
		state[def] = black
		return nil
	}
	for _, def := range m.Types {
		if state[def] == white {
			if err := visit(def); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkTags requires the components of each run of OPTIONAL fields, and the
// mandatory field closing the run, to carry distinct tags. Otherwise a
// tag-length-value decoder cannot tell which of them it is reading.
func (m *Module) checkTags(owner string, t Type) error {
	switch tt := t.(type) {
	case *Tagged:
		return m.checkTags(owner, tt.Type)
	case *Sequence:
		run := make(map[Tag]string)
		for _, f := range tt.Fields {
			if err := m.checkTags(owner, f.Type); err != nil {
				return err
			}
			tag, ok := OuterTag(f.Type)
			if !ok {
				continue
			}
			if prev, clash := run[tag]; clash {
				return m.errorf(owner, ErrAmbiguousTag, "%s and %s both carry tag %s", prev, f.Name, tag)
			}
			if f.Optional {
				run[tag] = f.Name
			} else {
				clear(run)
			}
		}
	}
	return nil
}
