package schema

import (
	"fmt"
	"math/big"
	"strings"
)

// Kind identifies the variant of a Type.
type Kind int

const (
	KindInteger Kind = iota
	KindBoolean
	KindCharString
	KindSequence
	KindReference
	KindTagged
)

// String returns the ASN.1 spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindBoolean:
		return "BOOLEAN"
	case KindCharString:
		return "character string"
	case KindSequence:
		return "SEQUENCE"
	case KindReference:
		return "reference"
	case KindTagged:
		return "tagged"
	default:
		return "unknown"
	}
}

// Type is one node of the type model. The concrete variants are *Integer,
// *Boolean, *CharString, *Sequence, *Reference and *Tagged.
type Type interface {
	Kind() Kind
	String() string
}

// Integer is INTEGER with an optional value constraint.
type Integer struct {
	Range *Range
}

func (*Integer) Kind() Kind { return KindInteger }

func (t *Integer) String() string {
	if t.Range == nil {
		return "INTEGER"
	}
	return "INTEGER (" + t.Range.String() + ")"
}

// Boolean is BOOLEAN.
type Boolean struct{}

func (*Boolean) Kind() Kind { return KindBoolean }

func (*Boolean) String() string { return "BOOLEAN" }

// CharString is one of the restricted character string types, with an
// optional SIZE constraint counted in characters.
type CharString struct {
	StringKind StringKind
	Size       *Range
}

func (*CharString) Kind() Kind { return KindCharString }

func (t *CharString) String() string {
	if t.Size == nil {
		return t.StringKind.String()
	}
	return t.StringKind.String() + " (SIZE (" + t.Size.String() + "))"
}

// Field is one component of a SEQUENCE.
type Field struct {
	Name     string
	Type     Type
	Optional bool
}

// Sequence is SEQUENCE { ... }. Fields keep declaration order, which is the
// wire order for every rule set.
type Sequence struct {
	Fields     []Field
	Extensible bool
}

func (*Sequence) Kind() Kind { return KindSequence }

func (t *Sequence) String() string {
	parts := make([]string, 0, len(t.Fields)+1)
	for _, f := range t.Fields {
		s := f.Name + " " + f.Type.String()
		if f.Optional {
			s += " OPTIONAL"
		}
		parts = append(parts, s)
	}
	if t.Extensible {
		parts = append(parts, "...")
	}
	return "SEQUENCE { " + strings.Join(parts, ", ") + " }"
}

// Field returns the component called name.
func (t *Sequence) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Reference names another type assignment of the same module. Def is filled
// in by NewModule.
type Reference struct {
	Name string
	Def  *TypeDef
}

func (*Reference) Kind() Kind { return KindReference }

func (t *Reference) String() string { return t.Name }

// Class is the class of a tag.
type Class int

const (
	ClassUniversal Class = iota
	ClassApplication
	ClassContext
	ClassPrivate
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "UNIVERSAL"
	case ClassApplication:
		return "APPLICATION"
	case ClassContext:
		return "CONTEXT"
	case ClassPrivate:
		return "PRIVATE"
	default:
		return "unknown"
	}
}

// Tagged is a type prefixed with a tag, [APPLICATION 3] IMPLICIT INTEGER.
type Tagged struct {
	Class    Class
	Number   int
	Implicit bool
	Type     Type
}

func (*Tagged) Kind() Kind { return KindTagged }

func (t *Tagged) String() string {
	var b strings.Builder
	b.WriteByte('[')
	if t.Class != ClassContext {
		b.WriteString(t.Class.String())
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%d] ", t.Number)
	if t.Implicit {
		b.WriteString("IMPLICIT ")
	} else {
		b.WriteString("EXPLICIT ")
	}
	b.WriteString(t.Type.String())
	return b.String()
}

// Range is a closed interval. A nil bound stands for MIN or MAX. An
// extensible range, (0..10, ...), admits values outside the interval; the
// interval is then only the root that packed encodings optimise for.
type Range struct {
	Lower      *big.Int
	Upper      *big.Int
	Extensible bool
}

// NewRange builds a range from int64 bounds.
func NewRange(lower, upper int64) *Range {
	return &Range{Lower: big.NewInt(lower), Upper: big.NewInt(upper)}
}

// Bounded reports whether both ends are known.
func (r *Range) Bounded() bool {
	return r != nil && r.Lower != nil && r.Upper != nil
}

// Fixed reports whether the range holds exactly one value.
func (r *Range) Fixed() bool {
	return r.Bounded() && r.Lower.Cmp(r.Upper) == 0
}

// Contains reports whether x lies within the range.
func (r *Range) Contains(x *big.Int) bool {
	if r == nil {
		return true
	}
	if r.Lower != nil && x.Cmp(r.Lower) < 0 {
		return false
	}
	if r.Upper != nil && x.Cmp(r.Upper) > 0 {
		return false
	}
	return true
}

// Admits reports whether x is a legal value: inside the root, or anywhere
// when the range is extensible.
func (r *Range) Admits(x *big.Int) bool {
	return r == nil || r.Extensible || r.Contains(x)
}

// Span returns upper-lower, or nil when the range is not bounded.
func (r *Range) Span() *big.Int {
	if !r.Bounded() {
		return nil
	}
	return new(big.Int).Sub(r.Upper, r.Lower)
}

func (r *Range) String() string {
	lo, hi := "MIN", "MAX"
	if r.Lower != nil {
		lo = r.Lower.String()
	}
	if r.Upper != nil {
		hi = r.Upper.String()
	}
	s := lo + ".." + hi
	if r.Fixed() {
		s = lo
	}
	if r.Extensible {
		s += ", ..."
	}
	return s
}

// Resolve follows references until it reaches a non-reference type.
func Resolve(t Type) Type {
	for {
		ref, ok := t.(*Reference)
		if !ok || ref.Def == nil {
			return t
		}
		t = ref.Def.Type
	}
}

// Underlying strips references and tags, returning the builtin type that
// drives encoding in rule sets that ignore tags.
func Underlying(t Type) Type {
	for {
		switch tt := t.(type) {
		case *Reference:
			if tt.Def == nil {
				return t
			}
			t = tt.Def.Type
		case *Tagged:
			t = tt.Type
		default:
			return t
		}
	}
}
