// Package codec defines the contract every wire-format rule set implements,
// the shared error taxonomy, and the bookkeeping rule sets use while walking
// a type tree.
package codec

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

// DefaultMaxDepth bounds type nesting on encode and decode.
const DefaultMaxDepth = 64

// RuleSet encodes and decodes values against schema types for one wire
// format. Implementations hold no per-call state and must be safe for
// concurrent use.
type RuleSet interface {
	// Name is the registry name of the format, "ber" or "uper".
	Name() string
	// Encode returns the complete encoding of v as type t.
	Encode(t schema.Type, v value.Value) ([]byte, error)
	// Decode reads one value of type t from the start of data and reports
	// how many bytes it used.
	Decode(t schema.Type, data []byte) (value.Value, int, error)
}

// Options are the settings shared by every rule set constructor.
type Options struct {
	MaxDepth int
}

// Depth returns the configured depth limit or the default.
func (o Options) Depth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Walk tracks the component path and nesting depth of one encode or decode
// call. It is created per call and never shared.
type Walk struct {
	path  []string
	depth int
	max   int
}

// NewWalk starts a walk rooted at name.
func NewWalk(name string, max int) *Walk {
	w := &Walk{max: max}
	if name != "" {
		w.path = append(w.path, name)
	}
	return w
}

// Enter descends into a named component.
func (w *Walk) Enter(name string) error {
	if w.depth >= w.max {
		return ErrDepthExceeded
	}
	w.depth++
	w.path = append(w.path, name)
	return nil
}

// Leave returns from the component entered last.
func (w *Walk) Leave() {
	w.depth--
	w.path = w.path[:len(w.path)-1]
}

// Path renders the current position, Question.id.
func (w *Walk) Path() string {
	return strings.Join(w.path, ".")
}

// TypeName returns a display name for t, the assigned name for references.
func TypeName(t schema.Type) string {
	if ref, ok := t.(*schema.Reference); ok {
		return ref.Name
	}
	return t.Kind().String()
}

// AsInteger checks that v is an Integer within the type's constraint.
func AsInteger(t *schema.Integer, v value.Value, checkRange bool) (*big.Int, error) {
	i, ok := v.Integer()
	if !ok {
		return nil, fmt.Errorf("%w: want integer, got %s", ErrTypeMismatch, v.Kind())
	}
	if checkRange && !t.Range.Admits(i) {
		return nil, fmt.Errorf("%w: %s not in %s", ErrOutOfRange, i, t.Range)
	}
	return i, nil
}

// AsBoolean checks that v is a Boolean.
func AsBoolean(v value.Value) (bool, error) {
	b, ok := v.Boolean()
	if !ok {
		return false, fmt.Errorf("%w: want boolean, got %s", ErrTypeMismatch, v.Kind())
	}
	return b, nil
}

// AsText checks that v is Text drawn from the type's alphabet and, when
// checkSize is set, that its length satisfies the SIZE constraint.
func AsText(t *schema.CharString, v value.Value, checkSize bool) (string, error) {
	s, ok := v.TextValue()
	if !ok {
		return "", fmt.Errorf("%w: want text, got %s", ErrTypeMismatch, v.Kind())
	}
	if err := t.StringKind.Validate(s); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCharacter, err)
	}
	if checkSize && t.Size != nil {
		n := CharCount(t.StringKind, s)
		if !t.Size.Admits(big.NewInt(int64(n))) {
			return "", fmt.Errorf("%w: length %d not in SIZE (%s)", ErrOutOfRange, n, t.Size)
		}
	}
	return s, nil
}

// CharCount returns the length of s in characters of kind k.
func CharCount(k schema.StringKind, s string) int {
	if k == schema.UTF8String {
		return utf8.RuneCountInString(s)
	}
	return len(s)
}

// CheckStructure verifies that v is a Structure whose field names all
// belong to seq, and that every mandatory field is present.
func CheckStructure(seq *schema.Sequence, v value.Value) error {
	if v.Kind() != value.KindStructure {
		return fmt.Errorf("%w: want structure, got %s", ErrTypeMismatch, v.Kind())
	}
	for _, f := range v.Fields() {
		if _, ok := seq.Field(f.Name); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, f.Name)
		}
	}
	for _, f := range seq.Fields {
		if _, ok := v.Get(f.Name); !ok && !f.Optional {
			return fmt.Errorf("%w: %s", ErrMissingField, f.Name)
		}
	}
	return nil
}
