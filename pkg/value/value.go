// Package value is the dynamically typed tree that carries application data
// into encoders and out of decoders.
//
// A Value carries no schema type: whether an Integer fits an INTEGER (0..7)
// or a Structure has every mandatory field is decided by the rule set at
// encode time.
package value

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Kind is the variant held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInteger
	KindBoolean
	KindText
	KindStructure
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindText:
		return "text"
	case KindStructure:
		return "structure"
	default:
		return "invalid"
	}
}

// Field is one named member of a Structure.
type Field struct {
	Name  string
	Value Value
}

// Value is an Integer, Boolean, Text or Structure. The zero Value is
// invalid. Values are immutable: constructors copy their inputs and
// accessors return copies.
type Value struct {
	kind   Kind
	intVal *big.Int
	bool   bool
	text   string
	fields []Field
}

// Int returns an Integer value.
func Int(v int64) Value {
	return Value{kind: KindInteger, intVal: big.NewInt(v)}
}

// BigInt returns an Integer value holding a copy of v.
func BigInt(v *big.Int) Value {
	return Value{kind: KindInteger, intVal: new(big.Int).Set(v)}
}

// Bool returns a Boolean value.
func Bool(v bool) Value {
	return Value{kind: KindBoolean, bool: v}
}

// Text returns a Text value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Struct returns a Structure holding fields in the given order. A later
// field with a name already present replaces the earlier one.
func Struct(fields ...Field) Value {
	v := Value{kind: KindStructure, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		v = v.With(f.Name, f.Value)
	}
	return v
}

// F is shorthand for a Field literal.
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a variant.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Integer returns a copy of the integer held by v.
func (v Value) Integer() (*big.Int, bool) {
	if v.kind != KindInteger {
		return nil, false
	}
	return new(big.Int).Set(v.intVal), true
}

// Int64 returns the integer held by v when it fits in an int64.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInteger || !v.intVal.IsInt64() {
		return 0, false
	}
	return v.intVal.Int64(), true
}

// Boolean returns the boolean held by v.
func (v Value) Boolean() (bool, bool) {
	return v.bool, v.kind == KindBoolean
}

// TextValue returns the string held by v.
func (v Value) TextValue() (string, bool) {
	return v.text, v.kind == KindText
}

// Len returns the number of fields of a Structure.
func (v Value) Len() int { return len(v.fields) }

// Get returns the field called name.
func (v Value) Get(name string) (Value, bool) {
	for _, f := range v.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Fields returns a copy of the Structure's fields in insertion order.
func (v Value) Fields() []Field {
	out := make([]Field, len(v.fields))
	copy(out, v.fields)
	return out
}

// With returns a copy of the Structure v with name set to fv. Setting an
// existing name keeps its position.
func (v Value) With(name string, fv Value) Value {
	if v.kind != KindStructure {
		v = Value{kind: KindStructure}
	}
	fields := make([]Field, len(v.fields), len(v.fields)+1)
	copy(fields, v.fields)
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Value = fv
			return Value{kind: KindStructure, fields: fields}
		}
	}
	fields = append(fields, Field{Name: name, Value: fv})
	return Value{kind: KindStructure, fields: fields}
}

// Without returns a copy of the Structure v lacking the field name.
func (v Value) Without(name string) Value {
	fields := make([]Field, 0, len(v.fields))
	for _, f := range v.fields {
		if f.Name != name {
			fields = append(fields, f)
		}
	}
	return Value{kind: KindStructure, fields: fields}
}

// Equal reports whether a and b hold the same tree. Structure fields are
// compared by name, not by position.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInvalid:
		return true
	case KindInteger:
		return a.intVal.Cmp(b.intVal) == 0
	case KindBoolean:
		return a.bool == b.bool
	case KindText:
		return a.text == b.text
	case KindStructure:
		if len(a.fields) != len(b.fields) {
			return false
		}
		for _, f := range a.fields {
			other, ok := b.Get(f.Name)
			if !ok || !Equal(f.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

// Equal reports whether v and other hold the same tree.
func (v Value) Equal(other Value) bool { return Equal(v, other) }

// String renders v the way the example driver prints decoded values:
// {'id': 1, 'question': 'Is 1+1=3?'}.
func (v Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch v.kind {
	case KindInteger:
		b.WriteString(v.intVal.String())
	case KindBoolean:
		if v.bool {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case KindText:
		b.WriteString(quote(v.text))
	case KindStructure:
		b.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(f.Name))
			b.WriteString(": ")
			f.Value.write(b)
		}
		b.WriteByte('}')
	default:
		b.WriteString("<invalid>")
	}
}

func quote(s string) string {
	q := strconv.Quote(s)
	if strings.ContainsRune(s, '\'') {
		return q
	}
	return "'" + q[1:len(q)-1] + "'"
}

// GoString implements fmt.GoStringer for test failure output.
func (v Value) GoString() string {
	return fmt.Sprintf("value.Value(%s)", v.String())
}
