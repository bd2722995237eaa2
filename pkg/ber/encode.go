package ber

import (
	"errors"
	"fmt"

	"github.com/rawbytedev/asnkit/internal/common"
	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

type encoder struct {
	walk *codec.Walk
}

// fail records the component path at the point of failure. Errors that
// already carry a path pass through unchanged.
func (e *encoder) fail(err error) error {
	var ee *codec.EncodeError
	if errors.As(err, &ee) {
		return err
	}
	return &codec.EncodeError{Path: e.walk.Path(), Err: err}
}

// encode returns the complete tag, length and contents of v as type t.
func (e *encoder) encode(t schema.Type, v value.Value) ([]byte, error) {
	id, content, err := e.element(t, v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(content)+8)
	out = appendIdentifier(out, id)
	out = appendLength(out, len(content))
	return append(out, content...), nil
}

// element returns the identifier and contents octets of v as type t.
func (e *encoder) element(t schema.Type, v value.Value) (identifier, []byte, error) {
	switch tt := t.(type) {
	case *schema.Reference:
		return e.element(tt.Def.Type, v)

	case *schema.Tagged:
		if tt.Implicit {
			inner, content, err := e.element(tt.Type, v)
			if err != nil {
				return identifier{}, nil, err
			}
			return identifier{class: tt.Class, number: tt.Number, constructed: inner.constructed}, content, nil
		}
		content, err := e.encode(tt.Type, v)
		if err != nil {
			return identifier{}, nil, err
		}
		return identifier{class: tt.Class, number: tt.Number, constructed: true}, content, nil

	case *schema.Integer:
		i, err := codec.AsInteger(tt, v, true)
		if err != nil {
			return identifier{}, nil, e.fail(err)
		}
		return outerTag(tt), common.SignedBytes(i), nil

	case *schema.Boolean:
		b, err := codec.AsBoolean(v)
		if err != nil {
			return identifier{}, nil, e.fail(err)
		}
		if b {
			return outerTag(tt), []byte{0xff}, nil
		}
		return outerTag(tt), []byte{0x00}, nil

	case *schema.CharString:
		s, err := codec.AsText(tt, v, true)
		if err != nil {
			return identifier{}, nil, e.fail(err)
		}
		return outerTag(tt), []byte(s), nil

	case *schema.Sequence:
		content, err := e.sequence(tt, v)
		if err != nil {
			return identifier{}, nil, err
		}
		return outerTag(tt), content, nil
	}
	return identifier{}, nil, e.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

// sequence concatenates the present components in declaration order.
func (e *encoder) sequence(seq *schema.Sequence, v value.Value) ([]byte, error) {
	if err := codec.CheckStructure(seq, v); err != nil {
		return nil, e.fail(err)
	}
	var out []byte
	for _, f := range seq.Fields {
		fv, ok := v.Get(f.Name)
		if !ok {
			continue
		}
		if err := e.walk.Enter(f.Name); err != nil {
			return nil, e.fail(err)
		}
		enc, err := e.encode(f.Type, fv)
		if err != nil {
			return nil, err
		}
		e.walk.Leave()
		out = append(out, enc...)
	}
	return out, nil
}

// appendIdentifier writes the identifier octets, using the high tag number
// form for numbers of 31 and above.
func appendIdentifier(dst []byte, id identifier) []byte {
	first := byte(id.class) << classShift
	if id.constructed {
		first |= constructedFlag
	}
	if id.number < highTagMarker {
		return append(dst, first|byte(id.number))
	}
	dst = append(dst, first|highTagMarker)
	var tmp [5]byte
	i := len(tmp) - 1
	n := id.number
	tmp[i] = byte(n & 0x7f)
	for n >>= 7; n > 0; n >>= 7 {
		i--
		tmp[i] = byte(n&0x7f) | 0x80
	}
	return append(dst, tmp[i:]...)
}

// appendLength writes a definite length in the shortest form.
func appendLength(dst []byte, n int) []byte {
	if n < 0x80 {
		return append(dst, byte(n))
	}
	var tmp [8]byte
	i := len(tmp)
	for ; n > 0; n >>= 8 {
		i--
		tmp[i] = byte(n)
	}
	dst = append(dst, 0x80|byte(len(tmp)-i))
	return append(dst, tmp[i:]...)
}
