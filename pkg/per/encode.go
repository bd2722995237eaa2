package per

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strings"

	"github.com/rawbytedev/asnkit/internal/common"
	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

var (
	big255   = big.NewInt(255)
	big65535 = big.NewInt(65535)
)

type encoder struct {
	w       *common.BitWriter
	aligned bool
	walk    *codec.Walk
}

func (e *encoder) fail(err error) error {
	var ee *codec.EncodeError
	if errors.As(err, &ee) {
		return err
	}
	return &codec.EncodeError{Path: e.walk.Path(), Err: err}
}

// align pads to an octet boundary in the ALIGNED variant only.
func (e *encoder) align() {
	if e.aligned {
		e.w.Align()
	}
}

func (e *encoder) encode(t schema.Type, v value.Value) error {
	switch tt := t.(type) {
	case *schema.Reference:
		return e.encode(tt.Def.Type, v)
	case *schema.Tagged:
		return e.encode(tt.Type, v)
	case *schema.Integer:
		i, err := codec.AsInteger(tt, v, true)
		if err != nil {
			return e.fail(err)
		}
		e.integer(tt.Range, i)
		return nil
	case *schema.Boolean:
		b, err := codec.AsBoolean(v)
		if err != nil {
			return e.fail(err)
		}
		e.w.WriteBit(b)
		return nil
	case *schema.CharString:
		s, err := codec.AsText(tt, v, true)
		if err != nil {
			return e.fail(err)
		}
		e.charString(tt, s)
		return nil
	case *schema.Sequence:
		return e.sequence(tt, v)
	}
	return e.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

// sequence writes the extension bit, the presence bitmap of the OPTIONAL
// components and then the present components in declaration order.
func (e *encoder) sequence(seq *schema.Sequence, v value.Value) error {
	if err := codec.CheckStructure(seq, v); err != nil {
		return e.fail(err)
	}
	if seq.Extensible {
		e.w.WriteBit(false)
	}
	for _, f := range seq.Fields {
		if f.Optional {
			_, present := v.Get(f.Name)
			e.w.WriteBit(present)
		}
	}
	for _, f := range seq.Fields {
		fv, ok := v.Get(f.Name)
		if !ok {
			continue
		}
		if err := e.walk.Enter(f.Name); err != nil {
			return e.fail(err)
		}
		if err := e.encode(f.Type, fv); err != nil {
			return err
		}
		e.walk.Leave()
	}
	return nil
}

// integer picks the constrained, semi-constrained or unconstrained form
// from the PER-visible bounds of r.
func (e *encoder) integer(r *schema.Range, i *big.Int) {
	if r != nil && r.Extensible {
		inRoot := r.Contains(i)
		e.w.WriteBit(!inRoot)
		if !inRoot {
			e.octets(common.SignedBytes(i))
			return
		}
	}
	switch {
	case r.Bounded():
		e.constrainedWhole(new(big.Int).Sub(i, r.Lower), r.Span())
	case r != nil && r.Lower != nil:
		e.octets(common.UnsignedBytes(new(big.Int).Sub(i, r.Lower)))
	default:
		e.octets(common.SignedBytes(i))
	}
}

// constrainedWhole writes off, 0 <= off <= span, as a constrained whole
// number.
func (e *encoder) constrainedWhole(off, span *big.Int) {
	if span.Sign() == 0 {
		return
	}
	if !e.aligned {
		e.w.WriteBigBits(off, span.BitLen())
		return
	}
	switch {
	case span.Cmp(big255) < 0:
		e.w.WriteBigBits(off, span.BitLen())
	case span.Cmp(big255) == 0:
		e.w.Align()
		e.w.WriteBigBits(off, 8)
	case span.Cmp(big65535) <= 0:
		e.w.Align()
		e.w.WriteBigBits(off, 16)
	default:
		// Octet count as a bit field, then the minimal octets.
		n := common.OctetsFor(off)
		maxOctets := common.OctetsFor(span)
		e.w.WriteBits(uint64(n-1), bits.Len(uint(maxOctets-1)))
		e.w.Align()
		e.w.WriteBytes(off.FillBytes(make([]byte, n)))
	}
}

// octets writes b behind an unconstrained length determinant.
func (e *encoder) octets(b []byte) {
	e.fragmented(len(b), func(from, to int) {
		e.w.WriteBytes(b[from:to])
	})
}

// fragmented writes count items behind unconstrained length determinants,
// splitting into 16K fragments as needed. A count that is a multiple of the
// fragment size ends with an empty final determinant.
func (e *encoder) fragmented(count int, items func(from, to int)) {
	pos := 0
	for {
		e.align()
		rest := count - pos
		if rest < fragment {
			if rest < smallLength {
				e.w.WriteBits(uint64(rest), 8)
			} else {
				e.w.WriteBits(uint64(0x8000|rest), 16)
			}
			items(pos, count)
			return
		}
		m := min(rest/fragment, maxFragments)
		e.w.WriteBits(uint64(0xc0|m), 8)
		items(pos, pos+m*fragment)
		pos += m * fragment
	}
}

func (e *encoder) charString(t *schema.CharString, s string) {
	if t.StringKind == schema.UTF8String {
		e.octets([]byte(s))
		return
	}
	cs := charsets[e.aligned][t.StringKind]
	chars := func(from, to int) {
		for i := from; i < to; i++ {
			e.w.WriteBits(cs.code(s[i]), cs.width)
		}
	}

	n := len(s)
	size := t.Size
	if size != nil && size.Extensible {
		inRoot := size.Contains(big.NewInt(int64(n)))
		e.w.WriteBit(!inRoot)
		if !inRoot {
			size = nil
		}
	}
	lb, ub := sizeBounds(size)
	switch {
	case ub >= 0 && lb == ub:
		if ub*cs.width > 16 {
			e.align()
		}
		chars(0, n)
	case ub >= 0:
		e.constrainedWhole(big.NewInt(int64(n-lb)), big.NewInt(int64(ub-lb)))
		if ub*cs.width > 16 {
			e.align()
		}
		chars(0, n)
	default:
		e.fragmented(n, chars)
	}
}

// code maps a character to its value, or its index in the alphabet when
// the values do not fit the character width.
func (cs charset) code(c byte) uint64 {
	if cs.indexed {
		return uint64(strings.IndexByte(cs.alphabet, c))
	}
	return uint64(c)
}
