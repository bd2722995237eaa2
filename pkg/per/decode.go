package per

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"strings"
	"unicode/utf8"

	"github.com/rawbytedev/asnkit/internal/common"
	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

type decoder struct {
	r       *common.BitReader
	aligned bool
	format  string
	walk    *codec.Walk
}

func (d *decoder) fail(err error) error {
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &codec.DecodeError{Format: d.format, Path: d.walk.Path(), Offset: d.r.Offset(), Err: err}
}

func (d *decoder) align() {
	if d.aligned {
		d.r.Align()
	}
}

func (d *decoder) decode(t schema.Type) (value.Value, error) {
	switch tt := t.(type) {
	case *schema.Reference:
		return d.decode(tt.Def.Type)
	case *schema.Tagged:
		return d.decode(tt.Type)
	case *schema.Integer:
		i, err := d.integer(tt.Range)
		if err != nil {
			return value.Value{}, d.fail(err)
		}
		return value.BigInt(i), nil
	case *schema.Boolean:
		b, err := d.r.ReadBit()
		if err != nil {
			return value.Value{}, d.fail(err)
		}
		return value.Bool(b), nil
	case *schema.CharString:
		s, err := d.charString(tt)
		if err != nil {
			return value.Value{}, d.fail(err)
		}
		return value.Text(s), nil
	case *schema.Sequence:
		return d.sequence(tt)
	}
	return value.Value{}, d.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

func (d *decoder) sequence(seq *schema.Sequence) (value.Value, error) {
	if seq.Extensible {
		ext, err := d.r.ReadBit()
		if err != nil {
			return value.Value{}, d.fail(err)
		}
		if ext {
			return value.Value{}, d.fail(fmt.Errorf("%w: extension additions", codec.ErrUnsupported))
		}
	}
	present := make([]bool, len(seq.Fields))
	for i, f := range seq.Fields {
		if !f.Optional {
			present[i] = true
			continue
		}
		b, err := d.r.ReadBit()
		if err != nil {
			return value.Value{}, d.fail(err)
		}
		present[i] = b
	}
	fields := make([]value.Field, 0, len(seq.Fields))
	for i, f := range seq.Fields {
		if !present[i] {
			continue
		}
		if err := d.walk.Enter(f.Name); err != nil {
			return value.Value{}, d.fail(err)
		}
		fv, err := d.decode(f.Type)
		if err != nil {
			return value.Value{}, err
		}
		d.walk.Leave()
		fields = append(fields, value.F(f.Name, fv))
	}
	return value.Struct(fields...), nil
}

func (d *decoder) integer(r *schema.Range) (*big.Int, error) {
	if r != nil && r.Extensible {
		ext, err := d.r.ReadBit()
		if err != nil {
			return nil, err
		}
		if ext {
			return d.signed()
		}
	}
	switch {
	case r.Bounded():
		off, err := d.constrainedWhole(r.Span())
		if err != nil {
			return nil, err
		}
		i := off.Add(off, r.Lower)
		if !r.Contains(i) {
			return nil, fmt.Errorf("%w: %s not in %s", codec.ErrOutOfRange, i, r)
		}
		return i, nil
	case r != nil && r.Lower != nil:
		b, err := d.octets()
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("%w: empty integer", codec.ErrInvalidLength)
		}
		i := new(big.Int).SetBytes(b)
		return i.Add(i, r.Lower), nil
	default:
		i, err := d.signed()
		if err != nil {
			return nil, err
		}
		if !r.Admits(i) {
			return nil, fmt.Errorf("%w: %s not in %s", codec.ErrOutOfRange, i, r)
		}
		return i, nil
	}
}

func (d *decoder) signed() (*big.Int, error) {
	b, err := d.octets()
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty integer", codec.ErrInvalidLength)
	}
	return common.FromSigned(b), nil
}

func (d *decoder) constrainedWhole(span *big.Int) (*big.Int, error) {
	if span.Sign() == 0 {
		return new(big.Int), nil
	}
	var off *big.Int
	var err error
	switch {
	case !d.aligned || span.Cmp(big255) < 0:
		off, err = d.r.ReadBigBits(span.BitLen())
	case span.Cmp(big255) == 0:
		d.r.Align()
		off, err = d.r.ReadBigBits(8)
	case span.Cmp(big65535) <= 0:
		d.r.Align()
		off, err = d.r.ReadBigBits(16)
	default:
		maxOctets := common.OctetsFor(span)
		var nm1 uint64
		if nm1, err = d.r.ReadBits(bits.Len(uint(maxOctets - 1))); err != nil {
			return nil, err
		}
		n := int(nm1) + 1
		if n > maxOctets {
			return nil, fmt.Errorf("%w: %d octets for a %d octet range", codec.ErrInvalidLength, n, maxOctets)
		}
		d.r.Align()
		var b []byte
		if b, err = d.r.ReadBytes(n); err != nil {
			return nil, err
		}
		off = new(big.Int).SetBytes(b)
	}
	if err != nil {
		return nil, err
	}
	if off.Cmp(span) > 0 {
		return nil, fmt.Errorf("%w: offset %s exceeds range %s", codec.ErrOutOfRange, off, span)
	}
	return off, nil
}

// length reads one unconstrained length determinant. more is set when the
// determinant announced a fragment and another determinant follows.
func (d *decoder) length() (int, bool, error) {
	d.align()
	b, err := d.r.ReadBits(8)
	if err != nil {
		return 0, false, err
	}
	switch {
	case b&0x80 == 0:
		return int(b), false, nil
	case b&0xc0 == 0x80:
		lo, lerr := d.r.ReadBits(8)
		if lerr != nil {
			return 0, false, lerr
		}
		return int(b&0x3f)<<8 | int(lo), false, nil
	}
	m := int(b & 0x3f)
	if m < 1 || m > maxFragments {
		return 0, false, fmt.Errorf("%w: fragment count %d", codec.ErrInvalidLength, m)
	}
	return m * fragment, true, nil
}

// fragmented reads items behind unconstrained length determinants until the
// final fragment.
func (d *decoder) fragmented(items func(n int) error) error {
	for {
		n, more, err := d.length()
		if err != nil {
			return err
		}
		if err := items(n); err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (d *decoder) octets() ([]byte, error) {
	var out []byte
	err := d.fragmented(func(n int) error {
		b, err := d.r.ReadBytes(n)
		if err != nil {
			return err
		}
		out = append(out, b...)
		return nil
	})
	return out, err
}

func (d *decoder) charString(t *schema.CharString) (string, error) {
	if t.StringKind == schema.UTF8String {
		b, err := d.octets()
		if err != nil {
			return "", err
		}
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: malformed UTF-8", codec.ErrInvalidCharacter)
		}
		if n := utf8.RuneCount(b); !t.Size.Admits(big.NewInt(int64(n))) {
			return "", fmt.Errorf("%w: length %d not in SIZE (%s)", codec.ErrOutOfRange, n, t.Size)
		}
		return string(b), nil
	}

	cs := charsets[d.aligned][t.StringKind]
	var sb strings.Builder
	chars := func(n int) error {
		if n*cs.width > d.r.Remaining() {
			return codec.ErrTruncated
		}
		for i := 0; i < n; i++ {
			c, err := d.r.ReadBits(cs.width)
			if err != nil {
				return err
			}
			ch, err := cs.char(c)
			if err != nil {
				return err
			}
			sb.WriteByte(ch)
		}
		return nil
	}

	size := t.Size
	if size != nil && size.Extensible {
		ext, err := d.r.ReadBit()
		if err != nil {
			return "", err
		}
		if ext {
			size = nil
		}
	}
	lb, ub := sizeBounds(size)
	var err error
	switch {
	case ub >= 0 && lb == ub:
		if ub*cs.width > 16 {
			d.align()
		}
		err = chars(ub)
	case ub >= 0:
		var off *big.Int
		if off, err = d.constrainedWhole(big.NewInt(int64(ub - lb))); err != nil {
			return "", err
		}
		if ub*cs.width > 16 {
			d.align()
		}
		err = chars(lb + int(off.Int64()))
	default:
		err = d.fragmented(chars)
	}
	if err != nil {
		return "", err
	}
	s := sb.String()
	if !size.Admits(big.NewInt(int64(len(s)))) {
		return "", fmt.Errorf("%w: length %d not in SIZE (%s)", codec.ErrOutOfRange, len(s), size)
	}
	return s, nil
}

// char maps a decoded code back to its character.
func (cs charset) char(code uint64) (byte, error) {
	if cs.indexed {
		if code >= uint64(len(cs.alphabet)) {
			return 0, fmt.Errorf("%w: character index %d", codec.ErrInvalidCharacter, code)
		}
		return cs.alphabet[code], nil
	}
	c := byte(code)
	if code > 0x7f || strings.IndexByte(cs.alphabet, c) < 0 {
		return 0, fmt.Errorf("%w: character 0x%02x", codec.ErrInvalidCharacter, code)
	}
	return c, nil
}
