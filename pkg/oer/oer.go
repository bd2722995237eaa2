// Package oer implements the basic octet encoding rules of X.696.
//
// OER keeps PER's presence bitmap but works in whole octets: integers with
// known bounds get a fixed 1, 2, 4 or 8 octet field, everything else is
// preceded by a length determinant.
package oer

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/ccoveille/go-safecast/v2"

	"github.com/rawbytedev/asnkit/internal/common"
	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

// Options configures a RuleSet.
type Options struct {
	MaxDepth int
}

// RuleSet encodes and decodes OER.
type RuleSet struct {
	opts Options
}

var _ codec.RuleSet = (*RuleSet)(nil)

// New returns an OER rule set.
func New(opts Options) *RuleSet {
	return &RuleSet{opts: opts}
}

// Name returns "oer".
func (*RuleSet) Name() string { return "oer" }

// Encode returns the encoding of v as type t.
func (r *RuleSet) Encode(t schema.Type, v value.Value) ([]byte, error) {
	e := &encoder{walk: codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth())}
	if err := e.encode(t, v); err != nil {
		var ee *codec.EncodeError
		if !errors.As(err, &ee) {
			ee = &codec.EncodeError{Path: e.walk.Path(), Err: err}
		}
		ee.Format = r.Name()
		return nil, ee
	}
	return e.buf, nil
}

// Decode reads one value of type t from the start of data.
func (r *RuleSet) Decode(t schema.Type, data []byte) (value.Value, int, error) {
	d := &decoder{data: data, walk: codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth())}
	v, err := d.decode(t)
	if err != nil {
		return value.Value{}, 0, err
	}
	return v, d.pos, nil
}

// intForm is the OER-visible shape of an INTEGER: a fixed width in octets,
// or zero for a length-prefixed field.
type intForm struct {
	width  int
	signed bool
}

var (
	maxUint64 = new(big.Int).SetUint64(math.MaxUint64)
	minInt64  = big.NewInt(math.MinInt64)
	maxInt64  = big.NewInt(math.MaxInt64)
)

func integerForm(r *schema.Range) intForm {
	if r == nil || r.Extensible || r.Lower == nil {
		return intForm{signed: true}
	}
	if r.Lower.Sign() >= 0 {
		if r.Upper == nil || r.Upper.Cmp(maxUint64) > 0 {
			return intForm{}
		}
		for _, w := range []int{1, 2, 4, 8} {
			if r.Upper.BitLen() <= 8*w {
				return intForm{width: w}
			}
		}
	}
	if r.Upper == nil || r.Lower.Cmp(minInt64) < 0 || r.Upper.Cmp(maxInt64) > 0 {
		return intForm{signed: true}
	}
	for _, w := range []int{1, 2, 4, 8} {
		if len(common.SignedBytes(r.Lower)) <= w && len(common.SignedBytes(r.Upper)) <= w {
			return intForm{width: w, signed: true}
		}
	}
	return intForm{signed: true}
}

// fixedSize returns the character count of a fixed-size string type.
func fixedSize(t *schema.CharString) (int, bool) {
	if t.StringKind == schema.UTF8String || t.Size == nil || t.Size.Extensible || !t.Size.Fixed() {
		return 0, false
	}
	if !t.Size.Lower.IsInt64() {
		return 0, false
	}
	return int(t.Size.Lower.Int64()), true
}

type encoder struct {
	buf  []byte
	walk *codec.Walk
}

func (e *encoder) fail(err error) error {
	var ee *codec.EncodeError
	if errors.As(err, &ee) {
		return err
	}
	return &codec.EncodeError{Path: e.walk.Path(), Err: err}
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
		return e.integer(integerForm(tt.Range), i)
	case *schema.Boolean:
		b, err := codec.AsBoolean(v)
		if err != nil {
			return e.fail(err)
		}
		if b {
			e.buf = append(e.buf, 0xff)
		} else {
			e.buf = append(e.buf, 0x00)
		}
		return nil
	case *schema.CharString:
		s, err := codec.AsText(tt, v, true)
		if err != nil {
			return e.fail(err)
		}
		if _, fixed := fixedSize(tt); !fixed {
			e.length(len(s))
		}
		e.buf = append(e.buf, s...)
		return nil
	case *schema.Sequence:
		return e.sequence(tt, v)
	}
	return e.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

func (e *encoder) integer(form intForm, i *big.Int) error {
	var b []byte
	var err error
	switch {
	case form.width > 0 && form.signed:
		b, err = common.FixedSigned(i, form.width)
	case form.width > 0:
		b, err = common.FixedUnsigned(i, form.width)
	case form.signed:
		b = common.SignedBytes(i)
		e.length(len(b))
	default:
		b = common.UnsignedBytes(i)
		e.length(len(b))
	}
	if err != nil {
		return e.fail(fmt.Errorf("%w: %v", codec.ErrOutOfRange, err))
	}
	e.buf = append(e.buf, b...)
	return nil
}

// length writes a length determinant: one octet below 128, otherwise 0x80
// plus the octet count followed by the length octets.
func (e *encoder) length(n int) {
	if n < 0x80 {
		e.buf = append(e.buf, byte(n))
		return
	}
	b := common.UnsignedBytes(big.NewInt(int64(n)))
	e.buf = append(e.buf, 0x80|byte(len(b)))
	e.buf = append(e.buf, b...)
}

// sequence writes the preamble, the extension bit and one presence bit per
// OPTIONAL component padded to whole octets, then the present components.
func (e *encoder) sequence(seq *schema.Sequence, v value.Value) error {
	if err := codec.CheckStructure(seq, v); err != nil {
		return e.fail(err)
	}
	var pre common.BitWriter
	if seq.Extensible {
		pre.WriteBit(false)
	}
	for _, f := range seq.Fields {
		if f.Optional {
			_, present := v.Get(f.Name)
			pre.WriteBit(present)
		}
	}
	e.buf = append(e.buf, pre.Bytes()...)
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

type decoder struct {
	data []byte
	pos  int
	walk *codec.Walk
}

func (d *decoder) fail(err error) error {
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &codec.DecodeError{Format: "oer", Path: d.walk.Path(), Offset: d.pos, Err: err}
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > len(d.data)-d.pos {
		return nil, d.fail(codec.ErrTruncated)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) length() (int, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	if b[0] < 0x80 {
		return int(b[0]), nil
	}
	count := int(b[0] & 0x7f)
	if count == 0 {
		return 0, d.fail(fmt.Errorf("%w: empty long form", codec.ErrInvalidLength))
	}
	octets, err := d.take(count)
	if err != nil {
		return 0, err
	}
	u := new(big.Int).SetBytes(octets)
	if !u.IsUint64() {
		return 0, d.fail(fmt.Errorf("%w: length does not fit 64 bits", codec.ErrInvalidLength))
	}
	n, err := safecast.Convert[int](u.Uint64())
	if err != nil {
		return 0, d.fail(fmt.Errorf("%w: %v", codec.ErrInvalidLength, err))
	}
	if n > len(d.data)-d.pos {
		return 0, d.fail(fmt.Errorf("%w: length %d exceeds the %d remaining octets", codec.ErrTruncated, n, len(d.data)-d.pos))
	}
	return n, nil
}

func (d *decoder) decode(t schema.Type) (value.Value, error) {
	switch tt := t.(type) {
	case *schema.Reference:
		return d.decode(tt.Def.Type)
	case *schema.Tagged:
		return d.decode(tt.Type)
	case *schema.Integer:
		i, err := d.integer(integerForm(tt.Range))
		if err != nil {
			return value.Value{}, err
		}
		if !tt.Range.Admits(i) {
			return value.Value{}, d.fail(fmt.Errorf("%w: %s not in %s", codec.ErrOutOfRange, i, tt.Range))
		}
		return value.BigInt(i), nil
	case *schema.Boolean:
		b, err := d.take(1)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(b[0] != 0), nil
	case *schema.CharString:
		return d.charString(tt)
	case *schema.Sequence:
		return d.sequence(tt)
	}
	return value.Value{}, d.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

func (d *decoder) integer(form intForm) (*big.Int, error) {
	n := form.width
	if n == 0 {
		var err error
		if n, err = d.length(); err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, d.fail(fmt.Errorf("%w: empty integer", codec.ErrInvalidLength))
		}
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	if form.signed {
		return common.FromSigned(b), nil
	}
	return new(big.Int).SetBytes(b), nil
}

func (d *decoder) charString(t *schema.CharString) (value.Value, error) {
	n, fixed := fixedSize(t)
	if !fixed {
		var err error
		if n, err = d.length(); err != nil {
			return value.Value{}, err
		}
	}
	start := d.pos
	b, err := d.take(n)
	if err != nil {
		return value.Value{}, err
	}
	if t.StringKind == schema.UTF8String && !utf8.Valid(b) {
		d.pos = start
		return value.Value{}, d.fail(fmt.Errorf("%w: malformed UTF-8", codec.ErrInvalidCharacter))
	}
	s := string(b)
	if err := t.StringKind.Validate(s); err != nil {
		var ce *schema.CharError
		if errors.As(err, &ce) {
			d.pos = start + ce.Offset
		}
		return value.Value{}, d.fail(fmt.Errorf("%w: %v", codec.ErrInvalidCharacter, err))
	}
	if count := codec.CharCount(t.StringKind, s); !t.Size.Admits(big.NewInt(int64(count))) {
		d.pos = start
		return value.Value{}, d.fail(fmt.Errorf("%w: length %d not in SIZE (%s)", codec.ErrOutOfRange, count, t.Size))
	}
	return value.Text(s), nil
}

func (d *decoder) sequence(seq *schema.Sequence) (value.Value, error) {
	bitCount := 0
	if seq.Extensible {
		bitCount++
	}
	for _, f := range seq.Fields {
		if f.Optional {
			bitCount++
		}
	}
	pre, err := d.take((bitCount + 7) / 8)
	if err != nil {
		return value.Value{}, err
	}
	r := common.NewBitReader(pre)
	if seq.Extensible {
		if ext, _ := r.ReadBit(); ext {
			return value.Value{}, d.fail(fmt.Errorf("%w: extension additions", codec.ErrUnsupported))
		}
	}
	fields := make([]value.Field, 0, len(seq.Fields))
	for _, f := range seq.Fields {
		if f.Optional {
			if present, _ := r.ReadBit(); !present {
				continue
			}
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
