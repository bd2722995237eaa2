// Package jer implements the JSON encoding rules of X.697.
//
// INTEGER values are JSON numbers of any magnitude, BOOLEAN values are JSON
// literals, character strings are JSON strings and a SEQUENCE is an object
// whose members are its present components in declaration order.
package jer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

// Options configures a RuleSet.
type Options struct {
	MaxDepth int
}

// RuleSet encodes and decodes JER.
type RuleSet struct {
	opts Options
}

var _ codec.RuleSet = (*RuleSet)(nil)

// New returns a JER rule set.
func New(opts Options) *RuleSet {
	return &RuleSet{opts: opts}
}

// Name returns "jer".
func (*RuleSet) Name() string { return "jer" }

// Encode returns compact JSON for v with no trailing newline.
func (r *RuleSet) Encode(t schema.Type, v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	e := &encoder{
		enc:  jsontext.NewEncoder(&buf),
		walk: codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth()),
	}
	if err := e.encode(t, v); err != nil {
		var ee *codec.EncodeError
		if !errors.As(err, &ee) {
			ee = &codec.EncodeError{Path: e.walk.Path(), Err: err}
		}
		ee.Format = r.Name()
		return nil, ee
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

type encoder struct {
	enc  *jsontext.Encoder
	walk *codec.Walk
}

func (e *encoder) fail(err error) error {
	var ee *codec.EncodeError
	if errors.As(err, &ee) {
		return err
	}
	return &codec.EncodeError{Path: e.walk.Path(), Err: err}
}

func (e *encoder) token(tok jsontext.Token) error {
	if err := e.enc.WriteToken(tok); err != nil {
		return e.fail(fmt.Errorf("%w: %v", codec.ErrInvalidValue, err))
	}
	return nil
}

func (e *encoder) encode(t schema.Type, v value.Value) error {
	switch tt := schema.Underlying(t).(type) {
	case *schema.Integer:
		i, err := codec.AsInteger(tt, v, true)
		if err != nil {
			return e.fail(err)
		}
		if err := e.enc.WriteValue(jsontext.Value(i.String())); err != nil {
			return e.fail(fmt.Errorf("%w: %v", codec.ErrInvalidValue, err))
		}
		return nil
	case *schema.Boolean:
		b, err := codec.AsBoolean(v)
		if err != nil {
			return e.fail(err)
		}
		return e.token(jsontext.Bool(b))
	case *schema.CharString:
		s, err := codec.AsText(tt, v, true)
		if err != nil {
			return e.fail(err)
		}
		return e.token(jsontext.String(s))
	case *schema.Sequence:
		if err := codec.CheckStructure(tt, v); err != nil {
			return e.fail(err)
		}
		if err := e.token(jsontext.BeginObject); err != nil {
			return err
		}
		for _, f := range tt.Fields {
			fv, ok := v.Get(f.Name)
			if !ok {
				continue
			}
			if err := e.walk.Enter(f.Name); err != nil {
				return e.fail(err)
			}
			if err := e.token(jsontext.String(f.Name)); err != nil {
				return err
			}
			if err := e.encode(f.Type, fv); err != nil {
				return err
			}
			e.walk.Leave()
		}
		return e.token(jsontext.EndObject)
	}
	return e.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

// Decode reads one JSON value of type t. Object members may appear in any
// order; members unknown to an extensible SEQUENCE are skipped.
func (r *RuleSet) Decode(t schema.Type, data []byte) (value.Value, int, error) {
	d := &decoder{
		dec:  jsontext.NewDecoder(bytes.NewReader(data)),
		walk: codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth()),
	}
	v, err := d.decode(t)
	if err != nil {
		return value.Value{}, 0, err
	}
	return v, int(d.dec.InputOffset()), nil
}

type decoder struct {
	dec  *jsontext.Decoder
	walk *codec.Walk
}

func (d *decoder) fail(err error) error {
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &codec.DecodeError{Format: "jer", Path: d.walk.Path(), Offset: int(d.dec.InputOffset()), Err: err}
}

// syntax maps a jsontext error onto the codec sentinels.
func (d *decoder) syntax(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return d.fail(codec.ErrTruncated)
	}
	return d.fail(fmt.Errorf("%w: %v", codec.ErrInvalidValue, err))
}

// expect checks the kind of the next token. A zero kind means the decoder
// hit an error, which the following read reports.
func (d *decoder) expect(want string, kinds ...jsontext.Kind) error {
	k := d.dec.PeekKind()
	for _, kind := range kinds {
		if k == kind {
			return nil
		}
	}
	if k == 0 {
		if _, err := d.dec.ReadToken(); err != nil {
			return d.syntax(err)
		}
	}
	return d.fail(fmt.Errorf("%w: want %s, got %s", codec.ErrInvalidValue, want, k))
}

func (d *decoder) decode(t schema.Type) (value.Value, error) {
	switch tt := schema.Underlying(t).(type) {
	case *schema.Integer:
		if err := d.expect("number", '0'); err != nil {
			return value.Value{}, err
		}
		raw, err := d.dec.ReadValue()
		if err != nil {
			return value.Value{}, d.syntax(err)
		}
		i, ok := new(big.Int).SetString(string(raw), 10)
		if !ok {
			return value.Value{}, d.fail(fmt.Errorf("%w: %s is not an integer", codec.ErrInvalidValue, raw))
		}
		if !tt.Range.Admits(i) {
			return value.Value{}, d.fail(fmt.Errorf("%w: %s not in %s", codec.ErrOutOfRange, i, tt.Range))
		}
		return value.BigInt(i), nil

	case *schema.Boolean:
		if err := d.expect("boolean", 't', 'f'); err != nil {
			return value.Value{}, err
		}
		tok, err := d.dec.ReadToken()
		if err != nil {
			return value.Value{}, d.syntax(err)
		}
		return value.Bool(tok.Bool()), nil

	case *schema.CharString:
		if err := d.expect("string", '"'); err != nil {
			return value.Value{}, err
		}
		tok, err := d.dec.ReadToken()
		if err != nil {
			return value.Value{}, d.syntax(err)
		}
		s := tok.String()
		if err := tt.StringKind.Validate(s); err != nil {
			return value.Value{}, d.fail(fmt.Errorf("%w: %v", codec.ErrInvalidCharacter, err))
		}
		if n := codec.CharCount(tt.StringKind, s); !tt.Size.Admits(big.NewInt(int64(n))) {
			return value.Value{}, d.fail(fmt.Errorf("%w: length %d not in SIZE (%s)", codec.ErrOutOfRange, n, tt.Size))
		}
		return value.Text(s), nil

	case *schema.Sequence:
		return d.sequence(tt)
	}
	return value.Value{}, d.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

func (d *decoder) sequence(seq *schema.Sequence) (value.Value, error) {
	if err := d.expect("object", '{'); err != nil {
		return value.Value{}, err
	}
	if _, err := d.dec.ReadToken(); err != nil {
		return value.Value{}, d.syntax(err)
	}
	got := make(map[string]value.Value, len(seq.Fields))
	for d.dec.PeekKind() != '}' {
		tok, err := d.dec.ReadToken()
		if err != nil {
			return value.Value{}, d.syntax(err)
		}
		name := tok.String()
		f, ok := seq.Field(name)
		if !ok {
			if !seq.Extensible {
				return value.Value{}, d.fail(fmt.Errorf("%w: %q", codec.ErrUnknownField, name))
			}
			if err := d.dec.SkipValue(); err != nil {
				return value.Value{}, d.syntax(err)
			}
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
		got[name] = fv
	}
	if _, err := d.dec.ReadToken(); err != nil {
		return value.Value{}, d.syntax(err)
	}

	fields := make([]value.Field, 0, len(got))
	for _, f := range seq.Fields {
		fv, ok := got[f.Name]
		if !ok {
			if !f.Optional {
				return value.Value{}, d.fail(fmt.Errorf("%w: %s", codec.ErrMissingField, f.Name))
			}
			continue
		}
		fields = append(fields, value.F(f.Name, fv))
	}
	return value.Struct(fields...), nil
}
