// Package ber implements the tag-length-value rule sets of X.690: BER and
// its canonical subset DER. Both share one encoder and one decoder; the
// Canonical option turns every BER leniency into a decode error.
package ber

import (
	"errors"

	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

// Universal tag numbers of the supported types.
const (
	TagBoolean         = schema.UniversalBoolean
	TagInteger         = schema.UniversalInteger
	TagOctetString     = schema.UniversalOctetString
	TagSequence        = schema.UniversalSequence
	TagUTF8String      = schema.UniversalUTF8String
	TagNumericString   = schema.UniversalNumericString
	TagPrintableString = schema.UniversalPrintableString
	TagIA5String       = schema.UniversalIA5String
	TagVisibleString   = schema.UniversalVisibleString
)

const (
	classShift      = 6
	constructedFlag = 0x20
	highTagMarker   = 0x1f
	indefinite      = 0x80
)

// Options configures a RuleSet.
type Options struct {
	// Canonical selects DER: decoding rejects non-minimal lengths,
	// indefinite lengths, constructed strings, non-minimal integers and
	// booleans other than 0x00 and 0xFF.
	Canonical bool
	MaxDepth  int
}

// RuleSet encodes and decodes BER or DER.
type RuleSet struct {
	opts Options
}

var _ codec.RuleSet = (*RuleSet)(nil)

// New returns a BER rule set, or DER when opts.Canonical is set.
func New(opts Options) *RuleSet {
	return &RuleSet{opts: opts}
}

// Name returns "der" for the canonical variant and "ber" otherwise.
func (r *RuleSet) Name() string {
	if r.opts.Canonical {
		return "der"
	}
	return "ber"
}

// Encode returns the definite-length, minimal encoding of v. BER and DER
// produce identical output.
func (r *RuleSet) Encode(t schema.Type, v value.Value) ([]byte, error) {
	e := &encoder{walk: codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth())}
	out, err := e.encode(t, v)
	if err != nil {
		var ee *codec.EncodeError
		if errors.As(err, &ee) {
			ee.Format = r.Name()
			return nil, ee
		}
		return nil, &codec.EncodeError{Format: r.Name(), Path: e.walk.Path(), Err: err}
	}
	return out, nil
}

// Decode reads one element of type t from the start of data.
func (r *RuleSet) Decode(t schema.Type, data []byte) (value.Value, int, error) {
	d := &decoder{
		data:      data,
		canonical: r.opts.Canonical,
		format:    r.Name(),
		walk:      codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth()),
	}
	v, n, err := d.element(t, 0, len(data))
	if err != nil {
		return value.Value{}, 0, err
	}
	return v, n, nil
}

// identifier is the class, form and number of a tag.
type identifier struct {
	class       schema.Class
	constructed bool
	number      int
}

// outerTag returns the tag an element of type t carries on the wire.
func outerTag(t schema.Type) identifier {
	tag, ok := schema.OuterTag(t)
	if !ok {
		return identifier{number: -1}
	}
	_, seq := schema.Resolve(t).(*schema.Sequence)
	return identifier{class: tag.Class, number: tag.Number, constructed: seq}
}
