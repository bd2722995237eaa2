// Package per implements the packed encoding rules of X.691 in both the
// ALIGNED (PER) and UNALIGNED (UPER) variants.
//
// Tags play no part in PER; tagged types encode as their inner type. The
// encoding is not self-describing, so OPTIONAL components are announced by
// a presence bitmap ahead of the components.
package per

import (
	"errors"
	"math/bits"

	"github.com/rawbytedev/asnkit/internal/common"
	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

const (
	// fragment is the unit of length fragmentation, 16K items.
	fragment = 16384
	// maxFragments is the number of fragments one determinant may announce.
	maxFragments = 4
	// smallLength is the first length needing the two-octet determinant.
	smallLength = 128
)

// Options configures a RuleSet.
type Options struct {
	// Aligned selects the ALIGNED variant, which pads to octet boundaries
	// before most octet-sized fields.
	Aligned  bool
	MaxDepth int
}

// RuleSet encodes and decodes PER or UPER.
type RuleSet struct {
	opts Options
}

var _ codec.RuleSet = (*RuleSet)(nil)

// New returns a UPER rule set, or PER when opts.Aligned is set.
func New(opts Options) *RuleSet {
	return &RuleSet{opts: opts}
}

// Name returns "per" for the aligned variant and "uper" otherwise.
func (r *RuleSet) Name() string {
	if r.opts.Aligned {
		return "per"
	}
	return "uper"
}

// Encode returns the complete encoding of v, padded to a whole octet. An
// encoding with no bits at all is one zero octet.
func (r *RuleSet) Encode(t schema.Type, v value.Value) ([]byte, error) {
	e := &encoder{
		w:       &common.BitWriter{},
		aligned: r.opts.Aligned,
		walk:    codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth()),
	}
	if err := e.encode(t, v); err != nil {
		var ee *codec.EncodeError
		if errors.As(err, &ee) {
			ee.Format = r.Name()
			return nil, ee
		}
		return nil, &codec.EncodeError{Format: r.Name(), Path: e.walk.Path(), Err: err}
	}
	out := e.w.Bytes()
	if len(out) == 0 {
		return []byte{0}, nil
	}
	return out, nil
}

// Decode reads one value of type t from the start of data.
func (r *RuleSet) Decode(t schema.Type, data []byte) (value.Value, int, error) {
	d := &decoder{
		r:       common.NewBitReader(data),
		aligned: r.opts.Aligned,
		format:  r.Name(),
		walk:    codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth()),
	}
	v, err := d.decode(t)
	if err != nil {
		return value.Value{}, 0, err
	}
	n := d.r.Consumed()
	if n == 0 {
		if len(data) == 0 {
			return value.Value{}, 0, d.fail(codec.ErrTruncated)
		}
		n = 1
	}
	return v, n, nil
}

// charset describes how a known-multiplier string kind packs characters.
type charset struct {
	alphabet string
	width    int
	indexed  bool
}

var charsets = map[bool]map[schema.StringKind]charset{
	false: newCharsets(false),
	true:  newCharsets(true),
}

func newCharsets(aligned bool) map[schema.StringKind]charset {
	out := make(map[schema.StringKind]charset)
	for _, k := range []schema.StringKind{schema.IA5String, schema.VisibleString, schema.PrintableString, schema.NumericString} {
		a := k.Alphabet()
		width := bits.Len(uint(len(a) - 1))
		if aligned {
			p := 1
			for p < width {
				p <<= 1
			}
			width = p
		}
		out[k] = charset{
			alphabet: a,
			width:    width,
			indexed:  int(a[len(a)-1]) >= 1<<width,
		}
	}
	return out
}

// sizeBounds returns the PER-visible bounds of a SIZE constraint: lower
// defaults to zero and ub is -1 when there is no upper bound below 64K.
func sizeBounds(r *schema.Range) (lb, ub int) {
	if r == nil {
		return 0, -1
	}
	if r.Lower != nil && r.Lower.IsInt64() {
		lb = int(r.Lower.Int64())
	}
	ub = -1
	if r.Upper != nil && r.Upper.IsInt64() && r.Upper.Int64() < 64*1024 {
		ub = int(r.Upper.Int64())
	}
	return lb, ub
}
