package ber

import (
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/ccoveille/go-safecast/v2"

	"github.com/rawbytedev/asnkit/internal/common"
	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

// maxTagNumber bounds high tag numbers so they fit an int on every platform.
const maxTagNumber = 1<<28 - 1

type decoder struct {
	data      []byte
	canonical bool
	format    string
	walk      *codec.Walk
}

// header is a parsed identifier and length. end is -1 for the indefinite
// form, whose contents run to an end-of-contents marker.
type header struct {
	identifier
	offset int // first identifier octet
	start  int // first contents octet
	end    int
}

func (h header) definite() bool { return h.end >= 0 }

func (d *decoder) fail(offset int, err error) error {
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &codec.DecodeError{Format: d.format, Path: d.walk.Path(), Offset: offset, Err: err}
}

// readHeader parses the identifier and length octets at pos. The element
// must end at or before limit.
func (d *decoder) readHeader(pos, limit int) (header, error) {
	h := header{offset: pos}
	if pos >= limit {
		return h, d.fail(pos, codec.ErrTruncated)
	}
	b := d.data[pos]
	h.class = schema.Class(b >> classShift)
	h.constructed = b&constructedFlag != 0
	h.number = int(b & highTagMarker)
	pos++

	if h.number == highTagMarker {
		if pos >= limit {
			return h, d.fail(pos, codec.ErrTruncated)
		}
		if d.data[pos] == 0x80 {
			return h, d.fail(pos, fmt.Errorf("%w: leading zero in tag number", codec.ErrInvalidTag))
		}
		n := 0
		for {
			if pos >= limit {
				return h, d.fail(pos, codec.ErrTruncated)
			}
			c := d.data[pos]
			pos++
			n = n<<7 | int(c&0x7f)
			if n > maxTagNumber {
				return h, d.fail(h.offset, fmt.Errorf("%w: tag number too large", codec.ErrInvalidTag))
			}
			if c&0x80 == 0 {
				break
			}
		}
		if n < highTagMarker && d.canonical {
			return h, d.fail(h.offset, fmt.Errorf("%w: high tag form for tag %d", codec.ErrNonCanonical, n))
		}
		h.number = n
	}

	if pos >= limit {
		return h, d.fail(pos, codec.ErrTruncated)
	}
	l := d.data[pos]
	lenOffset := pos
	pos++
	switch {
	case l < 0x80:
		h.start = pos
		h.end = pos + int(l)
	case l == indefinite:
		if !h.constructed {
			return h, d.fail(lenOffset, fmt.Errorf("%w: indefinite length on primitive element", codec.ErrInvalidLength))
		}
		if d.canonical {
			return h, d.fail(lenOffset, fmt.Errorf("%w: indefinite length", codec.ErrNonCanonical))
		}
		h.start = pos
		h.end = -1
		return h, nil
	case l == 0xff:
		return h, d.fail(lenOffset, fmt.Errorf("%w: reserved length octet", codec.ErrInvalidLength))
	default:
		count := int(l & 0x7f)
		if pos+count > limit {
			return h, d.fail(pos, codec.ErrTruncated)
		}
		octets := d.data[pos : pos+count]
		pos += count
		if d.canonical && octets[0] == 0 {
			return h, d.fail(lenOffset, fmt.Errorf("%w: length has leading zero octets", codec.ErrNonCanonical))
		}
		for len(octets) > 0 && octets[0] == 0 {
			octets = octets[1:]
		}
		if len(octets) > 8 {
			return h, d.fail(lenOffset, fmt.Errorf("%w: length does not fit 64 bits", codec.ErrInvalidLength))
		}
		var u uint64
		for _, c := range octets {
			u = u<<8 | uint64(c)
		}
		if d.canonical && u < 0x80 {
			return h, d.fail(lenOffset, fmt.Errorf("%w: long form for length %d", codec.ErrNonCanonical, u))
		}
		n, err := safecast.Convert[int](u)
		if err != nil {
			return h, d.fail(lenOffset, fmt.Errorf("%w: %v", codec.ErrInvalidLength, err))
		}
		h.start = pos
		if n > limit-pos {
			return h, d.fail(pos, fmt.Errorf("%w: length %d exceeds the %d available octets", codec.ErrTruncated, n, limit-pos))
		}
		h.end = pos + n
	}
	if h.end > limit {
		return h, d.fail(h.start, fmt.Errorf("%w: length %d exceeds the %d available octets", codec.ErrTruncated, h.end-h.start, limit-h.start))
	}
	return h, nil
}

// limit returns the bound children of h must respect.
func (h header) limit(outer int) int {
	if h.definite() {
		return h.end
	}
	return outer
}

// atEnd reports whether the contents of h are exhausted at pos, and the
// offset following the element when they are.
func (d *decoder) atEnd(h header, pos, outer int) (bool, int, error) {
	if h.definite() {
		return pos >= h.end, h.end, nil
	}
	if pos+1 < outer && d.data[pos] == 0 && d.data[pos+1] == 0 {
		return true, pos + 2, nil
	}
	if pos >= outer {
		return false, pos, d.fail(pos, fmt.Errorf("%w: missing end-of-contents", codec.ErrTruncated))
	}
	return false, pos, nil
}

// element decodes one element of type t at pos and returns the offset that
// follows it.
func (d *decoder) element(t schema.Type, pos, limit int) (value.Value, int, error) {
	h, err := d.readHeader(pos, limit)
	if err != nil {
		return value.Value{}, 0, err
	}
	want := outerTag(t)
	if h.class != want.class || h.number != want.number {
		return value.Value{}, 0, d.fail(pos, fmt.Errorf("%w: want [%s %d], got [%s %d]",
			codec.ErrInvalidTag, want.class, want.number, h.class, h.number))
	}
	return d.contents(t, h, limit)
}

// contents decodes the contents of h as type t. The identifier has already
// been matched.
func (d *decoder) contents(t schema.Type, h header, limit int) (value.Value, int, error) {
	switch tt := t.(type) {
	case *schema.Reference:
		return d.contents(tt.Def.Type, h, limit)

	case *schema.Tagged:
		if tt.Implicit {
			return d.contents(tt.Type, h, limit)
		}
		if !h.constructed {
			return value.Value{}, 0, d.fail(h.offset, fmt.Errorf("%w: explicit tag must be constructed", codec.ErrInvalidTag))
		}
		v, pos, err := d.element(tt.Type, h.start, h.limit(limit))
		if err != nil {
			return value.Value{}, 0, err
		}
		done, next, err := d.atEnd(h, pos, limit)
		if err != nil {
			return value.Value{}, 0, err
		}
		if !done {
			return value.Value{}, 0, d.fail(pos, fmt.Errorf("%w: extra element after explicitly tagged value", codec.ErrInvalidLength))
		}
		return v, next, nil

	case *schema.Integer:
		content, err := d.primitive(h)
		if err != nil {
			return value.Value{}, 0, err
		}
		if len(content) == 0 {
			return value.Value{}, 0, d.fail(h.start, fmt.Errorf("%w: empty integer", codec.ErrInvalidLength))
		}
		if d.canonical && len(content) > 1 &&
			(content[0] == 0x00 && content[1]&0x80 == 0 || content[0] == 0xff && content[1]&0x80 != 0) {
			return value.Value{}, 0, d.fail(h.start, fmt.Errorf("%w: integer has redundant leading octet", codec.ErrNonCanonical))
		}
		i := common.FromSigned(content)
		if !tt.Range.Admits(i) {
			return value.Value{}, 0, d.fail(h.start, fmt.Errorf("%w: %s not in %s", codec.ErrOutOfRange, i, tt.Range))
		}
		return value.BigInt(i), h.end, nil

	case *schema.Boolean:
		content, err := d.primitive(h)
		if err != nil {
			return value.Value{}, 0, err
		}
		if len(content) != 1 {
			return value.Value{}, 0, d.fail(h.start, fmt.Errorf("%w: boolean of %d octets", codec.ErrInvalidLength, len(content)))
		}
		if d.canonical && content[0] != 0x00 && content[0] != 0xff {
			return value.Value{}, 0, d.fail(h.start, fmt.Errorf("%w: boolean octet 0x%02x", codec.ErrNonCanonical, content[0]))
		}
		return value.Bool(content[0] != 0), h.end, nil

	case *schema.CharString:
		var raw []byte
		next := h.end
		if h.constructed {
			if d.canonical {
				return value.Value{}, 0, d.fail(h.offset, fmt.Errorf("%w: constructed string", codec.ErrNonCanonical))
			}
			var err error
			if raw, next, err = d.segments(h, limit, nil); err != nil {
				return value.Value{}, 0, err
			}
		} else {
			raw = d.data[h.start:h.end]
		}
		s, err := d.text(tt, raw, h.start)
		if err != nil {
			return value.Value{}, 0, err
		}
		return value.Text(s), next, nil

	case *schema.Sequence:
		if !h.constructed {
			return value.Value{}, 0, d.fail(h.offset, fmt.Errorf("%w: SEQUENCE must be constructed", codec.ErrInvalidTag))
		}
		return d.sequence(tt, h, limit)
	}
	return value.Value{}, 0, d.fail(h.offset, fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
}

func (d *decoder) primitive(h header) ([]byte, error) {
	if h.constructed {
		return nil, d.fail(h.offset, fmt.Errorf("%w: want primitive encoding", codec.ErrInvalidTag))
	}
	return d.data[h.start:h.end], nil
}

// segments gathers the octets of a constructed string. Each segment is an
// OCTET STRING, itself primitive or constructed.
func (d *decoder) segments(h header, limit int, dst []byte) ([]byte, int, error) {
	if err := d.walk.Enter("segment"); err != nil {
		return nil, 0, d.fail(h.offset, err)
	}
	defer d.walk.Leave()
	pos := h.start
	for {
		done, next, err := d.atEnd(h, pos, limit)
		if err != nil {
			return nil, 0, err
		}
		if done {
			return dst, next, nil
		}
		seg, err := d.readHeader(pos, h.limit(limit))
		if err != nil {
			return nil, 0, err
		}
		if seg.class != schema.ClassUniversal || seg.number != TagOctetString {
			return nil, 0, d.fail(pos, fmt.Errorf("%w: string segment must be OCTET STRING", codec.ErrInvalidTag))
		}
		if seg.constructed {
			if dst, pos, err = d.segments(seg, h.limit(limit), dst); err != nil {
				return nil, 0, err
			}
			continue
		}
		dst = append(dst, d.data[seg.start:seg.end]...)
		pos = seg.end
	}
}

func (d *decoder) text(t *schema.CharString, raw []byte, offset int) (string, error) {
	if t.StringKind == schema.UTF8String && !utf8.Valid(raw) {
		return "", d.fail(offset, fmt.Errorf("%w: malformed UTF-8", codec.ErrInvalidCharacter))
	}
	s := string(raw)
	if err := t.StringKind.Validate(s); err != nil {
		var ce *schema.CharError
		if errors.As(err, &ce) {
			offset += ce.Offset
		}
		return "", d.fail(offset, fmt.Errorf("%w: %v", codec.ErrInvalidCharacter, err))
	}
	if t.Size != nil {
		n := codec.CharCount(t.StringKind, s)
		if !t.Size.Admits(big.NewInt(int64(n))) {
			return "", d.fail(offset, fmt.Errorf("%w: length %d not in SIZE (%s)", codec.ErrOutOfRange, n, t.Size))
		}
	}
	return s, nil
}

// sequence decodes the components of h in declaration order. A component
// whose tag does not match is taken as absent when it is OPTIONAL.
func (d *decoder) sequence(seq *schema.Sequence, h header, limit int) (value.Value, int, error) {
	inner := h.limit(limit)
	fields := make([]value.Field, 0, len(seq.Fields))
	pos := h.start
	for _, f := range seq.Fields {
		done, _, err := d.atEnd(h, pos, limit)
		if err != nil {
			return value.Value{}, 0, err
		}
		if !done {
			peek, err := d.readHeader(pos, inner)
			if err != nil {
				return value.Value{}, 0, err
			}
			want := outerTag(f.Type)
			done = peek.class != want.class || peek.number != want.number
		}
		if done {
			if f.Optional {
				continue
			}
			return value.Value{}, 0, d.fail(pos, fmt.Errorf("%w: %s", codec.ErrMissingField, f.Name))
		}
		if err := d.walk.Enter(f.Name); err != nil {
			return value.Value{}, 0, d.fail(pos, err)
		}
		fv, next, err := d.element(f.Type, pos, inner)
		if err != nil {
			return value.Value{}, 0, err
		}
		d.walk.Leave()
		fields = append(fields, value.F(f.Name, fv))
		pos = next
	}
	for {
		done, next, err := d.atEnd(h, pos, limit)
		if err != nil {
			return value.Value{}, 0, err
		}
		if done {
			return value.Struct(fields...), next, nil
		}
		if !seq.Extensible {
			return value.Value{}, 0, d.fail(pos, fmt.Errorf("%w: unexpected element in SEQUENCE", codec.ErrInvalidTag))
		}
		if pos, err = d.skip(pos, inner); err != nil {
			return value.Value{}, 0, err
		}
	}
}

// skip steps over one complete element of unknown type.
func (d *decoder) skip(pos, limit int) (int, error) {
	h, err := d.readHeader(pos, limit)
	if err != nil {
		return 0, err
	}
	if h.definite() {
		return h.end, nil
	}
	if err := d.walk.Enter("..."); err != nil {
		return 0, d.fail(pos, err)
	}
	defer d.walk.Leave()
	pos = h.start
	for {
		done, next, err := d.atEnd(h, pos, limit)
		if err != nil {
			return 0, err
		}
		if done {
			return next, nil
		}
		if pos, err = d.skip(pos, limit); err != nil {
			return 0, err
		}
	}
}
