// Package xer implements the basic XML encoding rules of X.693.
//
// A value of a named type becomes an element of that name; SEQUENCE
// components become child elements named after the component. Booleans
// are the empty elements <true/> and <false/>, and control characters of
// the restricted string types are written as empty elements such as <bel/>.
package xer

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

// Options configures a RuleSet.
type Options struct {
	MaxDepth int
}

// RuleSet encodes and decodes XER.
type RuleSet struct {
	opts Options
}

var _ codec.RuleSet = (*RuleSet)(nil)

// New returns an XER rule set.
func New(opts Options) *RuleSet {
	return &RuleSet{opts: opts}
}

// Name returns "xer".
func (*RuleSet) Name() string { return "xer" }

// controlNames are the element names of the C0 control characters. Tab,
// line feed and carriage return are written as characters.
var controlNames = [32]string{
	"nul", "soh", "stx", "etx", "eot", "enq", "ack", "bel",
	"bs", "", "", "vt", "ff", "", "so", "si",
	"dle", "dc1", "dc2", "dc3", "dc4", "nak", "syn", "etb",
	"can", "em", "sub", "esc", "is4", "is3", "is2", "is1",
}

const delName = "del"

var controlChars = func() map[string]byte {
	m := map[string]byte{delName: 0x7f}
	for c, name := range controlNames {
		if name != "" {
			m[name] = byte(c)
		}
	}
	return m
}()

// elementName returns the name of the outermost element for t: the type
// reference name, or the XML name of the builtin type.
func elementName(t schema.Type) string {
	if ref, ok := t.(*schema.Reference); ok {
		return ref.Name
	}
	switch tt := schema.Underlying(t).(type) {
	case *schema.Integer:
		return "INTEGER"
	case *schema.Boolean:
		return "BOOLEAN"
	case *schema.CharString:
		return tt.StringKind.String()
	case *schema.Sequence:
		return "SEQUENCE"
	}
	return "VALUE"
}

// Encode returns the XML element for v without a declaration or
// indentation.
func (r *RuleSet) Encode(t schema.Type, v value.Value) ([]byte, error) {
	e := &encoder{walk: codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth())}
	if err := e.element(elementName(t), t, v); err != nil {
		var ee *codec.EncodeError
		if !errors.As(err, &ee) {
			ee = &codec.EncodeError{Path: e.walk.Path(), Err: err}
		}
		ee.Format = r.Name()
		return nil, ee
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf  bytes.Buffer
	walk *codec.Walk
}

func (e *encoder) fail(err error) error {
	var ee *codec.EncodeError
	if errors.As(err, &ee) {
		return err
	}
	return &codec.EncodeError{Path: e.walk.Path(), Err: err}
}

func (e *encoder) element(name string, t schema.Type, v value.Value) error {
	e.buf.WriteByte('<')
	e.buf.WriteString(name)
	e.buf.WriteByte('>')
	if err := e.content(t, v); err != nil {
		return err
	}
	e.buf.WriteString("</")
	e.buf.WriteString(name)
	e.buf.WriteByte('>')
	return nil
}

func (e *encoder) content(t schema.Type, v value.Value) error {
	switch tt := schema.Underlying(t).(type) {
	case *schema.Integer:
		i, err := codec.AsInteger(tt, v, true)
		if err != nil {
			return e.fail(err)
		}
		e.buf.WriteString(i.String())
	case *schema.Boolean:
		b, err := codec.AsBoolean(v)
		if err != nil {
			return e.fail(err)
		}
		if b {
			e.buf.WriteString("<true/>")
		} else {
			e.buf.WriteString("<false/>")
		}
	case *schema.CharString:
		s, err := codec.AsText(tt, v, true)
		if err != nil {
			return e.fail(err)
		}
		if err := e.text(s); err != nil {
			return e.fail(err)
		}
	case *schema.Sequence:
		if err := codec.CheckStructure(tt, v); err != nil {
			return e.fail(err)
		}
		for _, f := range tt.Fields {
			fv, ok := v.Get(f.Name)
			if !ok {
				continue
			}
			if err := e.walk.Enter(f.Name); err != nil {
				return e.fail(err)
			}
			if err := e.element(f.Name, f.Type, fv); err != nil {
				return err
			}
			e.walk.Leave()
		}
	default:
		return e.fail(fmt.Errorf("%w: %s", codec.ErrUnsupported, t))
	}
	return nil
}

// text escapes the markup characters and writes control characters as
// empty elements. Carriage returns use a character reference so that XML
// line-end normalization keeps them. Characters outside the XML 1.0 Char
// production have no representation and are refused.
func (e *encoder) text(s string) error {
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, n := utf8.DecodeRuneInString(s[i:])
			if !xmlChar(r) || (r == utf8.RuneError && n == 1) {
				return fmt.Errorf("%w: U+%04X at byte %d cannot be written in XML", codec.ErrInvalidCharacter, r, i)
			}
			e.buf.WriteString(s[i : i+n])
			i += n
			continue
		}
		switch {
		case c == '&':
			e.buf.WriteString("&amp;")
		case c == '<':
			e.buf.WriteString("&lt;")
		case c == '>':
			e.buf.WriteString("&gt;")
		case c == '\r':
			e.buf.WriteString("&#13;")
		case c < 0x20 && controlNames[c] != "":
			e.buf.WriteString("<" + controlNames[c] + "/>")
		case c == 0x7f:
			e.buf.WriteString("<" + delName + "/>")
		default:
			e.buf.WriteByte(c)
		}
		i++
	}
	return nil
}

// xmlChar reports whether r is a Char of XML 1.0 above the C0 range.
func xmlChar(r rune) bool {
	switch {
	case r < 0xd800:
		return true
	case r < 0xe000:
		return false
	case r <= 0xfffd:
		return true
	}
	return r >= 0x10000 && r <= utf8.MaxRune
}

// Decode reads one element of type t. Leading whitespace, comments and an
// XML declaration are skipped, and whitespace after the element counts as
// consumed.
func (r *RuleSet) Decode(t schema.Type, data []byte) (value.Value, int, error) {
	x := xml.NewDecoder(bytes.NewReader(data))
	x.Strict = true
	d := &decoder{x: x, walk: codec.NewWalk(codec.TypeName(t), codec.Options{MaxDepth: r.opts.MaxDepth}.Depth())}
	start, err := d.start()
	if err != nil {
		return value.Value{}, 0, err
	}
	if name := elementName(t); start.Name.Local != name {
		return value.Value{}, 0, d.fail(fmt.Errorf("%w: want <%s>, got <%s>", codec.ErrInvalidTag, name, start.Name.Local))
	}
	v, err := d.content(t)
	if err != nil {
		return value.Value{}, 0, err
	}
	n := int(x.InputOffset())
	for n < len(data) && isSpace(data[n]) {
		n++
	}
	return v, n, nil
}

// isSpace matches the XML S production.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

type decoder struct {
	x    *xml.Decoder
	walk *codec.Walk
}

func (d *decoder) fail(err error) error {
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &codec.DecodeError{Format: "xer", Path: d.walk.Path(), Offset: int(d.x.InputOffset()), Err: err}
}

// token returns the next token, mapping the end of input and XML syntax
// errors onto the codec sentinels.
func (d *decoder) token() (xml.Token, error) {
	tok, err := d.x.Token()
	if err == nil {
		return tok, nil
	}
	var se *xml.SyntaxError
	switch {
	case errors.Is(err, io.EOF), errors.As(err, &se) && strings.Contains(se.Msg, "unexpected EOF"):
		return nil, d.fail(codec.ErrTruncated)
	default:
		return nil, d.fail(fmt.Errorf("%w: %v", codec.ErrInvalidValue, err))
	}
}

// start skips to the next start element. Only whitespace, comments and
// processing instructions may come first.
func (d *decoder) start() (xml.StartElement, error) {
	for {
		tok, err := d.token()
		if err != nil {
			return xml.StartElement{}, err
		}
		switch tt := tok.(type) {
		case xml.StartElement:
			return tt, nil
		case xml.CharData:
			if len(bytes.TrimSpace(tt)) != 0 {
				return xml.StartElement{}, d.fail(fmt.Errorf("%w: unexpected text %q", codec.ErrInvalidValue, string(tt)))
			}
		case xml.EndElement:
			return xml.StartElement{}, d.fail(fmt.Errorf("%w: unexpected </%s>", codec.ErrInvalidTag, tt.Name.Local))
		}
	}
}

// content decodes everything up to and including the end tag of the
// element just started.
func (d *decoder) content(t schema.Type) (value.Value, error) {
	switch tt := schema.Underlying(t).(type) {
	case *schema.Integer:
		s, err := d.text(nil)
		if err != nil {
			return value.Value{}, err
		}
		i, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
		if !ok {
			return value.Value{}, d.fail(fmt.Errorf("%w: integer %q", codec.ErrInvalidValue, s))
		}
		if !tt.Range.Admits(i) {
			return value.Value{}, d.fail(fmt.Errorf("%w: %s not in %s", codec.ErrOutOfRange, i, tt.Range))
		}
		return value.BigInt(i), nil

	case *schema.Boolean:
		start, err := d.start()
		if err != nil {
			return value.Value{}, err
		}
		var b bool
		switch start.Name.Local {
		case "true":
			b = true
		case "false":
		default:
			return value.Value{}, d.fail(fmt.Errorf("%w: <%s> is not a boolean", codec.ErrInvalidValue, start.Name.Local))
		}
		if err := d.end(); err != nil {
			return value.Value{}, err
		}
		if err := d.end(); err != nil {
			return value.Value{}, err
		}
		return value.Bool(b), nil

	case *schema.CharString:
		s, err := d.text(controlChars)
		if err != nil {
			return value.Value{}, err
		}
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

// end expects the end tag of the current element, allowing whitespace.
func (d *decoder) end() error {
	for {
		tok, err := d.token()
		if err != nil {
			return err
		}
		switch tt := tok.(type) {
		case xml.EndElement:
			return nil
		case xml.CharData:
			if len(bytes.TrimSpace(tt)) != 0 {
				return d.fail(fmt.Errorf("%w: unexpected text %q", codec.ErrInvalidValue, string(tt)))
			}
		case xml.StartElement:
			return d.fail(fmt.Errorf("%w: unexpected <%s>", codec.ErrInvalidTag, tt.Name.Local))
		}
	}
}

// text gathers character data up to the end tag. Empty child elements
// named in controls stand for one character each.
func (d *decoder) text(controls map[string]byte) (string, error) {
	var sb strings.Builder
	for {
		tok, err := d.token()
		if err != nil {
			return "", err
		}
		switch tt := tok.(type) {
		case xml.CharData:
			sb.Write(tt)
		case xml.EndElement:
			return sb.String(), nil
		case xml.StartElement:
			c, ok := controls[tt.Name.Local]
			if !ok {
				return "", d.fail(fmt.Errorf("%w: unexpected <%s> in text", codec.ErrInvalidTag, tt.Name.Local))
			}
			if err := d.end(); err != nil {
				return "", err
			}
			sb.WriteByte(c)
		}
	}
}

// sequence matches child elements against the components in declaration
// order. Unknown elements are skipped when the SEQUENCE is extensible.
func (d *decoder) sequence(seq *schema.Sequence) (value.Value, error) {
	fields := make([]value.Field, 0, len(seq.Fields))
	next := 0
	for {
		tok, err := d.token()
		if err != nil {
			return value.Value{}, err
		}
		switch tt := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(tt)) != 0 {
				return value.Value{}, d.fail(fmt.Errorf("%w: unexpected text %q", codec.ErrInvalidValue, string(tt)))
			}
		case xml.EndElement:
			for _, f := range seq.Fields[next:] {
				if !f.Optional {
					return value.Value{}, d.fail(fmt.Errorf("%w: %s", codec.ErrMissingField, f.Name))
				}
			}
			return value.Struct(fields...), nil
		case xml.StartElement:
			idx := -1
			for i := next; i < len(seq.Fields); i++ {
				if seq.Fields[i].Name == tt.Name.Local {
					idx = i
					break
				}
				if !seq.Fields[i].Optional {
					break
				}
			}
			if idx < 0 {
				if _, known := seq.Field(tt.Name.Local); known {
					if next < len(seq.Fields) && !seq.Fields[next].Optional {
						return value.Value{}, d.fail(fmt.Errorf("%w: %s", codec.ErrMissingField, seq.Fields[next].Name))
					}
					return value.Value{}, d.fail(fmt.Errorf("%w: <%s> out of order", codec.ErrInvalidTag, tt.Name.Local))
				}
				if !seq.Extensible {
					return value.Value{}, d.fail(fmt.Errorf("%w: <%s>", codec.ErrUnknownField, tt.Name.Local))
				}
				if err := d.skip(); err != nil {
					return value.Value{}, err
				}
				continue
			}
			f := seq.Fields[idx]
			if err := d.walk.Enter(f.Name); err != nil {
				return value.Value{}, d.fail(err)
			}
			fv, err := d.content(f.Type)
			if err != nil {
				return value.Value{}, err
			}
			d.walk.Leave()
			fields = append(fields, value.F(f.Name, fv))
			next = idx + 1
		}
	}
}

// skip consumes the rest of the element just started.
func (d *decoder) skip() error {
	depth := 1
	for depth > 0 {
		tok, err := d.token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}
