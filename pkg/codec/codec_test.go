package codec

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

func TestWalk(t *testing.T) {
	w := NewWalk("Question", 2)
	require.Equal(t, "Question", w.Path())
	require.NoError(t, w.Enter("inner"))
	require.NoError(t, w.Enter("id"))
	require.Equal(t, "Question.inner.id", w.Path())
	require.ErrorIs(t, w.Enter("deeper"), ErrDepthExceeded)
	w.Leave()
	require.Equal(t, "Question.inner", w.Path())

	require.Equal(t, "", NewWalk("", 1).Path())
	require.Equal(t, DefaultMaxDepth, Options{}.Depth())
	require.Equal(t, 3, Options{MaxDepth: 3}.Depth())
}

func TestTypeName(t *testing.T) {
	require.Equal(t, "Question", TypeName(&schema.Reference{Name: "Question"}))
	require.Equal(t, "BOOLEAN", TypeName(&schema.Boolean{}))
}

func TestAsInteger(t *testing.T) {
	octet := &schema.Integer{Range: schema.NewRange(0, 255)}
	i, err := AsInteger(octet, value.Int(7), true)
	require.NoError(t, err)
	require.Equal(t, int64(7), i.Int64())

	_, err = AsInteger(octet, value.Int(256), true)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = AsInteger(octet, value.Int(256), false)
	require.NoError(t, err, "range checks can be left to the rule set")
	_, err = AsInteger(octet, value.Bool(true), true)
	require.ErrorIs(t, err, ErrTypeMismatch)

	grow := &schema.Integer{Range: &schema.Range{Lower: big.NewInt(0), Upper: big.NewInt(9), Extensible: true}}
	_, err = AsInteger(grow, value.Int(1000), true)
	require.NoError(t, err, "extensible ranges admit any value")
}

func TestAsText(t *testing.T) {
	code := &schema.CharString{StringKind: schema.PrintableString, Size: schema.NewRange(1, 4)}
	s, err := AsText(code, value.Text("AB12"), true)
	require.NoError(t, err)
	require.Equal(t, "AB12", s)

	_, err = AsText(code, value.Text("ABCDE"), true)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = AsText(code, value.Text("a@b"), true)
	require.ErrorIs(t, err, ErrInvalidCharacter)
	_, err = AsText(code, value.Int(1), true)
	require.ErrorIs(t, err, ErrTypeMismatch)

	name := &schema.CharString{StringKind: schema.UTF8String, Size: schema.NewRange(0, 3)}
	_, err = AsText(name, value.Text("日本語"), true)
	require.NoError(t, err, "UTF8String sizes count characters")
	require.Equal(t, 3, CharCount(schema.UTF8String, "日本語"))
	require.Equal(t, 9, CharCount(schema.IA5String, "日本語"))
}

func TestCheckStructure(t *testing.T) {
	seq := &schema.Sequence{Fields: []schema.Field{
		{Name: "id", Type: &schema.Integer{}},
		{Name: "note", Type: &schema.Boolean{}, Optional: true},
	}}
	require.NoError(t, CheckStructure(seq, value.Struct(value.F("id", value.Int(1)))))
	require.ErrorIs(t, CheckStructure(seq, value.Struct()), ErrMissingField)
	require.ErrorIs(t, CheckStructure(seq, value.Struct(value.F("id", value.Int(1)), value.F("x", value.Int(2)))), ErrUnknownField)
	require.ErrorIs(t, CheckStructure(seq, value.Int(1)), ErrTypeMismatch)
}

func TestErrorStrings(t *testing.T) {
	enc := &EncodeError{Format: "ber", Path: "Question.id", Err: ErrOutOfRange}
	require.Equal(t, "ber: encode Question.id: value out of range", enc.Error())
	require.True(t, errors.Is(enc, ErrOutOfRange))
	require.Equal(t, "ber: encode: value out of range", (&EncodeError{Format: "ber", Err: ErrOutOfRange}).Error())

	dec := &DecodeError{Format: "uper", Path: "Question", Offset: 3, Err: ErrTruncated}
	require.Equal(t, "uper: decode Question at offset 3: truncated input", dec.Error())
	require.True(t, errors.Is(dec, ErrTruncated))

	trail := &TrailingDataError{Format: "der", Consumed: 16, Total: 18}
	require.Equal(t, "der: 2 trailing bytes after value (consumed 16 of 18)", trail.Error())
}
