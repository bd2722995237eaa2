package oer

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/parser"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

const testSchema = `
Foo DEFINITIONS ::= BEGIN
    Question ::= SEQUENCE {
        id INTEGER,
        question IA5String
    }
    Small ::= INTEGER (0..255)
    Word ::= INTEGER (0..65535)
    Temp ::= INTEGER (-100..100)
    Big ::= INTEGER (0..100000)
    Huge ::= INTEGER (-1..4294967296)
    Pos ::= INTEGER (10..MAX)
    Count ::= INTEGER
    Grow ::= INTEGER (0..10, ...)
    Opt ::= SEQUENCE {
        a INTEGER OPTIONAL,
        b BOOLEAN
    }
    Ext ::= SEQUENCE {
        a BOOLEAN,
        ...
    }
    Empty ::= SEQUENCE {}
    Pin ::= NumericString (SIZE (3))
    Code ::= PrintableString (SIZE (1..4))
    Text ::= IA5String
    Name ::= UTF8String
END
`

func mustType(t testing.TB, name string) schema.Type {
	t.Helper()
	m, err := parser.Parse(testSchema)
	require.NoError(t, err)
	def, ok := m.Lookup(name)
	require.True(t, ok, "type %s", name)
	return &schema.Reference{Name: name, Def: def}
}

func requireValue(t testing.TB, want, got value.Value) {
	t.Helper()
	require.True(t, value.Equal(want, got), "want %s got %s", want, got)
}

func TestGolden(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		v    value.Value
		want string
	}{
		{"question", "Question", value.Struct(value.F("id", value.Int(1)), value.F("question", value.Text("Is 1+1=3?"))), "010109497320312b313d333f"},
		{"one octet unsigned", "Small", value.Int(200), "c8"},
		{"two octets unsigned", "Word", value.Int(1000), "03e8"},
		{"one octet signed", "Temp", value.Int(-5), "fb"},
		{"four octets unsigned", "Big", value.Int(70000), "00011170"},
		{"eight octets signed", "Huge", value.Int(-1), "ffffffffffffffff"},
		{"semi-constrained", "Pos", value.Int(300), "02012c"},
		{"unconstrained", "Count", value.Int(-1), "01ff"},
		{"extensible is unconstrained", "Grow", value.Int(5), "0105"},
		{"optional absent", "Opt", value.Struct(value.F("b", value.Bool(true))), "00ff"},
		{"optional present", "Opt", value.Struct(value.F("a", value.Int(5)), value.F("b", value.Bool(false))), "80010500"},
		{"extension bit", "Ext", value.Struct(value.F("a", value.Bool(true))), "00ff"},
		{"empty sequence", "Empty", value.Struct(), ""},
		{"fixed size string", "Pin", value.Text("123"), "313233"},
		{"sized string", "Code", value.Text("AB"), "024142"},
		{"utf8", "Name", value.Text("é"), "02c3a9"},
	}
	rs := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := mustType(t, tt.typ)
			data, err := rs.Encode(typ, tt.v)
			require.NoError(t, err)
			require.Equal(t, tt.want, hex.EncodeToString(data))

			got, n, err := rs.Decode(typ, data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			requireValue(t, tt.v, got)
		})
	}
}

func TestLongLength(t *testing.T) {
	typ := mustType(t, "Text")
	s := strings.Repeat("x", 300)
	data, err := New(Options{}).Encode(typ, value.Text(s))
	require.NoError(t, err)
	require.Equal(t, "82012c", hex.EncodeToString(data[:3]))
	got, n, err := New(Options{}).Decode(typ, data)
	require.NoError(t, err)
	require.Equal(t, 303, n)
	requireValue(t, value.Text(s), got)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		data string
		err  error
	}{
		{"truncated", "Question", "010109497320312b313d33", codec.ErrTruncated},
		{"truncated fixed integer", "Word", "03", codec.ErrTruncated},
		{"extension addition", "Ext", "80ff", codec.ErrUnsupported},
		{"empty integer", "Count", "00", codec.ErrInvalidLength},
		{"empty long form", "Text", "80", codec.ErrInvalidLength},
		{"out of range", "Temp", "7f", codec.ErrOutOfRange},
		{"bad character", "Pin", "31a033", codec.ErrInvalidCharacter},
		{"size violated", "Code", "00", codec.ErrOutOfRange},
		{"length beyond input", "Text", "8201ff41", codec.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.data)
			require.NoError(t, err)
			_, _, err = New(Options{}).Decode(mustType(t, tt.typ), data)
			require.ErrorIs(t, err, tt.err)
			var de *codec.DecodeError
			require.ErrorAs(t, err, &de)
			require.Equal(t, "oer", de.Format)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	rs := New(Options{})
	_, err := rs.Encode(mustType(t, "Temp"), value.Int(101))
	require.ErrorIs(t, err, codec.ErrOutOfRange)

	_, err = rs.Encode(mustType(t, "Pin"), value.Text("1234"))
	require.ErrorIs(t, err, codec.ErrOutOfRange)

	_, err = rs.Encode(mustType(t, "Opt"), value.Struct(value.F("b", value.Int(1))))
	require.ErrorIs(t, err, codec.ErrTypeMismatch)
	var ee *codec.EncodeError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "Opt.b", ee.Path)
}

func TestRoundTripProperty(t *testing.T) {
	typ := mustType(t, "Opt")
	rs := New(Options{})
	rapid.Check(t, func(t *rapid.T) {
		v := value.Struct(value.F("b", value.Bool(rapid.Bool().Draw(t, "b"))))
		if rapid.Bool().Draw(t, "present") {
			v = v.With("a", value.Int(rapid.Int64().Draw(t, "a")))
		}
		data, err := rs.Encode(typ, v)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, n, err := rs.Decode(typ, data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(data) || !value.Equal(v, got) {
			t.Fatalf("want %s got %s", v, got)
		}
	})
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte{0x01, 0x01, 0x09, 'I', 's', ' ', '1', '+', '1', '=', '3', '?'})
	typ := mustType(f, "Question")
	rs := New(Options{})
	f.Fuzz(func(t *testing.T, data []byte) {
		v, n, err := rs.Decode(typ, data)
		if err != nil {
			return
		}
		require.LessOrEqual(t, n, len(data))
		enc, err := rs.Encode(typ, v)
		require.NoError(t, err)
		again, _, err := rs.Decode(typ, enc)
		require.NoError(t, err)
		requireValue(t, v, again)
	})
}

func BenchmarkEncodeQuestion(b *testing.B) {
	typ := mustType(b, "Question")
	v := value.Struct(value.F("id", value.Int(1)), value.F("question", value.Text("Is 1+1=3?")))
	rs := New(Options{})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := rs.Encode(typ, v); err != nil {
			b.Fatal(err)
		}
	}
}
