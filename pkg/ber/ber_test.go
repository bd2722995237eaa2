package ber

import (
	"encoding/hex"
	"math/big"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/parser"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

const questionSchema = `
Foo DEFINITIONS ::= BEGIN
    Question ::= SEQUENCE {
        id INTEGER,
        question IA5String
    }
    Flag ::= BOOLEAN
    Count ::= INTEGER
    Small ::= INTEGER (0..255)
    Opt ::= SEQUENCE {
        a INTEGER OPTIONAL,
        b BOOLEAN
    }
    Ext ::= SEQUENCE {
        a INTEGER,
        ...
    }
    Explicit ::= [1] EXPLICIT INTEGER
    HighTag ::= [APPLICATION 100] IMPLICIT INTEGER
    Node ::= SEQUENCE {
        next Node OPTIONAL
    }
    Name ::= UTF8String (SIZE (1..8))
END
`

func mustType(t testing.TB, src, name string) schema.Type {
	t.Helper()
	m, err := parser.Parse(src)
	require.NoError(t, err)
	def, ok := m.Lookup(name)
	require.True(t, ok, "type %s", name)
	return &schema.Reference{Name: name, Def: def}
}

func mustHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func requireValue(t testing.TB, want, got value.Value) {
	t.Helper()
	require.True(t, value.Equal(want, got), "want %s got %s", want, got)
}

var question = value.Struct(
	value.F("id", value.Int(1)),
	value.F("question", value.Text("Is 1+1=3?")),
)

func TestQuestionGolden(t *testing.T) {
	typ := mustType(t, questionSchema, "Question")
	for _, rs := range []*RuleSet{New(Options{}), New(Options{Canonical: true})} {
		t.Run(rs.Name(), func(t *testing.T) {
			data, err := rs.Encode(typ, question)
			require.NoError(t, err)
			require.Equal(t, "300e0201011609497320312b313d333f", hex.EncodeToString(data))

			got, n, err := rs.Decode(typ, data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			requireValue(t, question, got)
		})
	}
}

func TestEncodePrimitives(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		v    value.Value
		want string
	}{
		{"zero", "Count", value.Int(0), "020100"},
		{"positive needs pad", "Count", value.Int(128), "02020080"},
		{"negative", "Count", value.Int(-129), "0202ff7f"},
		{"minus one", "Count", value.Int(-1), "0201ff"},
		{"true", "Flag", value.Bool(true), "0101ff"},
		{"false", "Flag", value.Bool(false), "010100"},
		{"explicit tag", "Explicit", value.Int(5), "a103020105"},
		{"high tag number", "HighTag", value.Int(5), "5f640105"},
		{"optional absent", "Opt", value.Struct(value.F("b", value.Bool(true))), "30030101ff"},
		{"recursive", "Node", value.Struct(value.F("next", value.Struct())), "30023000"},
		{"utf8", "Name", value.Text("héllo"), "0c0668c3a96c6c6f"},
	}
	rs := New(Options{Canonical: true})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := mustType(t, questionSchema, tt.typ)
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
	src := `M DEFINITIONS ::= BEGIN T ::= IA5String END`
	typ := mustType(t, src, "T")
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	data, err := New(Options{}).Encode(typ, value.Text(string(long)))
	require.NoError(t, err)
	require.Equal(t, []byte{0x16, 0x82, 0x01, 0x2c}, data[:4])
	require.Len(t, data, 304)
}

// Each input is valid BER that DER forbids.
func TestCanonicalRejection(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		data string
		want value.Value
	}{
		{"long form for short length", "Question", "30810e0201011609497320312b313d333f", question},
		{"length with leading zero", "Question", "3082000e0201011609497320312b313d333f", question},
		{"indefinite length", "Question", "30800201011609497320312b313d333f0000", question},
		{"boolean not 0xff", "Flag", "010101", value.Bool(true)},
		{"integer with redundant octet", "Count", "02020001", value.Int(1)},
		{"constructed string", "Question", "301202010136" + "0d" + "04024973" + "040720312b313d333f", question},
		{"high tag form for low number", "Explicit", "bf0103020105", value.Int(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := mustType(t, questionSchema, tt.typ)
			data := mustHex(t, tt.data)

			got, n, err := New(Options{}).Decode(typ, data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			requireValue(t, tt.want, got)

			_, _, err = New(Options{Canonical: true}).Decode(typ, data)
			require.ErrorIs(t, err, codec.ErrNonCanonical)
			var de *codec.DecodeError
			require.ErrorAs(t, err, &de)
			require.Equal(t, "der", de.Format)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		data string
		err  error
	}{
		{"truncated contents", "Question", "300e0201011609497320312b313d33", codec.ErrTruncated},
		{"empty input", "Question", "", codec.ErrTruncated},
		{"wrong tag", "Question", "310e0201011609497320312b313d333f", codec.ErrInvalidTag},
		{"missing mandatory field", "Question", "3003020101", codec.ErrMissingField},
		{"primitive sequence", "Question", "1000", codec.ErrInvalidTag},
		{"boolean too long", "Flag", "01020000", codec.ErrInvalidLength},
		{"empty integer", "Count", "0200", codec.ErrInvalidLength},
		{"indefinite primitive", "Count", "028001000000", codec.ErrInvalidLength},
		{"non-ascii ia5", "Question", "30060201011601ff", codec.ErrInvalidCharacter},
		{"out of range", "Small", "02020100", codec.ErrOutOfRange},
		{"size violated", "Name", "0c00", codec.ErrOutOfRange},
		{"bad utf8", "Name", "0c01ff", codec.ErrInvalidCharacter},
		{"unknown trailing element", "Question", "30110201011609497320312b313d333f010100", codec.ErrInvalidTag},
		{"missing end of contents", "Question", "30800201011609497320312b313d333f", codec.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := mustType(t, questionSchema, tt.typ)
			_, _, err := New(Options{}).Decode(typ, mustHex(t, tt.data))
			require.ErrorIs(t, err, tt.err)
			var de *codec.DecodeError
			require.ErrorAs(t, err, &de)
		})
	}
}

func TestExtensibleSkipsUnknownElements(t *testing.T) {
	typ := mustType(t, questionSchema, "Ext")
	for _, data := range []string{
		"3006020101" + "0101ff",
		"3080020101" + "3080" + "0101ff" + "0000" + "0000",
	} {
		got, n, err := New(Options{}).Decode(typ, mustHex(t, data))
		require.NoError(t, err)
		require.Equal(t, len(data)/2, n)
		requireValue(t, value.Struct(value.F("a", value.Int(1))), got)
	}
}

func TestDecodeReportsConsumed(t *testing.T) {
	typ := mustType(t, questionSchema, "Count")
	got, n, err := New(Options{}).Decode(typ, mustHex(t, "020105ffff"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	requireValue(t, value.Int(5), got)
}

func TestAutomaticTags(t *testing.T) {
	src := `M DEFINITIONS AUTOMATIC TAGS ::= BEGIN
        Question ::= SEQUENCE { id INTEGER, question IA5String }
    END`
	typ := mustType(t, src, "Question")
	data, err := New(Options{}).Encode(typ, question)
	require.NoError(t, err)
	require.Equal(t, "300e8001018109497320312b313d333f", hex.EncodeToString(data))
}

func TestEncodeErrors(t *testing.T) {
	rs := New(Options{})
	typ := mustType(t, questionSchema, "Question")

	_, err := rs.Encode(typ, value.Struct(value.F("id", value.Int(1))))
	require.ErrorIs(t, err, codec.ErrMissingField)

	_, err = rs.Encode(typ, question.With("extra", value.Bool(true)))
	require.ErrorIs(t, err, codec.ErrUnknownField)

	_, err = rs.Encode(typ, question.With("question", value.Text("naïve")))
	require.ErrorIs(t, err, codec.ErrInvalidCharacter)
	var ee *codec.EncodeError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "Question.question", ee.Path)
	require.Equal(t, "ber", ee.Format)

	_, err = rs.Encode(typ, question.With("id", value.Text("1")))
	require.ErrorIs(t, err, codec.ErrTypeMismatch)

	_, err = rs.Encode(mustType(t, questionSchema, "Small"), value.Int(256))
	require.ErrorIs(t, err, codec.ErrOutOfRange)
}

func nest(depth int) value.Value {
	v := value.Struct()
	for i := 0; i < depth; i++ {
		v = value.Struct(value.F("next", v))
	}
	return v
}

func TestDepthLimit(t *testing.T) {
	typ := mustType(t, questionSchema, "Node")
	shallow := New(Options{MaxDepth: 4})

	_, err := shallow.Encode(typ, nest(10))
	require.ErrorIs(t, err, codec.ErrDepthExceeded)

	data, err := New(Options{}).Encode(typ, nest(10))
	require.NoError(t, err)
	_, _, err = shallow.Decode(typ, data)
	require.ErrorIs(t, err, codec.ErrDepthExceeded)

	got, _, err := New(Options{}).Decode(typ, data)
	require.NoError(t, err)
	requireValue(t, nest(10), got)
}

func TestIntegerRoundTrip(t *testing.T) {
	typ := mustType(t, questionSchema, "Count")
	rs := New(Options{Canonical: true})
	condition := func(x int64, shift uint8) bool {
		i := new(big.Int).Lsh(big.NewInt(x), uint(shift))
		data, err := rs.Encode(typ, value.BigInt(i))
		require.NoError(t, err)
		got, n, err := rs.Decode(typ, data)
		require.NoError(t, err)
		require.Equal(t, len(data), n)
		return value.Equal(value.BigInt(i), got)
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))
}

func FuzzDecode(f *testing.F) {
	f.Add(mustHex(f, "300e0201011609497320312b313d333f"))
	f.Add(mustHex(f, "30800201011609497320312b313d333f0000"))
	f.Add(mustHex(f, "301202010136" + "0d" + "04024973" + "040720312b313d333f"))
	typ := mustType(f, questionSchema, "Question")
	lenient, strict := New(Options{}), New(Options{Canonical: true})
	f.Fuzz(func(t *testing.T, data []byte) {
		v, n, err := lenient.Decode(typ, data)
		if err != nil {
			return
		}
		require.LessOrEqual(t, n, len(data))
		enc, err := strict.Encode(typ, v)
		require.NoError(t, err)
		again, _, err := strict.Decode(typ, enc)
		require.NoError(t, err)
		requireValue(t, v, again)
	})
}

func BenchmarkEncodeQuestion(b *testing.B) {
	typ := mustType(b, questionSchema, "Question")
	rs := New(Options{Canonical: true})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := rs.Encode(typ, question); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeQuestion(b *testing.B) {
	typ := mustType(b, questionSchema, "Question")
	rs := New(Options{Canonical: true})
	data, err := rs.Encode(typ, question)
	require.NoError(b, err)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, err := rs.Decode(typ, data); err != nil {
			b.Fatal(err)
		}
	}
}
