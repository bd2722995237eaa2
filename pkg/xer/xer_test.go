package xer

import (
	"errors"
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
    Flags ::= SEQUENCE {
        on BOOLEAN,
        off BOOLEAN OPTIONAL
    }
    Temp ::= INTEGER (-100..100)
    Pin ::= NumericString (SIZE (3))
    Text ::= IA5String
    Name ::= UTF8String
    Ext ::= SEQUENCE {
        a BOOLEAN,
        ...
    }
    Node ::= SEQUENCE {
        next Node OPTIONAL
    }
    Note ::= SEQUENCE {
        s UTF8String
    }
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

var question = value.Struct(
	value.F("id", value.Int(1)),
	value.F("question", value.Text("Is 1+1=3?")),
)

func TestGolden(t *testing.T) {
	tests := []struct {
		name string
		typ  schema.Type
		v    value.Value
		want string
	}{
		{"question", mustType(t, "Question"), question, "<Question><id>1</id><question>Is 1+1=3?</question></Question>"},
		{"booleans", mustType(t, "Flags"), value.Struct(value.F("on", value.Bool(true)), value.F("off", value.Bool(false))), "<Flags><on><true/></on><off><false/></off></Flags>"},
		{"optional absent", mustType(t, "Flags"), value.Struct(value.F("on", value.Bool(false))), "<Flags><on><false/></on></Flags>"},
		{"negative", mustType(t, "Temp"), value.Int(-42), "<Temp>-42</Temp>"},
		{"escaped markup", mustType(t, "Text"), value.Text("a<b & c>d"), "<Text>a&lt;b &amp; c&gt;d</Text>"},
		{"control characters", mustType(t, "Text"), value.Text("a\x07b\rc\x7f"), "<Text>a<bel/>b&#13;c<del/></Text>"},
		{"empty text", mustType(t, "Text"), value.Text(""), "<Text></Text>"},
		{"utf8", mustType(t, "Name"), value.Text("héllo"), "<Name>héllo</Name>"},
		{"anonymous integer", &schema.Integer{}, value.Int(7), "<INTEGER>7</INTEGER>"},
		{"anonymous string", &schema.CharString{StringKind: schema.IA5String}, value.Text("x"), "<IA5String>x</IA5String>"},
	}
	rs := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := rs.Encode(tt.typ, tt.v)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(data))

			got, n, err := rs.Decode(tt.typ, data)
			require.NoError(t, err)
			require.Equal(t, len(data), n)
			requireValue(t, tt.v, got)
		})
	}
}

func TestDecodeLenientLayout(t *testing.T) {
	doc := `<?xml version="1.0"?>
<!-- produced elsewhere -->
<Question>
    <id> 1 </id>
    <question>Is 1+1=3?</question>
</Question>`
	got, n, err := New(Options{}).Decode(mustType(t, "Question"), []byte(doc+"tail"))
	require.NoError(t, err)
	require.Equal(t, len(doc), n)
	requireValue(t, question, got)

	padded := doc + "\n \t\r\n"
	got, n, err = New(Options{}).Decode(mustType(t, "Question"), []byte(padded))
	require.NoError(t, err)
	require.Equal(t, len(padded), n, "trailing whitespace is consumed")
	requireValue(t, question, got)

	_, n, err = New(Options{}).Decode(mustType(t, "Question"), []byte(doc+"\n<Question>"))
	require.NoError(t, err)
	require.Equal(t, len(doc)+1, n)
}

func TestExtensibleSkipsUnknownElements(t *testing.T) {
	doc := "<Ext><a><true/></a><later><x>1</x></later></Ext>"
	got, _, err := New(Options{}).Decode(mustType(t, "Ext"), []byte(doc))
	require.NoError(t, err)
	requireValue(t, value.Struct(value.F("a", value.Bool(true))), got)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		doc  string
		err  error
	}{
		{"truncated", "Question", "<Question><id>1</id>", codec.ErrTruncated},
		{"empty input", "Question", "", codec.ErrTruncated},
		{"wrong root", "Question", "<Answer></Answer>", codec.ErrInvalidTag},
		{"missing field", "Question", "<Question><id>1</id></Question>", codec.ErrMissingField},
		{"unknown field", "Question", "<Question><id>1</id><question>x</question><extra/></Question>", codec.ErrUnknownField},
		{"out of order", "Question", "<Question><question>x</question><id>1</id></Question>", codec.ErrMissingField},
		{"not an integer", "Temp", "<Temp>ten</Temp>", codec.ErrInvalidValue},
		{"out of range", "Temp", "<Temp>101</Temp>", codec.ErrOutOfRange},
		{"not a boolean", "Flags", "<Flags><on><yes/></on></Flags>", codec.ErrInvalidValue},
		{"bad character", "Pin", "<Pin>12a</Pin>", codec.ErrInvalidCharacter},
		{"size violated", "Pin", "<Pin>12</Pin>", codec.ErrOutOfRange},
		{"unknown control", "Text", "<Text><bell/></Text>", codec.ErrInvalidTag},
		{"mismatched end", "Text", "<Text>a</Txt>", codec.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(Options{}).Decode(mustType(t, tt.typ), []byte(tt.doc))
			require.ErrorIs(t, err, tt.err)
			var de *codec.DecodeError
			require.ErrorAs(t, err, &de)
			require.Equal(t, "xer", de.Format)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	_, err := New(Options{}).Encode(mustType(t, "Question"), value.Struct(value.F("id", value.Int(1)), value.F("question", value.Int(2))))
	require.ErrorIs(t, err, codec.ErrTypeMismatch)
	var ee *codec.EncodeError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "xer", ee.Format)
	require.Equal(t, "Question.question", ee.Path)

	for _, s := range []string{"a\uFFFFb\x01", "\uFFFE", "x\xff"} {
		_, err = New(Options{}).Encode(mustType(t, "Note"), value.Struct(value.F("s", value.Text(s))))
		require.ErrorIs(t, err, codec.ErrInvalidCharacter, "%q", s)
		require.ErrorAs(t, err, &ee)
		require.Equal(t, "Note.s", ee.Path)
	}

	data, err := New(Options{}).Encode(mustType(t, "Note"), value.Struct(value.F("s", value.Text("\uFFFD\U0001F600\uE000\x01"))))
	require.NoError(t, err)
	require.Equal(t, "<Note><s>\uFFFD\U0001F600\uE000<soh/></s></Note>", string(data))
}

func TestUTF8RoundTripProperty(t *testing.T) {
	typ := mustType(t, "Note")
	rs := New(Options{})
	rapid.Check(t, func(t *rapid.T) {
		v := value.Struct(value.F("s", value.Text(rapid.String().Draw(t, "s"))))
		data, err := rs.Encode(typ, v)
		if err != nil {
			if !errors.Is(err, codec.ErrInvalidCharacter) {
				t.Fatalf("encode: %v", err)
			}
			return
		}
		got, _, err := rs.Decode(typ, data)
		if err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if !value.Equal(v, got) {
			t.Fatalf("want %s got %s", v, got)
		}
	})
}

func TestDepthLimit(t *testing.T) {
	typ := mustType(t, "Node")
	v := value.Struct()
	for i := 0; i < 10; i++ {
		v = value.Struct(value.F("next", v))
	}
	shallow := New(Options{MaxDepth: 4})
	_, err := shallow.Encode(typ, v)
	require.ErrorIs(t, err, codec.ErrDepthExceeded)

	data, err := New(Options{}).Encode(typ, v)
	require.NoError(t, err)
	_, _, err = shallow.Decode(typ, data)
	require.ErrorIs(t, err, codec.ErrDepthExceeded)
}

func TestRoundTripProperty(t *testing.T) {
	typ := mustType(t, "Question")
	rs := New(Options{})
	rapid.Check(t, func(t *rapid.T) {
		v := value.Struct(
			value.F("id", value.Int(rapid.Int64().Draw(t, "id"))),
			value.F("question", value.Text(rapid.StringMatching(`[\x00-\x7f]{0,64}`).Draw(t, "question"))),
		)
		data, err := rs.Encode(typ, v)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, n, err := rs.Decode(typ, data)
		if err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if n != len(data) || !value.Equal(v, got) {
			t.Fatalf("want %s got %s", v, got)
		}
	})
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte("<Question><id>1</id><question>Is 1+1=3?</question></Question>"))
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
	rs := New(Options{})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := rs.Encode(typ, question); err != nil {
			b.Fatal(err)
		}
	}
}
