package asnkit

import (
	"bytes"
	"encoding/hex"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/parser"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fooModule(t testing.TB) *schema.Module {
	t.Helper()
	text, err := os.ReadFile("testdata/foo.asn")
	require.NoError(t, err)
	m, err := parser.Parse(string(text))
	require.NoError(t, err)
	return m
}

var (
	question = value.Struct(
		value.F("id", value.Int(1)),
		value.F("question", value.Text("Is 1+1=3?")),
	)
	answer = value.Struct(
		value.F("id", value.Int(1)),
		value.F("answer", value.Bool(true)),
	)
)

func TestGolden(t *testing.T) {
	tests := []struct {
		format   string
		question string
		answer   string
	}{
		{"ber", "300e0201011609497320312b313d333f", "30060201010101ff"},
		{"der", "300e0201011609497320312b313d333f", "30060201010101ff"},
		{"jer", "7b226964223a312c227175657374696f6e223a22497320312b313d333f227d", hex.EncodeToString([]byte(`{"id":1,"answer":true}`))},
		{"oer", "010109497320312b313d333f", "0101ff"},
		{"per", "010109497320312b313d333f", "010180"},
		{"uper", "01010993cd03156c5eb37e", "010180"},
		{"xer", "3c5175657374696f6e3e3c69643e313c2f69643e3c7175657374696f6e3e497320312b313d333f3c2f7175657374696f6e3e3c2f5175657374696f6e3e",
			hex.EncodeToString([]byte("<Answer><id>1</id><answer><true/></answer></Answer>"))},
	}
	m := fooModule(t)
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			b, err := Compile(m, tt.format)
			require.NoError(t, err)
			require.Equal(t, tt.format, b.Format())

			for _, c := range []struct {
				typ  string
				v    value.Value
				want string
			}{
				{"Question", question, tt.question},
				{"Answer", answer, tt.answer},
			} {
				data, err := b.Encode(c.typ, c.v)
				require.NoError(t, err)
				require.Equal(t, c.want, hex.EncodeToString(data), c.typ)

				got, err := b.Decode(c.typ, data)
				require.NoError(t, err)
				require.True(t, value.Equal(c.v, got), "want %s got %s", c.v, got)
			}
		})
	}
}

func TestFormats(t *testing.T) {
	require.Equal(t, []string{"ber", "der", "jer", "oer", "per", "uper", "xer"}, Formats())
	require.True(t, Registered("uper"))
	require.False(t, Registered("cer"))
	require.True(t, TextFormat("xer"))
	require.False(t, TextFormat("der"))
}

func TestUnknownFormat(t *testing.T) {
	_, err := Compile(fooModule(t), "cer")
	var ufe *UnknownFormatError
	require.ErrorAs(t, err, &ufe)
	require.Equal(t, "cer", ufe.Format)
	require.Contains(t, err.Error(), "uper")

	_, err = Compile(nil, "ber")
	require.ErrorIs(t, err, ErrNilModule)
}

func TestUnknownType(t *testing.T) {
	b, err := Compile(fooModule(t), "ber")
	require.NoError(t, err)

	_, err = b.Encode("Reply", question)
	var ute *UnknownTypeError
	require.ErrorAs(t, err, &ute)
	require.Equal(t, "Foo", ute.Module)
	require.Equal(t, "Reply", ute.Type)

	_, err = b.Decode("Reply", []byte{0x30, 0x00})
	require.ErrorAs(t, err, &ute)
}

func TestCompileString(t *testing.T) {
	b, err := CompileString(`M DEFINITIONS ::= BEGIN T ::= INTEGER (0..7) END`, "uper")
	require.NoError(t, err)
	require.Equal(t, []string{"T"}, b.Types())
	require.Equal(t, "M", b.Module().Name)

	data, err := b.Encode("T", value.Int(5))
	require.NoError(t, err)
	require.Equal(t, []byte{0xa0}, data)

	_, err = CompileString(`M DEFINITIONS ::= BEGIN T ::= END`, "uper")
	var se *parser.SyntaxError
	require.ErrorAs(t, err, &se)
}

func TestTrailingData(t *testing.T) {
	b, err := Compile(fooModule(t), "der")
	require.NoError(t, err)
	data, err := b.Encode("Question", question)
	require.NoError(t, err)

	_, err = b.Decode("Question", append(data, 0x00, 0x00))
	var tde *codec.TrailingDataError
	require.ErrorAs(t, err, &tde)
	assert.Equal(t, "der", tde.Format)
	assert.Equal(t, len(data), tde.Consumed)
	assert.Equal(t, len(data)+2, tde.Total)

	x, err := Compile(fooModule(t), "xer")
	require.NoError(t, err)
	text, err := x.Encode("Question", question)
	require.NoError(t, err)
	got, err := x.Decode("Question", append(text, "\n"...))
	require.NoError(t, err, "a final newline is not trailing data")
	require.True(t, value.Equal(question, got))
}

func TestDecodePrefixStream(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			b, err := Compile(fooModule(t), format)
			require.NoError(t, err)

			var stream []byte
			msgs := []value.Value{question, question.With("id", value.Int(2)), question.With("question", value.Text(""))}
			for _, v := range msgs {
				data, err := b.Encode("Question", v)
				require.NoError(t, err)
				stream = append(stream, data...)
			}
			for _, want := range msgs {
				got, n, err := b.DecodePrefix("Question", stream)
				require.NoError(t, err)
				require.True(t, value.Equal(want, got), "want %s got %s", want, got)
				stream = stream[n:]
			}
			require.Empty(t, stream)
		})
	}
}

func TestDecodeErrorsCarryFormat(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			b, err := Compile(fooModule(t), format)
			require.NoError(t, err)
			data, err := b.Encode("Question", question)
			require.NoError(t, err)

			_, err = b.Decode("Question", data[:len(data)/2])
			require.ErrorIs(t, err, codec.ErrTruncated)
			var de *codec.DecodeError
			require.ErrorAs(t, err, &de)
			require.Equal(t, format, de.Format)
		})
	}
}

func TestDecodeOneByteShort(t *testing.T) {
	values := map[string]value.Value{"Question": question, "Answer": answer}
	for _, format := range Formats() {
		b, err := Compile(fooModule(t), format)
		require.NoError(t, err)
		for typ, v := range values {
			data, err := b.Encode(typ, v)
			require.NoError(t, err)
			_, err = b.Decode(typ, data[:len(data)-1])
			require.ErrorIs(t, err, codec.ErrTruncated, "%s %s", format, typ)
		}
	}
}

func TestEncodeErrorPath(t *testing.T) {
	for _, format := range Formats() {
		b, err := Compile(fooModule(t), format)
		require.NoError(t, err)
		_, err = b.Encode("Question", question.With("question", value.Text("café")))
		require.ErrorIs(t, err, codec.ErrInvalidCharacter, format)
		var ee *codec.EncodeError
		require.ErrorAs(t, err, &ee, format)
		require.Equal(t, "Question.question", ee.Path, format)
		require.Equal(t, format, ee.Format)
	}
}

func TestMaxDepthOption(t *testing.T) {
	const text = `M DEFINITIONS ::= BEGIN
		Node ::= SEQUENCE { next Node OPTIONAL }
	END`
	v := value.Struct()
	for i := 0; i < 5; i++ {
		v = value.Struct(value.F("next", v))
	}
	for _, format := range Formats() {
		b, err := CompileString(text, format, WithMaxDepth(3))
		require.NoError(t, err)
		_, err = b.Encode("Node", v)
		require.ErrorIs(t, err, codec.ErrDepthExceeded, format)

		b, err = CompileString(text, format, WithMaxDepth(0))
		require.NoError(t, err)
		_, err = b.Encode("Node", v)
		require.NoError(t, err, format)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	b, err := Compile(fooModule(t), "per", WithLogger(logger))
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"message":"compiled binding"`)
	require.Contains(t, buf.String(), `"format":"per"`)

	buf.Reset()
	_, err = b.Decode("Question", []byte{0x01})
	require.Error(t, err)
	require.Contains(t, buf.String(), `"message":"decode failed"`)
	require.Contains(t, buf.String(), `"type":"Question"`)
}

func TestConcurrentUse(t *testing.T) {
	bindings := make([]*Binding, 0, len(Formats()))
	for _, format := range Formats() {
		b, err := Compile(fooModule(t), format)
		require.NoError(t, err)
		bindings = append(bindings, b)
	}
	var g errgroup.Group
	g.SetLimit(8)
	for i := 0; i < 64; i++ {
		b := bindings[i%len(bindings)]
		id := int64(i)
		g.Go(func() error {
			v := question.With("id", value.Int(id))
			data, err := b.Encode("Question", v)
			if err != nil {
				return err
			}
			got, err := b.Decode("Question", data)
			if err != nil {
				return err
			}
			if !value.Equal(v, got) {
				t.Errorf("%s: want %s got %s", b.Format(), v, got)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestRoundTripAllFormats(t *testing.T) {
	m := fooModule(t)
	bindings := make(map[string]*Binding)
	for _, format := range Formats() {
		b, err := Compile(m, format)
		require.NoError(t, err)
		bindings[format] = b
	}
	rapid.Check(t, func(t *rapid.T) {
		v := value.Struct(
			value.F("id", value.Int(rapid.Int64().Draw(t, "id"))),
			value.F("question", value.Text(rapid.StringMatching(`[ -~]{0,80}`).Draw(t, "question"))),
		)
		for format, b := range bindings {
			data, err := b.Encode("Question", v)
			if err != nil {
				t.Fatalf("%s encode: %v", format, err)
			}
			got, err := b.Decode("Question", data)
			if err != nil {
				t.Fatalf("%s decode: %v", format, err)
			}
			if !value.Equal(v, got) {
				t.Fatalf("%s: want %s got %s", format, v, got)
			}
		}
	})
}

func BenchmarkQuestion(b *testing.B) {
	m := fooModule(b)
	for _, format := range Formats() {
		bind, err := Compile(m, format)
		require.NoError(b, err)
		data, err := bind.Encode("Question", question)
		require.NoError(b, err)
		b.Run(format+"/encode", func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := bind.Encode("Question", question); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run(format+"/decode", func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := bind.Decode("Question", data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
