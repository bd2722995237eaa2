package main

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/go-xmlfmt/xmlfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/asnkit"
	"github.com/rawbytedev/asnkit/pkg/parser"
	"github.com/rawbytedev/asnkit/pkg/value"
)

//go:embed foo.asn
var fooSchema string

// input selects where encoded bytes come from: --file, or the argument.
type input struct {
	file string
}

func (in *input) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&in.file, "file", "f", "", "read the encoding from a file (- for stdin) instead of the argument")
}

// read returns the encoding. Arguments of binary formats are hex, with
// optional 0x prefix and whitespace; files are raw.
func (in *input) read(cmd *cobra.Command, format string, args []string) ([]byte, error) {
	switch {
	case in.file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case in.file != "":
		return os.ReadFile(in.file)
	case len(args) == 0:
		return nil, errors.New("no input: pass the encoding as an argument or use --file")
	case asnkit.TextFormat(format):
		return []byte(args[0]), nil
	}
	s := strings.Join(strings.Fields(args[0]), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// output controls how an encoding is printed.
type output struct {
	pretty bool
	file   string
}

func (out *output) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&out.pretty, "pretty", false, "print xer and jer as indented text instead of hex")
	cmd.Flags().StringVar(&out.file, "out", "", "also write the raw encoding to this file")
}

func (out *output) write(w io.Writer, format string, data []byte) error {
	if out.file != "" {
		if err := os.WriteFile(out.file, data, 0o644); err != nil {
			return err
		}
	}
	if !out.pretty || !asnkit.TextFormat(format) {
		_, err := fmt.Fprintln(w, hex.EncodeToString(data))
		return err
	}
	text, err := indent(format, data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, text)
	return err
}

// indent lays out a text encoding for reading. The result is for display
// only; whitespace inside XER leaf elements is not significant to humans but
// would be to a decoder.
func indent(format string, data []byte) (string, error) {
	switch format {
	case "xer":
		s := xmlfmt.FormatXML(string(data), "", "  ")
		return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")), nil
	case "jer":
		v := jsontext.Value(bytes.Clone(data))
		if err := v.Indent(jsontext.WithIndent("  ")); err != nil {
			return "", err
		}
		return string(v), nil
	}
	return string(data), nil
}

// target names the schema file and type a command works on.
type target struct {
	schema   string
	typeName string
}

func (t *target) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.schema, "schema", "s", "", "ASN.1 module file")
	cmd.Flags().StringVarP(&t.typeName, "type", "t", "", "type to encode or decode")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("type")
}

func (a *app) binding(t target, format string) (*asnkit.Binding, error) {
	m, err := a.loadModule(t.schema)
	if err != nil {
		return nil, err
	}
	return a.compile(m, format)
}

func newEncodeCmd(a *app) *cobra.Command {
	var (
		t      target
		format string
		out    output
	)
	cmd := &cobra.Command{
		Use:   "encode VALUE.yaml",
		Short: "Encode a YAML value (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.binding(t, format)
			if err != nil {
				return err
			}
			var doc []byte
			if args[0] == "-" {
				doc, err = io.ReadAll(cmd.InOrStdin())
			} else {
				doc, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			v, err := value.ParseYAML(doc)
			if err != nil {
				return err
			}
			data, err := b.Encode(t.typeName, v)
			if err != nil {
				return err
			}
			return out.write(cmd.OutOrStdout(), b.Format(), data)
		},
	}
	t.register(cmd)
	out.register(cmd)
	cmd.Flags().StringVarP(&format, "codec", "c", "", "encoding rules (default from config)")
	return cmd
}

func newDecodeCmd(a *app) *cobra.Command {
	var (
		t      target
		format string
		in     input
	)
	cmd := &cobra.Command{
		Use:   "decode [ENCODING]",
		Short: "Decode an encoding and print the value as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.binding(t, format)
			if err != nil {
				return err
			}
			data, err := in.read(cmd, b.Format(), args)
			if err != nil {
				return err
			}
			v, err := b.Decode(t.typeName, data)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(v); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	t.register(cmd)
	in.register(cmd)
	cmd.Flags().StringVarP(&format, "codec", "c", "", "encoding rules (default from config)")
	return cmd
}

func newConvertCmd(a *app) *cobra.Command {
	var (
		t        target
		from, to string
		in       input
		out      output
	)
	cmd := &cobra.Command{
		Use:   "convert [ENCODING]",
		Short: "Re-encode a value from one set of encoding rules to another",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadModule(t.schema)
			if err != nil {
				return err
			}
			src, err := a.compile(m, from)
			if err != nil {
				return err
			}
			dst, err := a.compile(m, to)
			if err != nil {
				return err
			}
			data, err := in.read(cmd, src.Format(), args)
			if err != nil {
				return err
			}
			v, err := src.Decode(t.typeName, data)
			if err != nil {
				return err
			}
			converted, err := dst.Encode(t.typeName, v)
			if err != nil {
				return err
			}
			return out.write(cmd.OutOrStdout(), dst.Format(), converted)
		},
	}
	t.register(cmd)
	in.register(cmd)
	out.register(cmd)
	cmd.Flags().StringVarP(&from, "input-codec", "i", "", "encoding rules of the input (default from config)")
	cmd.Flags().StringVarP(&to, "output-codec", "o", "", "encoding rules of the output")
	_ = cmd.MarkFlagRequired("output-codec")
	return cmd
}

type demoResult struct {
	format  string
	encoded []byte
	decoded value.Value
}

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Encode and decode the Question example with every format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parser.Parse(fooSchema)
			if err != nil {
				return err
			}
			question := value.Struct(
				value.F("id", value.Int(1)),
				value.F("question", value.Text("Is 1+1=3?")),
			)

			formats := asnkit.Formats()
			results := make([]demoResult, len(formats))
			var g errgroup.Group
			for i, format := range formats {
				g.Go(func() error {
					b, err := a.compile(m, format)
					if err != nil {
						return err
					}
					data, err := b.Encode("Question", question)
					if err != nil {
						return err
					}
					v, err := b.Decode("Question", data)
					if err != nil {
						return err
					}
					results[i] = demoResult{format: format, encoded: data, decoded: v}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ASN.1 specification:\n\n%s\n", strings.TrimSpace(fooSchema))
			fmt.Fprintf(w, "\nQuestion to encode: %s\n", question)
			for _, r := range results {
				fmt.Fprintf(w, "\n%s:\n", strings.ToUpper(r.format))
				fmt.Fprintf(w, "Encoded: %x (%d bytes)\n", r.encoded, len(r.encoded))
				fmt.Fprintf(w, "Decoded: %s\n", r.decoded)
			}
			return nil
		},
	}
}
