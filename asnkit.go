// Package asnkit compiles parsed ASN.1 modules into bindings that encode and
// decode dynamically typed values under one wire format.
//
//	m, err := parser.Parse(text)
//	b, err := asnkit.Compile(m, "uper")
//	data, err := b.Encode("Question", value.Struct(...))
//
// A Binding holds no mutable state; one value may serve any number of
// goroutines.
package asnkit

import (
	"github.com/rs/zerolog"

	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/parser"
	"github.com/rawbytedev/asnkit/pkg/schema"
	"github.com/rawbytedev/asnkit/pkg/value"
)

// Binding pairs a module with the rule set of one format.
type Binding struct {
	module *schema.Module
	rules  codec.RuleSet
	format string
	logger zerolog.Logger

	// roots holds one reference per assignment, built once so calls share
	// them instead of allocating.
	roots map[string]*schema.Reference
}

// Compile selects the rule set registered under format for m.
func Compile(m *schema.Module, format string, opts ...Option) (*Binding, error) {
	if m == nil {
		return nil, ErrNilModule
	}
	newRules, ok := formats[format]
	if !ok {
		return nil, &UnknownFormatError{Format: format}
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	b := &Binding{
		module: m,
		rules:  newRules(o),
		format: format,
		logger: o.logger.With().Str("module", m.Name).Str("format", format).Logger(),
		roots:  make(map[string]*schema.Reference, len(m.Types)),
	}
	for _, def := range m.Types {
		b.roots[def.Name] = &schema.Reference{Name: def.Name, Def: def}
	}
	b.logger.Debug().
		Int("types", len(m.Types)).
		Int("max_depth", o.maxDepth).
		Str("tags", m.TagDefault.String()).
		Msg("compiled binding")
	return b, nil
}

// CompileString parses text, which must hold exactly one module, and
// compiles it.
func CompileString(text, format string, opts ...Option) (*Binding, error) {
	m, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	return Compile(m, format, opts...)
}

// Format returns the registry name of the binding's rule set.
func (b *Binding) Format() string { return b.format }

// Module returns the compiled module.
func (b *Binding) Module() *schema.Module { return b.module }

// Types lists the module's type names in declaration order.
func (b *Binding) Types() []string { return b.module.Names() }

func (b *Binding) root(typeName string) (*schema.Reference, error) {
	ref, ok := b.roots[typeName]
	if !ok {
		return nil, &UnknownTypeError{Module: b.module.Name, Type: typeName}
	}
	return ref, nil
}

// Encode returns the encoding of v as the type named typeName.
func (b *Binding) Encode(typeName string, v value.Value) ([]byte, error) {
	ref, err := b.root(typeName)
	if err != nil {
		return nil, err
	}
	data, err := b.rules.Encode(ref, v)
	if err != nil {
		b.logger.Debug().Err(err).Str("type", typeName).Msg("encode failed")
		return nil, err
	}
	return data, nil
}

// Decode reads a value of the type named typeName. data must hold exactly
// one encoding; leftover bytes are reported as *codec.TrailingDataError.
func (b *Binding) Decode(typeName string, data []byte) (value.Value, error) {
	v, n, err := b.DecodePrefix(typeName, data)
	if err != nil {
		return value.Value{}, err
	}
	if n != len(data) {
		return value.Value{}, &codec.TrailingDataError{Format: b.format, Consumed: n, Total: len(data)}
	}
	return v, nil
}

// DecodePrefix reads one value from the start of data and reports how many
// bytes it used, for inputs that carry several encodings back to back.
func (b *Binding) DecodePrefix(typeName string, data []byte) (value.Value, int, error) {
	ref, err := b.root(typeName)
	if err != nil {
		return value.Value{}, 0, err
	}
	v, n, err := b.rules.Decode(ref, data)
	if err != nil {
		b.logger.Debug().Err(err).Str("type", typeName).Int("size", len(data)).Msg("decode failed")
		return value.Value{}, 0, err
	}
	return v, n, nil
}
