// Package parser turns ASN.1 module text into a schema.Module.
//
// The parser is a single pass of recursive descent over the lexer's token
// stream. It understands the subset of X.680 the rule sets implement:
// INTEGER, BOOLEAN, the restricted character string types, SEQUENCE with
// OPTIONAL components and an extension marker, value and SIZE constraints,
// tags, and references to other assignments of the same module.
package parser

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/rawbytedev/asnkit/pkg/schema"
)

// maxNesting bounds nested SEQUENCE and tag prefixes within one assignment.
const maxNesting = 64

// SyntaxError reports malformed module text.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("parser: line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Parse parses text holding exactly one module definition.
func Parse(text string) (*schema.Module, error) {
	modules, err := ParseAll(text)
	if err != nil {
		return nil, err
	}
	if len(modules) != 1 {
		return nil, &SyntaxError{Line: 1, Column: 1, Msg: fmt.Sprintf("expected one module definition, found %d", len(modules))}
	}
	return modules[0], nil
}

// ParseAll parses every module definition in text, in order.
func ParseAll(text string) ([]*schema.Module, error) {
	p := &sourceParser{input: text, lex: newLexer(text)}
	p.consumeToken()
	var modules []*schema.Module
	for !p.isToken(TokenTypeEOF) {
		m, err := p.consumeModule()
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// sourceParser holds the state of the parser.
type sourceParser struct {
	input        string
	lex          *lexer
	currentToken Lexeme

	tagDefault schema.TagDefault
	extensible bool
	sequences  []*schema.Sequence
	nesting    int
}

// consumeToken advances the lexer forward.
func (p *sourceParser) consumeToken() {
	p.currentToken = p.lex.nextToken()
}

// isToken returns true if the current token matches one of the types given.
func (p *sourceParser) isToken(types ...TokenType) bool {
	for _, kind := range types {
		if p.currentToken.Kind == kind {
			return true
		}
	}
	return false
}

// isKeyword returns true if the current token is a keyword matching that given.
func (p *sourceParser) isKeyword(keyword string) bool {
	return p.isToken(TokenTypeKeyword) && p.currentToken.Value == keyword
}

// errorf builds a SyntaxError positioned at the current token. A lexer
// error token takes precedence over the parser's message.
func (p *sourceParser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.currentToken.Kind == TokenTypeError {
		msg = p.currentToken.Value
	}
	line, col := position(p.input, p.currentToken.Position)
	return &SyntaxError{Line: line, Column: col, Msg: msg}
}

// found describes the current token for error messages.
func (p *sourceParser) found() string {
	switch p.currentToken.Kind {
	case TokenTypeEOF:
		return "end of input"
	case TokenTypeKeyword, TokenTypeIdentifier, TokenTypeNumber:
		return fmt.Sprintf("%s %q", p.currentToken.Kind, p.currentToken.Value)
	default:
		return p.currentToken.Kind.String()
	}
}

// tryConsumeKeyword consumes keyword if it is the current token.
func (p *sourceParser) tryConsumeKeyword(keyword string) bool {
	if !p.isKeyword(keyword) {
		return false
	}
	p.consumeToken()
	return true
}

// consumeKeyword consumes an expected keyword token.
func (p *sourceParser) consumeKeyword(keyword string) error {
	if !p.tryConsumeKeyword(keyword) {
		return p.errorf("expected %s, found %s", keyword, p.found())
	}
	return nil
}

// tryConsume consumes the current token if it matches any of the given types.
func (p *sourceParser) tryConsume(types ...TokenType) (Lexeme, bool) {
	if !p.isToken(types...) {
		return Lexeme{}, false
	}
	token := p.currentToken
	p.consumeToken()
	return token, true
}

// consume consumes a token of the given type or fails.
func (p *sourceParser) consume(kind TokenType) (Lexeme, error) {
	token, ok := p.tryConsume(kind)
	if !ok {
		return Lexeme{}, p.errorf("expected %s, found %s", kind, p.found())
	}
	return token, nil
}

// consumeReference consumes a type reference: an identifier starting with
// an upper-case letter.
func (p *sourceParser) consumeReference() (string, error) {
	if !p.isToken(TokenTypeIdentifier) || !startsUpper(p.currentToken.Value) {
		return "", p.errorf("expected type reference, found %s", p.found())
	}
	name := p.currentToken.Value
	p.consumeToken()
	return name, nil
}

// consumeModule parses
//
//	Name [{ oid }] DEFINITIONS [tagging TAGS] [EXTENSIBILITY IMPLIED] ::= BEGIN assignments END
func (p *sourceParser) consumeModule() (*schema.Module, error) {
	name, err := p.consumeReference()
	if err != nil {
		return nil, err
	}
	if p.isToken(TokenTypeLeftBrace) {
		if err := p.skipBraces(); err != nil {
			return nil, err
		}
	}
	if err := p.consumeKeyword("DEFINITIONS"); err != nil {
		return nil, err
	}

	p.tagDefault = schema.TagsExplicit
	p.extensible = false
	p.sequences = nil
	tagging := true
	switch {
	case p.tryConsumeKeyword("EXPLICIT"):
	case p.tryConsumeKeyword("IMPLICIT"):
		p.tagDefault = schema.TagsImplicit
	case p.tryConsumeKeyword("AUTOMATIC"):
		p.tagDefault = schema.TagsAutomatic
	default:
		tagging = false
	}
	if tagging {
		if err := p.consumeKeyword("TAGS"); err != nil {
			return nil, err
		}
	}
	if p.tryConsumeKeyword("EXTENSIBILITY") {
		if err := p.consumeKeyword("IMPLIED"); err != nil {
			return nil, err
		}
		p.extensible = true
	}
	if _, err := p.consume(TokenTypeAssignment); err != nil {
		return nil, err
	}
	if err := p.consumeKeyword("BEGIN"); err != nil {
		return nil, err
	}
	if p.isKeyword("IMPORTS") || p.isKeyword("EXPORTS") {
		return nil, p.errorf("%s is not supported", p.currentToken.Value)
	}

	var defs []*schema.TypeDef
	for !p.isKeyword("END") {
		if p.isToken(TokenTypeEOF) {
			return nil, p.errorf("unterminated module %s: expected END", name)
		}
		def, err := p.consumeAssignment()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	p.consumeToken()

	if p.extensible {
		for _, seq := range p.sequences {
			seq.Extensible = true
		}
	}
	return schema.NewModule(name, p.tagDefault, defs)
}

// skipBraces skips a balanced { ... } group such as a module object
// identifier.
func (p *sourceParser) skipBraces() error {
	depth := 0
	for {
		switch p.currentToken.Kind {
		case TokenTypeLeftBrace:
			depth++
		case TokenTypeRightBrace:
			depth--
		case TokenTypeEOF, TokenTypeError:
			return p.errorf("unterminated object identifier")
		}
		p.consumeToken()
		if depth == 0 {
			return nil
		}
	}
}

// consumeAssignment parses TypeName ::= Type.
func (p *sourceParser) consumeAssignment() (*schema.TypeDef, error) {
	if p.isToken(TokenTypeIdentifier) && !startsUpper(p.currentToken.Value) {
		return nil, p.errorf("value assignments are not supported: %s", p.found())
	}
	name, err := p.consumeReference()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(TokenTypeAssignment); err != nil {
		return nil, err
	}
	p.nesting = 0
	t, err := p.consumeType()
	if err != nil {
		return nil, err
	}
	return &schema.TypeDef{Name: name, Type: t}, nil
}

// consumeType parses an optionally tagged builtin type or reference with an
// optional constraint.
func (p *sourceParser) consumeType() (schema.Type, error) {
	p.nesting++
	defer func() { p.nesting-- }()
	if p.nesting > maxNesting {
		return nil, p.errorf("types nested deeper than %d levels", maxNesting)
	}

	if p.isToken(TokenTypeLeftBracket) {
		return p.consumeTaggedType()
	}

	switch {
	case p.tryConsumeKeyword("INTEGER"):
		t := &schema.Integer{}
		if p.isToken(TokenTypeLeftBrace) {
			return nil, p.errorf("named numbers are not supported")
		}
		if p.isToken(TokenTypeLeftParen) {
			r, err := p.consumeValueConstraint()
			if err != nil {
				return nil, err
			}
			t.Range = r
		}
		return t, nil

	case p.tryConsumeKeyword("BOOLEAN"):
		return &schema.Boolean{}, nil

	case p.isToken(TokenTypeKeyword) && isStringKeyword(p.currentToken.Value):
		kind, _ := schema.LookupStringKind(p.currentToken.Value)
		p.consumeToken()
		t := &schema.CharString{StringKind: kind}
		if p.isToken(TokenTypeLeftParen) {
			r, err := p.consumeSizeConstraint()
			if err != nil {
				return nil, err
			}
			t.Size = r
		}
		return t, nil

	case p.tryConsumeKeyword("SEQUENCE"):
		if p.isKeyword("OF") || p.isKeyword("SIZE") {
			return nil, p.errorf("SEQUENCE OF is not supported")
		}
		return p.consumeSequence()

	case p.isToken(TokenTypeIdentifier):
		name, err := p.consumeReference()
		if err != nil {
			return nil, err
		}
		if p.isToken(TokenTypeLeftParen) {
			return nil, p.errorf("constraints on type references are not supported")
		}
		return &schema.Reference{Name: name}, nil

	case p.isToken(TokenTypeKeyword):
		return nil, p.errorf("%s is not supported", p.currentToken.Value)
	}
	return nil, p.errorf("expected type, found %s", p.found())
}

// consumeTaggedType parses [class number] [IMPLICIT|EXPLICIT] Type.
func (p *sourceParser) consumeTaggedType() (schema.Type, error) {
	p.consumeToken()
	class := schema.ClassContext
	switch {
	case p.tryConsumeKeyword("UNIVERSAL"):
		class = schema.ClassUniversal
	case p.tryConsumeKeyword("APPLICATION"):
		class = schema.ClassApplication
	case p.tryConsumeKeyword("PRIVATE"):
		class = schema.ClassPrivate
	}
	num, err := p.consume(TokenTypeNumber)
	if err != nil {
		return nil, err
	}
	n, err := p.smallNumber(num)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(TokenTypeRightBracket); err != nil {
		return nil, err
	}

	implicit := p.tagDefault != schema.TagsExplicit
	switch {
	case p.tryConsumeKeyword("IMPLICIT"):
		implicit = true
	case p.tryConsumeKeyword("EXPLICIT"):
		implicit = false
	}
	inner, err := p.consumeType()
	if err != nil {
		return nil, err
	}
	return &schema.Tagged{Class: class, Number: n, Implicit: implicit, Type: inner}, nil
}

func (p *sourceParser) smallNumber(tok Lexeme) (int, error) {
	var n int
	for _, c := range tok.Value {
		n = n*10 + int(c-'0')
		if n > 1<<28 {
			line, col := position(p.input, tok.Position)
			return 0, &SyntaxError{Line: line, Column: col, Msg: fmt.Sprintf("tag number %s too large", tok.Value)}
		}
	}
	return n, nil
}

// consumeSequence parses { Field, ..., [...] } after the SEQUENCE keyword.
func (p *sourceParser) consumeSequence() (schema.Type, error) {
	if _, err := p.consume(TokenTypeLeftBrace); err != nil {
		return nil, err
	}
	seq := &schema.Sequence{}
	p.sequences = append(p.sequences, seq)
	if p.tryConsumeIf(TokenTypeRightBrace) {
		return seq, nil
	}
	for {
		if p.isToken(TokenTypeEllipsis) {
			if seq.Extensible {
				return nil, p.errorf("duplicate extension marker")
			}
			p.consumeToken()
			seq.Extensible = true
		} else {
			if seq.Extensible {
				return nil, p.errorf("extension additions are not supported")
			}
			f, err := p.consumeField()
			if err != nil {
				return nil, err
			}
			seq.Fields = append(seq.Fields, f)
		}

		if p.tryConsumeIf(TokenTypeRightBrace) {
			return seq, nil
		}
		if _, err := p.consume(TokenTypeComma); err != nil {
			if p.isToken(TokenTypeEOF) {
				return nil, p.errorf("unterminated SEQUENCE: expected '}'")
			}
			return nil, err
		}
	}
}

func (p *sourceParser) tryConsumeIf(kind TokenType) bool {
	_, ok := p.tryConsume(kind)
	return ok
}

// consumeField parses identifier Type [OPTIONAL].
func (p *sourceParser) consumeField() (schema.Field, error) {
	if p.isKeyword("COMPONENTS") {
		return schema.Field{}, p.errorf("COMPONENTS OF is not supported")
	}
	if !p.isToken(TokenTypeIdentifier) || startsUpper(p.currentToken.Value) {
		return schema.Field{}, p.errorf("expected field name, found %s", p.found())
	}
	name := p.currentToken.Value
	p.consumeToken()
	t, err := p.consumeType()
	if err != nil {
		return schema.Field{}, err
	}
	f := schema.Field{Name: name, Type: t}
	switch {
	case p.tryConsumeKeyword("OPTIONAL"):
		f.Optional = true
	case p.isKeyword("DEFAULT"):
		return schema.Field{}, p.errorf("DEFAULT is not supported")
	}
	return f, nil
}

// consumeValueConstraint parses ( Range ) after INTEGER.
func (p *sourceParser) consumeValueConstraint() (*schema.Range, error) {
	p.consumeToken()
	r, err := p.consumeRange()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(TokenTypeRightParen); err != nil {
		return nil, err
	}
	return r, nil
}

// consumeSizeConstraint parses ( SIZE ( Range ) ) after a string type.
func (p *sourceParser) consumeSizeConstraint() (*schema.Range, error) {
	p.consumeToken()
	if err := p.consumeKeyword("SIZE"); err != nil {
		return nil, err
	}
	if _, err := p.consume(TokenTypeLeftParen); err != nil {
		return nil, err
	}
	r, err := p.consumeRange()
	if err != nil {
		return nil, err
	}
	for _, closing := range []TokenType{TokenTypeRightParen, TokenTypeRightParen} {
		if _, err := p.consume(closing); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// consumeRange parses lower [.. upper] [, ...].
func (p *sourceParser) consumeRange() (*schema.Range, error) {
	lower, err := p.consumeBound("MIN")
	if err != nil {
		return nil, err
	}
	upper := lower
	if p.tryConsumeIf(TokenTypeRange) {
		if upper, err = p.consumeBound("MAX"); err != nil {
			return nil, err
		}
	} else if lower == nil {
		return nil, p.errorf("MIN needs an upper bound")
	}
	r := &schema.Range{Lower: lower, Upper: upper}
	if p.tryConsumeIf(TokenTypeComma) {
		if _, err := p.consume(TokenTypeEllipsis); err != nil {
			return nil, err
		}
		r.Extensible = true
	}
	return r, nil
}

// consumeBound parses a signed number or the open keyword (MIN or MAX),
// which yields a nil bound.
func (p *sourceParser) consumeBound(open string) (*big.Int, error) {
	if p.tryConsumeKeyword(open) {
		return nil, nil
	}
	neg := p.tryConsumeIf(TokenTypeMinus)
	tok, err := p.consume(TokenTypeNumber)
	if err != nil {
		return nil, err
	}
	n, _ := new(big.Int).SetString(tok.Value, 10)
	if neg {
		n.Neg(n)
	}
	return n, nil
}

func isStringKeyword(word string) bool {
	_, ok := schema.LookupStringKind(word)
	return ok
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// position converts a byte offset into a 1-based line and column.
func position(input string, offset int) (int, int) {
	if offset > len(input) {
		offset = len(input)
	}
	before := input[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndexByte(before, '\n')
	return line, col
}
