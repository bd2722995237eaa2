package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const eofRune = -1

// TokenType identifies the type of lexer lexemes.
type TokenType int

const (
	TokenTypeError TokenType = iota // error occurred; value is text of error
	TokenTypeEOF

	TokenTypeKeyword    // SEQUENCE
	TokenTypeIdentifier // question, Question
	TokenTypeNumber     // 123

	TokenTypeAssignment   // ::=
	TokenTypeLeftBrace    // {
	TokenTypeRightBrace   // }
	TokenTypeLeftParen    // (
	TokenTypeRightParen   // )
	TokenTypeLeftBracket  // [
	TokenTypeRightBracket // ]
	TokenTypeComma        // ,
	TokenTypeRange        // ..
	TokenTypeEllipsis     // ...
	TokenTypeMinus        // -
)

var tokenNames = map[TokenType]string{
	TokenTypeError:        "error",
	TokenTypeEOF:          "end of input",
	TokenTypeKeyword:      "keyword",
	TokenTypeIdentifier:   "identifier",
	TokenTypeNumber:       "number",
	TokenTypeAssignment:   "'::='",
	TokenTypeLeftBrace:    "'{'",
	TokenTypeRightBrace:   "'}'",
	TokenTypeLeftParen:    "'('",
	TokenTypeRightParen:   "')'",
	TokenTypeLeftBracket:  "'['",
	TokenTypeRightBracket: "']'",
	TokenTypeComma:        "','",
	TokenTypeRange:        "'..'",
	TokenTypeEllipsis:     "'...'",
	TokenTypeMinus:        "'-'",
}

func (t TokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// keywords holds the ASN.1 reserved words the lexer recognises. Reserved
// words the parser does not support are still keywords so they cannot be
// mistaken for type references.
var keywords = map[string]struct{}{
	"DEFINITIONS": {}, "BEGIN": {}, "END": {},
	"EXPLICIT": {}, "IMPLICIT": {}, "AUTOMATIC": {}, "TAGS": {},
	"EXTENSIBILITY": {}, "IMPLIED": {},
	"INTEGER": {}, "BOOLEAN": {}, "SEQUENCE": {}, "OPTIONAL": {},
	"SIZE": {}, "MIN": {}, "MAX": {},
	"UNIVERSAL": {}, "APPLICATION": {}, "PRIVATE": {},
	"IA5String": {}, "VisibleString": {}, "PrintableString": {},
	"NumericString": {}, "UTF8String": {},

	"SET": {}, "CHOICE": {}, "OF": {}, "ENUMERATED": {}, "OCTET": {},
	"BIT": {}, "STRING": {}, "NULL": {}, "REAL": {}, "OBJECT": {},
	"IDENTIFIER": {}, "DEFAULT": {}, "COMPONENTS": {}, "IMPORTS": {},
	"EXPORTS": {}, "FROM": {}, "WITH": {}, "TRUE": {}, "FALSE": {},
}

// IsKeyword returns whether the specified input string is a reserved keyword.
func IsKeyword(candidate string) bool {
	_, ok := keywords[candidate]
	return ok
}

// Lexeme represents a token returned from scanning the schema text.
type Lexeme struct {
	Kind     TokenType // The type of this lexeme.
	Position int       // The starting byte offset of this token.
	Value    string    // The textual value of this token, or the error message.
}

// stateFn represents the state of the scanner as a function that returns the next state.
type stateFn func(*lexer) stateFn

// lexer is a state-function scanner. It runs synchronously: nextToken
// drives the state machine until a token is queued.
type lexer struct {
	input   string
	state   stateFn
	pos     int // current position in the input
	start   int // start position of this token
	width   int // width of last rune read from input
	pending []Lexeme
}

func newLexer(input string) *lexer {
	return &lexer{input: input, state: lexSource}
}

// nextToken returns the next token from the input. After the end of input
// or an error it keeps returning that last token.
func (l *lexer) nextToken() Lexeme {
	for len(l.pending) == 0 {
		if l.state == nil {
			return Lexeme{Kind: TokenTypeEOF, Position: len(l.input)}
		}
		l.state = l.state(l)
	}
	tok := l.pending[0]
	l.pending = l.pending[1:]
	if tok.Kind == TokenTypeError {
		l.state = nil
		l.pending = nil
	}
	return tok
}

func (l *lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eofRune
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += w
	return r
}

func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

// backup steps back one rune. Can only be called once per call of next.
func (l *lexer) backup() {
	l.pos -= l.width
}

func (l *lexer) value() string {
	return l.input[l.start:l.pos]
}

func (l *lexer) emit(t TokenType) {
	l.pending = append(l.pending, Lexeme{Kind: t, Position: l.start, Value: l.value()})
	l.start = l.pos
}

func (l *lexer) ignore() {
	l.start = l.pos
}

func (l *lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

// errorf queues an error token and terminates the scan.
func (l *lexer) errorf(format string, args ...any) stateFn {
	l.pending = append(l.pending, Lexeme{Kind: TokenTypeError, Position: l.start, Value: fmt.Sprintf(format, args...)})
	return nil
}

// lexSource scans one token, skipping whitespace and comments.
func lexSource(l *lexer) stateFn {
	for {
		switch {
		case l.hasPrefix("--"):
			return lexLineComment
		case l.hasPrefix("/*"):
			return lexBlockComment
		case l.hasPrefix("::="):
			l.pos += 3
			l.emit(TokenTypeAssignment)
			return lexSource
		case l.hasPrefix("..."):
			l.pos += 3
			l.emit(TokenTypeEllipsis)
			return lexSource
		case l.hasPrefix(".."):
			l.pos += 2
			l.emit(TokenTypeRange)
			return lexSource
		}

		r := l.next()
		switch {
		case r == eofRune:
			l.emit(TokenTypeEOF)
			return nil
		case isSpace(r):
			l.ignore()
		case r == '{':
			l.emit(TokenTypeLeftBrace)
			return lexSource
		case r == '}':
			l.emit(TokenTypeRightBrace)
			return lexSource
		case r == '(':
			l.emit(TokenTypeLeftParen)
			return lexSource
		case r == ')':
			l.emit(TokenTypeRightParen)
			return lexSource
		case r == '[':
			l.emit(TokenTypeLeftBracket)
			return lexSource
		case r == ']':
			l.emit(TokenTypeRightBracket)
			return lexSource
		case r == ',':
			l.emit(TokenTypeComma)
			return lexSource
		case r == '-':
			l.emit(TokenTypeMinus)
			return lexSource
		case isDigit(r):
			l.backup()
			return lexNumber
		case isLetter(r):
			l.backup()
			return lexIdentifierOrKeyword
		default:
			return l.errorf("unrecognized character %#U", r)
		}
	}
}

// lexLineComment skips "--" up to the closing "--" or the end of the line.
func lexLineComment(l *lexer) stateFn {
	l.pos += 2
	for {
		if l.hasPrefix("--") {
			l.pos += 2
			break
		}
		r := l.next()
		if r == eofRune || r == '\n' || r == '\r' {
			break
		}
	}
	l.ignore()
	return lexSource
}

// lexBlockComment skips a possibly nested /* ... */ comment.
func lexBlockComment(l *lexer) stateFn {
	depth := 0
	for {
		switch {
		case l.hasPrefix("/*"):
			l.pos += 2
			depth++
		case l.hasPrefix("*/"):
			l.pos += 2
			depth--
			if depth == 0 {
				l.ignore()
				return lexSource
			}
		default:
			if l.next() == eofRune {
				return l.errorf("unterminated comment")
			}
		}
	}
}

func lexNumber(l *lexer) stateFn {
	for isDigit(l.peek()) {
		l.next()
	}
	if isLetter(l.peek()) {
		l.next()
		return l.errorf("malformed number %q", l.value())
	}
	l.emit(TokenTypeNumber)
	return lexSource
}

// lexIdentifierOrKeyword scans letters, digits and single hyphens. A hyphen
// may not end the name or follow another hyphen.
func lexIdentifierOrKeyword(l *lexer) stateFn {
	for {
		r := l.peek()
		if isLetter(r) || isDigit(r) {
			l.next()
			continue
		}
		if r == '-' && l.pos+1 < len(l.input) {
			if n := rune(l.input[l.pos+1]); isLetter(n) || isDigit(n) {
				l.pos++
				continue
			}
		}
		break
	}
	if IsKeyword(l.value()) {
		l.emit(TokenTypeKeyword)
	} else {
		l.emit(TokenTypeIdentifier)
	}
	return lexSource
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' || r == '\v'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
