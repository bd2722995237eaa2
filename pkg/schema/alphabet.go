package schema

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// StringKind selects one of the restricted character string types.
type StringKind int

const (
	IA5String StringKind = iota
	VisibleString
	PrintableString
	NumericString
	UTF8String
)

var stringKindNames = map[StringKind]string{
	IA5String:       "IA5String",
	VisibleString:   "VisibleString",
	PrintableString: "PrintableString",
	NumericString:   "NumericString",
	UTF8String:      "UTF8String",
}

// LookupStringKind maps an ASN.1 type keyword to its StringKind.
func LookupStringKind(name string) (StringKind, bool) {
	for k, n := range stringKindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

func (k StringKind) String() string {
	if n, ok := stringKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("StringKind(%d)", int(k))
}

// alphabets holds the permitted characters of every known-multiplier kind,
// sorted by code point.
var alphabets = map[StringKind]string{
	IA5String:       rangeString(0, 127),
	VisibleString:   rangeString(32, 126),
	PrintableString: " '()+,-./0123456789:=?ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz",
	NumericString:   " 0123456789",
}

func rangeString(lo, hi byte) string {
	var b strings.Builder
	for c := int(lo); c <= int(hi); c++ {
		b.WriteByte(byte(c))
	}
	return b.String()
}

// Alphabet returns the permitted characters sorted by code point. It is
// empty for UTF8String, whose characters are not a fixed-width set.
func (k StringKind) Alphabet() string {
	return alphabets[k]
}

// KnownMultiplier reports whether every character maps to a single octet.
func (k StringKind) KnownMultiplier() bool {
	_, ok := alphabets[k]
	return ok
}

// Permits reports whether r belongs to the kind's alphabet.
func (k StringKind) Permits(r rune) bool {
	if k == UTF8String {
		return utf8.ValidRune(r)
	}
	if r < 0 || r > 127 {
		return false
	}
	return strings.IndexByte(alphabets[k], byte(r)) >= 0
}

// CharError reports a character outside a permitted alphabet.
type CharError struct {
	Kind   StringKind
	Char   rune
	Offset int
}

func (e *CharError) Error() string {
	return fmt.Sprintf("schema: character %q at offset %d not permitted in %s", e.Char, e.Offset, e.Kind)
}

// Validate checks every character of s against the kind's alphabet.
func (k StringKind) Validate(s string) error {
	if k == UTF8String {
		if !utf8.ValidString(s) {
			return &CharError{Kind: k, Char: utf8.RuneError, Offset: invalidUTF8Offset(s)}
		}
		return nil
	}
	for i := 0; i < len(s); i++ {
		if !k.Permits(rune(s[i])) {
			r, _ := utf8.DecodeRuneInString(s[i:])
			return &CharError{Kind: k, Char: r, Offset: i}
		}
	}
	return nil
}

func invalidUTF8Offset(s string) int {
	for i := 0; i < len(s); {
		r, n := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && n <= 1 {
			return i
		}
		i += n
	}
	return len(s)
}
