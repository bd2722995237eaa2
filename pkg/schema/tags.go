package schema

import "fmt"

// Universal tag numbers of the builtin types.
const (
	UniversalBoolean         = 1
	UniversalInteger         = 2
	UniversalOctetString     = 4
	UniversalUTF8String      = 12
	UniversalSequence        = 16
	UniversalNumericString   = 18
	UniversalPrintableString = 19
	UniversalIA5String       = 22
	UniversalVisibleString   = 26
)

// Tag is the class and number that identify an element in the
// tag-length-value encodings.
type Tag struct {
	Class  Class
	Number int
}

func (t Tag) String() string {
	if t.Class == ClassContext {
		return fmt.Sprintf("[%d]", t.Number)
	}
	return fmt.Sprintf("[%s %d]", t.Class, t.Number)
}

// UniversalTag returns the universal tag number of the string kind.
func (k StringKind) UniversalTag() int {
	switch k {
	case UTF8String:
		return UniversalUTF8String
	case NumericString:
		return UniversalNumericString
	case PrintableString:
		return UniversalPrintableString
	case VisibleString:
		return UniversalVisibleString
	default:
		return UniversalIA5String
	}
}

// OuterTag returns the tag a value of t carries on the wire: the outermost
// tag prefix, or the universal tag of the builtin type. References are
// followed; ok is false for an unresolved reference.
func OuterTag(t Type) (tag Tag, ok bool) {
	switch tt := Resolve(t).(type) {
	case *Tagged:
		return Tag{Class: tt.Class, Number: tt.Number}, true
	case *Integer:
		return Tag{Class: ClassUniversal, Number: UniversalInteger}, true
	case *Boolean:
		return Tag{Class: ClassUniversal, Number: UniversalBoolean}, true
	case *CharString:
		return Tag{Class: ClassUniversal, Number: tt.StringKind.UniversalTag()}, true
	case *Sequence:
		return Tag{Class: ClassUniversal, Number: UniversalSequence}, true
	}
	return Tag{}, false
}
