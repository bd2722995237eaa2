package schema

import "strings"

// Format renders m back to ASN.1 module text. Parsing the result yields a
// module equal to m.
func Format(m *Module) string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteString(" DEFINITIONS")
	if m.TagDefault != TagsExplicit {
		b.WriteString(" " + m.TagDefault.String() + " TAGS")
	}
	b.WriteString(" ::= BEGIN\n")
	for _, def := range m.Types {
		b.WriteString("\n    ")
		b.WriteString(def.Name)
		b.WriteString(" ::= ")
		writeType(&b, def.Type, 1)
		b.WriteByte('\n')
	}
	b.WriteString("\nEND\n")
	return b.String()
}

func writeType(b *strings.Builder, t Type, depth int) {
	seq, ok := t.(*Sequence)
	if !ok {
		b.WriteString(t.String())
		return
	}
	if len(seq.Fields) == 0 && !seq.Extensible {
		b.WriteString("SEQUENCE {}")
		return
	}
	indent := strings.Repeat("    ", depth+1)
	b.WriteString("SEQUENCE {\n")
	for i, f := range seq.Fields {
		b.WriteString(indent)
		b.WriteString(f.Name)
		b.WriteByte(' ')
		writeType(b, f.Type, depth+1)
		if f.Optional {
			b.WriteString(" OPTIONAL")
		}
		if i < len(seq.Fields)-1 || seq.Extensible {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	if seq.Extensible {
		b.WriteString(indent + "...\n")
	}
	b.WriteString(strings.Repeat("    ", depth) + "}")
}
