package asnkit

import (
	"sort"

	"github.com/rawbytedev/asnkit/pkg/ber"
	"github.com/rawbytedev/asnkit/pkg/codec"
	"github.com/rawbytedev/asnkit/pkg/jer"
	"github.com/rawbytedev/asnkit/pkg/oer"
	"github.com/rawbytedev/asnkit/pkg/per"
	"github.com/rawbytedev/asnkit/pkg/xer"
)

type constructor func(o options) codec.RuleSet

// formats is fixed at init and only read afterwards.
var formats = map[string]constructor{
	"ber": func(o options) codec.RuleSet {
		return ber.New(ber.Options{MaxDepth: o.maxDepth})
	},
	"der": func(o options) codec.RuleSet {
		return ber.New(ber.Options{Canonical: true, MaxDepth: o.maxDepth})
	},
	"per": func(o options) codec.RuleSet {
		return per.New(per.Options{Aligned: true, MaxDepth: o.maxDepth})
	},
	"uper": func(o options) codec.RuleSet {
		return per.New(per.Options{MaxDepth: o.maxDepth})
	},
	"oer": func(o options) codec.RuleSet {
		return oer.New(oer.Options{MaxDepth: o.maxDepth})
	},
	"xer": func(o options) codec.RuleSet {
		return xer.New(xer.Options{MaxDepth: o.maxDepth})
	},
	"jer": func(o options) codec.RuleSet {
		return jer.New(jer.Options{MaxDepth: o.maxDepth})
	},
}

// Formats returns the registered format names in sorted order.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registered reports whether name is a known format.
func Registered(name string) bool {
	_, ok := formats[name]
	return ok
}

// TextFormat reports whether the format produces human-readable text
// rather than octets.
func TextFormat(name string) bool {
	return name == "xer" || name == "jer"
}
