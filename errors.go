package asnkit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNilModule is returned by Compile when no module is given.
var ErrNilModule = errors.New("asnkit: nil module")

// UnknownFormatError is returned by Compile for a format name that is not
// registered.
type UnknownFormatError struct {
	Format string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("asnkit: unknown format %q (known: %s)", e.Format, strings.Join(Formats(), ", "))
}

// UnknownTypeError is returned by Binding calls naming a type the module
// does not define.
type UnknownTypeError struct {
	Module string
	Type   string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("asnkit: module %s has no type %q", e.Module, e.Type)
}
