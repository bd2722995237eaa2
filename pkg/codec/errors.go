package codec

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated        = errors.New("truncated input")
	ErrInvalidTag       = errors.New("invalid tag")
	ErrInvalidLength    = errors.New("invalid length")
	ErrNonCanonical     = errors.New("non-canonical encoding")
	ErrInvalidCharacter = errors.New("invalid character")
	ErrInvalidValue     = errors.New("invalid value")
	ErrOutOfRange       = errors.New("value out of range")
	ErrMissingField     = errors.New("missing mandatory field")
	ErrUnknownField     = errors.New("unknown field")
	ErrTypeMismatch     = errors.New("value does not match type")
	ErrDepthExceeded    = errors.New("maximum nesting depth exceeded")
	ErrUnsupported      = errors.New("unsupported construct")
)

// EncodeError reports a value whose shape does not fit the schema type it is
// encoded against. Path names the offending component, Question.id.
type EncodeError struct {
	Format string
	Path   string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: encode: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("%s: encode %s: %v", e.Format, e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports input that does not follow the format's grammar for
// the requested type. Offset is in bytes from the start of the input.
type DecodeError struct {
	Format string
	Path   string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: decode at offset %d: %v", e.Format, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: decode %s at offset %d: %v", e.Format, e.Path, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TrailingDataError reports bytes left over after a complete top-level
// value was decoded.
type TrailingDataError struct {
	Format   string
	Consumed int
	Total    int
}

func (e *TrailingDataError) Error() string {
	return fmt.Sprintf("%s: %d trailing bytes after value (consumed %d of %d)",
		e.Format, e.Total-e.Consumed, e.Consumed, e.Total)
}
