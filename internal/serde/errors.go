package serde

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned when simplifying a Go type with no wire form.
	ErrUnsupported = errors.New("unsupported type")

	// ErrUnknownType is returned when an envelope carries an unknown type code.
	ErrUnknownType = errors.New("unknown envelope type")

	// ErrVersion is returned when a document was written by another wire version.
	ErrVersion = errors.New("unsupported wire version")
)

// DecodeError reports which envelope type failed to decode.
type DecodeError struct {
	Type string
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("detail %s: %v", e.Type, e.Err)
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
