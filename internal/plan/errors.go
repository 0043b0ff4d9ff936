package plan

import (
	"errors"
	"fmt"

	"github.com/roach88/planstate/internal/ir"
)

var (
	// ErrMalformed is returned when a serialized state cannot be paired up.
	ErrMalformed = errors.New("malformed state")

	// ErrNoBlueprint is returned by Build on a plan without a blueprint.
	ErrNoBlueprint = errors.New("plan has no blueprint")

	// ErrNotFetchable is returned by Get when a bound value has no remote form.
	ErrNotFetchable = errors.New("value cannot be fetched")
)

// UnboundError is the panic value raised when a bound value is required
// from an uninstantiated placeholder. It signals a programming error:
// callers must fully instantiate a State before extracting its values.
type UnboundError struct {
	PlaceholderID ir.ID
}

// Error implements the error interface.
func (e *UnboundError) Error() string {
	return fmt.Sprintf("placeholder %s is not instantiated", e.PlaceholderID)
}

// BuildError captures the plan whose blueprint failed during tracing.
type BuildError struct {
	PlanID ir.ID
	Name   string
	Err    error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("build plan %s (%s): %v", e.Name, e.PlanID, e.Err)
}

// Unwrap enables error unwrapping for errors.Is and errors.As.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a malformed-state error.
// Uses errors.Is to handle wrapped errors.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
