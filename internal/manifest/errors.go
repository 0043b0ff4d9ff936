package manifest

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes reported by LoadError.
const (
	ErrCodeGeneric      = "M001" // Generic/unknown error
	ErrCodeNotFound     = "M002" // Path not found
	ErrCodeNoFiles      = "M003" // No CUE files found
	ErrCodeLoadFailed   = "M004" // CUE load failed
	ErrCodeBuildFailed  = "M005" // CUE build failed
	ErrCodeNoPlans      = "M006" // No plan declared
	ErrCodeInvalidState = "M101" // Bad tensor declaration
	ErrCodeUnknownPlan  = "M102" // Nested reference to an undeclared plan
	ErrCodeCycle        = "M103" // Plans nest each other
	ErrCodeInvalidField = "M104" // Field has the wrong type or range
)

// LoadError represents an error found while loading a manifest.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
