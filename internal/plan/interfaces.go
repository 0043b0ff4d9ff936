package plan

import (
	"context"
	"encoding/json"

	"github.com/roach88/planstate/internal/ir"
)

// Value is anything bindable into a placeholder.
type Value = ir.Value

// GradientBuffer is implemented by values that can hold a gradient.
type GradientBuffer interface {
	// EnsureGrad allocates a zero-initialized gradient buffer if the value
	// is trainable and has none.
	EnsureGrad() error
}

// Fetcher is implemented by values that may live on another worker.
type Fetcher interface {
	// Fetch replaces the remote reference with local data, in place.
	Fetch(ctx context.Context) error
}

// Wrapper is implemented by values that wrap another value. Placeholders
// bind the wrapped value, not the wrapper.
type Wrapper interface {
	Unwrap() Value
}

// Owner is the context a State belongs to: a worker, or a bare Tracer in
// tests. Its tracer tells a State whether an ancestor trace is active.
type Owner interface {
	Tracer() *Tracer
}

// Registry maps global identities to live values on a receiving context.
type Registry interface {
	Register(v Value, id ir.ID) error
}

// Worker is a context that both owns states and registers values.
type Worker interface {
	Owner
	Registry
}

// Deregisterer is implemented by registries that can drop a registration.
// Detail uses it to undo a partially applied state.
type Deregisterer interface {
	Deregister(ctx context.Context, id ir.ID) error
}

// Scoped is implemented by a Worker that stands in for another one for
// the span of a single call, typically to carry that call's context into
// Register. Objects decoded through it are owned by Unscoped().
type Scoped interface {
	Worker
	Unscoped() Worker
}

// OwnerOf returns the Owner that objects decoded through w belong to.
func OwnerOf(w Worker) Owner {
	if s, ok := w.(Scoped); ok {
		return s.Unscoped()
	}
	return w
}

// Codec is the generic simplify/detail layer. State delegates all wire
// encoding to it.
type Codec interface {
	Simplify(w Worker, v any) (json.RawMessage, error)
	Detail(w Worker, data json.RawMessage) (any, error)
}
