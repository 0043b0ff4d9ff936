package serde

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/plan"
)

// document is the top-level frame written to files and the store.
type document struct {
	Version string          `json:"version"`
	Object  json.RawMessage `json:"object"`
}

// Marshal simplifies v and frames it in a versioned canonical document.
// Equal inputs always produce identical bytes.
func (c *Codec) Marshal(w plan.Worker, v any) ([]byte, error) {
	obj, err := c.Simplify(w, v)
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(document{Version: ir.WireVersion, Object: obj})
}

// Unmarshal is the inverse of Marshal.
func (c *Codec) Unmarshal(w plan.Worker, data []byte) (any, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	if doc.Version != ir.WireVersion {
		return nil, fmt.Errorf("%w: %q (want %q)", ErrVersion, doc.Version, ir.WireVersion)
	}
	return c.Detail(w, doc.Object)
}

// UnmarshalState decodes a document that must hold a state.
func (c *Codec) UnmarshalState(w plan.Worker, data []byte) (*plan.State, error) {
	return unmarshalAs[*plan.State](c, w, data)
}

// UnmarshalPlan decodes a document that must hold a plan.
func (c *Codec) UnmarshalPlan(w plan.Worker, data []byte) (*plan.Plan, error) {
	return unmarshalAs[*plan.Plan](c, w, data)
}

func unmarshalAs[T any](c *Codec, w plan.Worker, data []byte) (T, error) {
	var zero T
	v, err := c.Unmarshal(w, data)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("document holds %T, want %T", v, zero)
	}
	return out, nil
}

// Kind returns the envelope type code of a marshaled document without
// decoding its body.
func Kind(data []byte) (string, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("unmarshal document: %w", err)
	}
	var env ir.Envelope
	if err := json.Unmarshal(doc.Object, &env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env.Type, nil
}
