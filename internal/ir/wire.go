package ir

import "encoding/json"

// Envelope type codes. Every simplified object travels inside an Envelope
// so the decoder can dispatch without out-of-band schema.
const (
	TypePlaceholder = "placeholder"
	TypeTensor      = "tensor"
	TypeList        = "list"
	TypeState       = "state"
	TypePlan        = "plan"
)

// Envelope is the typed frame around every simplified object.
type Envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// PlaceholderWire is the simplified form of a placeholder.
// The bound value never travels with the placeholder.
type PlaceholderWire struct {
	ID          ID       `json:"id"`
	Tags        []string `json:"tags"`
	Description string   `json:"description,omitempty"`
}

// TensorWire is the simplified form of a tensor.
// Location is set for remote references, which carry no data.
type TensorWire struct {
	ID           ID          `json:"id"`
	Shape        []int       `json:"shape"`
	Data         []float64   `json:"data,omitempty"`
	RequiresGrad bool        `json:"requires_grad,omitempty"`
	Grad         *TensorWire `json:"grad,omitempty"`
	Location     string      `json:"location,omitempty"`
}

// StateWire is the 2-tuple (placeholders, values). Index i of both halves
// describes the same logical slot.
type StateWire [2]json.RawMessage

// PlanWire is the simplified form of a plan.
type PlanWire struct {
	ID           ID              `json:"id"`
	Name         string          `json:"name"`
	State        json.RawMessage `json:"state"`
	IncludeState bool            `json:"include_state,omitempty"`
	IsBuilt      bool            `json:"is_built,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Description  string          `json:"description,omitempty"`
	NestedStates json.RawMessage `json:"nested_states"`
	Inputs       json.RawMessage `json:"inputs"`
	Outputs      json.RawMessage `json:"outputs"`
}
