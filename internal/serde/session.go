package serde

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/tensor"
)

// Session decodes envelopes while sharing placeholder instances.
//
// Two placeholders with the same id and the same non-empty tag key decode
// to the same *plan.Placeholder. Distinct placeholders that happen to carry
// equal tags stay distinct. Untagged placeholders are never shared, and
// nested states of a plan are decoded in sessions of their own.
//
// A Session is not safe for concurrent use.
type Session struct {
	codec        *Codec
	placeholders map[string]*plan.Placeholder
}

// NewSession opens a decode session.
func (c *Codec) NewSession() *Session {
	return &Session{
		codec:        c,
		placeholders: make(map[string]*plan.Placeholder),
	}
}

// Simplify delegates to the codec so a Session can stand in for it.
func (s *Session) Simplify(w plan.Worker, v any) (json.RawMessage, error) {
	return s.codec.Simplify(w, v)
}

// Detail decodes one envelope.
//
// Returns *plan.Placeholder, *tensor.Tensor, *plan.State, *plan.Plan, or
// []any for lists.
func (s *Session) Detail(w plan.Worker, data json.RawMessage) (any, error) {
	var env ir.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.codec.metrics.RecordCodec("detail", "unknown", 0, err)
		return nil, fmt.Errorf("detail envelope: %w", err)
	}

	v, err := s.detailBody(w, env)
	s.codec.metrics.RecordCodec("detail", env.Type, len(data), err)
	if err != nil {
		return nil, &DecodeError{Type: env.Type, Err: err}
	}
	return v, nil
}

func (s *Session) detailBody(w plan.Worker, env ir.Envelope) (any, error) {
	switch env.Type {
	case ir.TypePlaceholder:
		var pw ir.PlaceholderWire
		if err := json.Unmarshal(env.Body, &pw); err != nil {
			return nil, err
		}
		return s.placeholder(pw)
	case ir.TypeTensor:
		var tw ir.TensorWire
		if err := json.Unmarshal(env.Body, &tw); err != nil {
			return nil, err
		}
		return detailTensor(w, tw)
	case ir.TypeList:
		var items []json.RawMessage
		if err := json.Unmarshal(env.Body, &items); err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := s.Detail(w, item)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	case ir.TypeState:
		var sw ir.StateWire
		if err := json.Unmarshal(env.Body, &sw); err != nil {
			return nil, err
		}
		return plan.Detail(s, w, sw)
	case ir.TypePlan:
		var pw ir.PlanWire
		if err := json.Unmarshal(env.Body, &pw); err != nil {
			return nil, err
		}
		return s.plan(w, pw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func (s *Session) placeholder(pw ir.PlaceholderWire) (*plan.Placeholder, error) {
	tags, err := ir.ParseTags(pw.Tags)
	if err != nil {
		return nil, err
	}
	key := sessionKey(pw.ID, tags)
	if key != "" {
		if ph, ok := s.placeholders[key]; ok {
			s.codec.logger.Debug("placeholder shared within session", "id", ph.ID(), "tags", tags.Key())
			return ph, nil
		}
	}
	ph := plan.NewPlaceholder(pw.ID, tags)
	ph.Description = pw.Description
	if key != "" {
		s.placeholders[key] = ph
	}
	return ph, nil
}

// sessionKey is empty for placeholders that must never be shared.
func sessionKey(id ir.ID, tags ir.Tags) string {
	if id.IsZero() || tags.IsZero() {
		return ""
	}
	return string(id) + "|" + tags.Key()
}

func detailTensor(w plan.Worker, tw ir.TensorWire) (*tensor.Tensor, error) {
	var t *tensor.Tensor
	if tw.Location != "" {
		var resolver tensor.Resolver
		if r, ok := w.(tensor.Resolver); ok {
			resolver = r
		}
		t = tensor.NewPointer(tw.ID, tw.Shape, tw.Location, resolver)
	} else {
		var err error
		t, err = tensor.New(tw.ID, tw.Shape, tw.Data)
		if err != nil {
			return nil, err
		}
	}
	if tw.RequiresGrad {
		t.RequireGrad()
	}
	if tw.Grad != nil {
		g, err := detailTensor(w, *tw.Grad)
		if err != nil {
			return nil, fmt.Errorf("grad: %w", err)
		}
		t.SetGrad(g)
	}
	return t, nil
}

func (s *Session) plan(w plan.Worker, pw ir.PlanWire) (*plan.Plan, error) {
	rawState, err := s.Detail(w, pw.State)
	if err != nil {
		return nil, fmt.Errorf("state: %w", err)
	}
	state, ok := rawState.(*plan.State)
	if !ok {
		return nil, fmt.Errorf("state is %T", rawState)
	}

	nested, err := s.nestedStates(w, pw.NestedStates)
	if err != nil {
		return nil, err
	}
	inputs, err := detailList[*plan.Placeholder](s, w, pw.Inputs, "inputs")
	if err != nil {
		return nil, err
	}
	outputs, err := detailList[*plan.Placeholder](s, w, pw.Outputs, "outputs")
	if err != nil {
		return nil, err
	}

	return plan.New(plan.OwnerOf(w),
		plan.WithID(pw.ID),
		plan.WithName(pw.Name),
		plan.WithState(state),
		plan.WithIncludeState(pw.IncludeState),
		plan.WithBuilt(pw.IsBuilt),
		plan.WithTags(pw.Tags...),
		plan.WithDescription(pw.Description),
		plan.WithNestedStates(nested...),
		plan.WithInputs(inputs...),
		plan.WithOutputs(outputs...),
		plan.WithLogger(s.codec.logger),
	), nil
}

// nestedStates decodes each nested state in its own session, so nothing
// from the outer plan is shared into it.
func (s *Session) nestedStates(w plan.Worker, data json.RawMessage) ([]*plan.State, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env ir.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("nested states: %w", err)
	}
	if env.Type != ir.TypeList {
		return nil, fmt.Errorf("nested states: expected list, got %q", env.Type)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(env.Body, &items); err != nil {
		return nil, fmt.Errorf("nested states: %w", err)
	}
	out := make([]*plan.State, len(items))
	for i, item := range items {
		v, err := s.codec.NewSession().Detail(w, item)
		if err != nil {
			return nil, fmt.Errorf("nested state %d: %w", i, err)
		}
		st, ok := v.(*plan.State)
		if !ok {
			return nil, fmt.Errorf("nested state %d: unexpected %T", i, v)
		}
		out[i] = st
	}
	return out, nil
}

// detailList decodes a list envelope whose elements must all be T.
// An absent field decodes to an empty list.
func detailList[T any](s *Session, w plan.Worker, data json.RawMessage, what string) ([]T, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	raw, err := s.Detail(w, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected list, got %T", what, raw)
	}
	out := make([]T, len(items))
	for i, item := range items {
		v, ok := item.(T)
		if !ok {
			return nil, fmt.Errorf("%s element %d: unexpected %T", what, i, item)
		}
		out[i] = v
	}
	return out, nil
}
