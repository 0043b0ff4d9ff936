package serde

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/metrics"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/tensor"
)

// Codec implements plan.Codec over JSON envelopes.
//
// A Codec holds no decode state and is safe for concurrent use; each
// Detail call runs in its own Session.
type Codec struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Codec.
type Option func(*Codec)

// WithMetrics records every simplify and detail in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Codec) { c.metrics = m }
}

// WithLogger sets the logger for decode diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// New creates a codec.
func New(opts ...Option) *Codec {
	c := &Codec{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Simplify encodes v as an envelope.
//
// Supported: *plan.Placeholder, *tensor.Tensor, *plan.State, *plan.Plan,
// and slices of those ([]*plan.Placeholder, []plan.Value, []*plan.State,
// []any).
// Panics with *plan.UnboundError when a state holds unbound placeholders.
func (c *Codec) Simplify(w plan.Worker, v any) (json.RawMessage, error) {
	typ, body, err := c.simplifyBody(w, v)
	if err != nil {
		c.metrics.RecordCodec("simplify", typ, 0, err)
		return nil, err
	}
	out, err := json.Marshal(ir.Envelope{Type: typ, Body: body})
	c.metrics.RecordCodec("simplify", typ, len(out), err)
	if err != nil {
		return nil, fmt.Errorf("simplify %s: %w", typ, err)
	}
	return out, nil
}

func (c *Codec) simplifyBody(w plan.Worker, v any) (string, json.RawMessage, error) {
	switch x := v.(type) {
	case *plan.Placeholder:
		body, err := json.Marshal(placeholderWire(x))
		return ir.TypePlaceholder, body, err
	case *tensor.Tensor:
		body, err := json.Marshal(tensorWire(x))
		return ir.TypeTensor, body, err
	case *plan.State:
		sw, err := plan.Simplify(c, w, x)
		if err != nil {
			return ir.TypeState, nil, err
		}
		body, err := json.Marshal(sw)
		return ir.TypeState, body, err
	case *plan.Plan:
		body, err := c.simplifyPlan(w, x)
		return ir.TypePlan, body, err
	case []*plan.Placeholder:
		return c.simplifyList(w, len(x), func(i int) any { return x[i] })
	case []plan.Value:
		return c.simplifyList(w, len(x), func(i int) any { return x[i] })
	case []*plan.State:
		return c.simplifyList(w, len(x), func(i int) any { return x[i] })
	case []any:
		return c.simplifyList(w, len(x), func(i int) any { return x[i] })
	default:
		return "unknown", nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

func (c *Codec) simplifyList(w plan.Worker, n int, at func(int) any) (string, json.RawMessage, error) {
	items := make([]json.RawMessage, n)
	for i := 0; i < n; i++ {
		item, err := c.Simplify(w, at(i))
		if err != nil {
			return ir.TypeList, nil, fmt.Errorf("list element %d: %w", i, err)
		}
		items[i] = item
	}
	body, err := json.Marshal(items)
	return ir.TypeList, body, err
}

func (c *Codec) simplifyPlan(w plan.Worker, p *plan.Plan) (json.RawMessage, error) {
	state, err := c.Simplify(w, p.State())
	if err != nil {
		return nil, fmt.Errorf("plan state: %w", err)
	}
	nested, err := c.Simplify(w, p.NestedStates())
	if err != nil {
		return nil, fmt.Errorf("plan nested states: %w", err)
	}
	inputs, err := c.Simplify(w, p.Inputs())
	if err != nil {
		return nil, fmt.Errorf("plan inputs: %w", err)
	}
	outputs, err := c.Simplify(w, p.Outputs())
	if err != nil {
		return nil, fmt.Errorf("plan outputs: %w", err)
	}
	return json.Marshal(ir.PlanWire{
		ID:           p.ID(),
		Name:         p.Name(),
		State:        state,
		IncludeState: p.IncludeState(),
		IsBuilt:      p.IsBuilt(),
		Tags:         p.Tags(),
		Description:  p.Description(),
		NestedStates: nested,
		Inputs:       inputs,
		Outputs:      outputs,
	})
}

// Detail decodes one envelope in a fresh Session.
func (c *Codec) Detail(w plan.Worker, data json.RawMessage) (any, error) {
	return c.NewSession().Detail(w, data)
}

func placeholderWire(p *plan.Placeholder) ir.PlaceholderWire {
	return ir.PlaceholderWire{
		ID:          p.ID(),
		Tags:        p.Tags().Strings(),
		Description: p.Description,
	}
}

func tensorWire(t *tensor.Tensor) ir.TensorWire {
	tw := ir.TensorWire{
		ID:           t.ID(),
		Shape:        t.Shape(),
		RequiresGrad: t.IsParameter(),
		Location:     t.Location(),
	}
	if !t.IsRemote() {
		tw.Data = t.Data()
	}
	if g := t.Grad(); g != nil {
		gw := tensorWire(g)
		tw.Grad = &gw
	}
	return tw
}
