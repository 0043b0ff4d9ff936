package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/planstate/internal/ir"
)

// State is the ordered collection of placeholders owned by a plan or a
// worker. Insertion order is significant: it defines serialization order
// and the positional pairing with the parallel value sequence.
type State struct {
	owner        Owner
	placeholders []*Placeholder
}

// NewState creates a state owned by owner with an initial placeholder
// sequence. The sequence is copied; the placeholders are not.
func NewState(owner Owner, placeholders ...*Placeholder) *State {
	ps := make([]*Placeholder, len(placeholders))
	copy(ps, placeholders)
	return &State{owner: owner, placeholders: ps}
}

// Owner returns the context this state belongs to.
func (s *State) Owner() Owner {
	return s.owner
}

// Placeholders returns the placeholder sequence. The returned slice is a
// copy; the placeholders are shared.
func (s *State) Placeholders() []*Placeholder {
	return s.snapshot()
}

// Len returns the number of placeholders.
func (s *State) Len() int {
	return len(s.placeholders)
}

// Append adds placeholders at the end of the sequence.
func (s *State) Append(placeholders ...*Placeholder) {
	for _, ph := range placeholders {
		s.appendPlaceholder(ph)
	}
}

func (s *State) appendPlaceholder(ph *Placeholder) {
	s.placeholders = append(s.placeholders, ph)
}

func (s *State) snapshot() []*Placeholder {
	out := make([]*Placeholder, len(s.placeholders))
	copy(out, s.placeholders)
	return out
}

// Tensors returns the bound values of every placeholder, in order.
// Panics with *UnboundError if any placeholder is not instantiated.
func (s *State) Tensors() []Value {
	values := make([]Value, 0, len(s.placeholders))
	for _, ph := range s.placeholders {
		values = append(values, ph.MustValue())
	}
	return values
}

// CloneStateDict maps each placeholder identity to an independent deep
// copy of its bound value.
// Panics with *UnboundError if any placeholder is not instantiated.
func (s *State) CloneStateDict() map[ir.ID]Value {
	dict := make(map[ir.ID]Value, len(s.placeholders))
	for _, ph := range s.placeholders {
		dict[ph.ID()] = ph.MustValue().CloneValue()
	}
	return dict
}

// Copy returns a state with the same owner and a new sequence holding the
// same placeholders. Values are not cloned.
func (s *State) Copy() *State {
	return NewState(s.owner, s.placeholders...)
}

// Read returns the state's local values.
//
// If the owner is tracing an ancestor plan whose state is not s, every
// placeholder of s is first promoted into the ancestor (see Frame). The
// result excludes placeholders tagged "#inner": those were promoted into s
// by a deeper trace and are materialized at this level instead.
//
// Unlike Tensors, Read does not require every placeholder to be bound: an
// unbound slot yields a nil Value at its position.
func (s *State) Read() []Value {
	t := s.tracer()
	var frame *Frame
	if t != nil {
		frame = t.ActiveFrame()
	}
	nested := frame != nil && frame.Plan().State() != s
	if nested {
		frame.promote(s)
	}
	if t != nil {
		t.metrics.RecordRead(nested)
	}

	var values []Value
	for _, ph := range s.placeholders {
		if ph.Tags().Has(ir.FlagInner) {
			continue
		}
		v, _ := ph.Value()
		values = append(values, v)
	}
	return values
}

func (s *State) tracer() *Tracer {
	if s.owner == nil {
		return nil
	}
	return s.owner.Tracer()
}

// Set rebinds, in place, every placeholder whose identity is a key of dict.
// Keys without a matching placeholder are ignored.
func (s *State) Set(dict map[ir.ID]Value) {
	for id, v := range dict {
		for _, ph := range s.placeholders {
			if ph.ID() == id {
				ph.Instantiate(v)
			}
		}
	}
}

// Get fetches every bound value from its remote location, in place.
// Valid only when the values are remote references; the first failure is
// returned unchanged.
func (s *State) Get(ctx context.Context) error {
	for _, v := range s.Tensors() {
		f, ok := v.(Fetcher)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFetchable, v.ID())
		}
		if err := f.Fetch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// String renders the state as "<State: p1 p2 ...>".
func (s *State) String() string {
	var b strings.Builder
	b.WriteString("<State:")
	for _, ph := range s.placeholders {
		b.WriteByte(' ')
		b.WriteString(ph.String())
	}
	b.WriteByte('>')
	return b.String()
}

// CreateGradIfMissing guarantees v has a gradient buffer before it goes
// through transformations that need one. Values without gradient support
// are left untouched; allocation failures propagate.
func CreateGradIfMissing(v Value) error {
	gb, ok := v.(GradientBuffer)
	if !ok {
		return nil
	}
	return gb.EnsureGrad()
}

// Simplify encodes s into its 2-tuple wire form. The placeholder sequence
// and the value sequence are simplified independently; index i of both
// halves describes the same slot.
// Panics with *UnboundError if any placeholder is not instantiated.
func Simplify(c Codec, w Worker, s *State) (ir.StateWire, error) {
	placeholders, err := c.Simplify(w, s.Placeholders())
	if err != nil {
		return ir.StateWire{}, fmt.Errorf("simplify state placeholders: %w", err)
	}
	values, err := c.Simplify(w, s.Tensors())
	if err != nil {
		return ir.StateWire{}, fmt.Errorf("simplify state values: %w", err)
	}
	return ir.StateWire{placeholders, values}, nil
}

// Detail reconstructs a state owned by w from its wire form.
//
// Both halves are detailed independently. Every value is registered with
// w under its own identity, then bound to the placeholder at the same
// index. Pairing is strictly positional. Halves of different lengths are
// rejected with ErrMalformed before anything is registered.
//
// If a registration fails and w implements Deregisterer, the values this
// call already registered are deregistered before the error is returned.
// The resulting state is owned by OwnerOf(w).
func Detail(c Codec, w Worker, wire ir.StateWire) (*State, error) {
	rawPlaceholders, err := c.Detail(w, wire[0])
	if err != nil {
		return nil, fmt.Errorf("detail state placeholders: %w", err)
	}
	rawValues, err := c.Detail(w, wire[1])
	if err != nil {
		return nil, fmt.Errorf("detail state values: %w", err)
	}

	placeholders, err := asPlaceholders(rawPlaceholders)
	if err != nil {
		return nil, err
	}
	values, err := asValues(rawValues)
	if err != nil {
		return nil, err
	}
	if len(placeholders) != len(values) {
		return nil, malformed("%d placeholders but %d values", len(placeholders), len(values))
	}

	for i, v := range values {
		if err := w.Register(v, v.ID()); err != nil {
			err = fmt.Errorf("register %s: %w", v.ID(), err)
			return nil, rollback(w, values[:i], err)
		}
	}
	for i, ph := range placeholders {
		ph.Instantiate(values[i])
	}

	return NewState(OwnerOf(w), placeholders...), nil
}

// rollback deregisters values in reverse order and returns cause joined
// with any deregistration failures. It runs on a fresh context so that a
// cancelled caller still gets its registry restored.
func rollback(w Worker, values []Value, cause error) error {
	d, ok := w.(Deregisterer)
	if !ok {
		return cause
	}
	errs := []error{cause}
	for i := len(values) - 1; i >= 0; i-- {
		if err := d.Deregister(context.Background(), values[i].ID()); err != nil {
			errs = append(errs, fmt.Errorf("rollback %s: %w", values[i].ID(), err))
		}
	}
	return errors.Join(errs...)
}

func asPlaceholders(raw any) ([]*Placeholder, error) {
	switch v := raw.(type) {
	case []*Placeholder:
		return v, nil
	case []any:
		out := make([]*Placeholder, len(v))
		for i, elem := range v {
			ph, ok := elem.(*Placeholder)
			if !ok {
				return nil, malformed("placeholder sequence element %d is %T", i, elem)
			}
			out[i] = ph
		}
		return out, nil
	default:
		return nil, malformed("placeholder sequence is %T", raw)
	}
}

func asValues(raw any) ([]Value, error) {
	switch v := raw.(type) {
	case []Value:
		return v, nil
	case []any:
		out := make([]Value, len(v))
		for i, elem := range v {
			val, ok := elem.(Value)
			if !ok {
				return nil, malformed("value sequence element %d is %T", i, elem)
			}
			out[i] = val
		}
		return out, nil
	default:
		return nil, malformed("value sequence is %T", raw)
	}
}
