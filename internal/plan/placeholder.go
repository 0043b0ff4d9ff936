package plan

import (
	"fmt"

	"github.com/roach88/planstate/internal/ir"
)

// Placeholder is a named, identity-bearing slot that may hold a bound value.
//
// The bound value is never serialized with the placeholder; it travels in
// the parallel value sequence of a State.
type Placeholder struct {
	id          ir.ID
	tags        ir.Tags
	Description string
	value       Value
}

// NewPlaceholder creates an unbound placeholder.
func NewPlaceholder(id ir.ID, tags ir.Tags) *Placeholder {
	return &Placeholder{id: id, tags: tags}
}

// ID returns the placeholder identity.
func (p *Placeholder) ID() ir.ID {
	return p.id
}

// Tags returns the tag set.
func (p *Placeholder) Tags() ir.Tags {
	return p.tags
}

// SetTags replaces the tag set.
func (p *Placeholder) SetTags(tags ir.Tags) {
	p.tags = tags
}

// Tag adds flags to the tag set.
func (p *Placeholder) Tag(flags ...ir.Flag) {
	for _, f := range flags {
		p.tags.Flags |= f
	}
}

// SetIndex sets the "#N" sequence marker.
func (p *Placeholder) SetIndex(n int) {
	p.tags.Index = n
}

// ClearTags removes every flag and the sequence marker.
func (p *Placeholder) ClearTags() {
	p.tags = ir.Tags{}
}

// Instantiate binds v, replacing any previous binding. Wrapper values are
// unwrapped first.
func (p *Placeholder) Instantiate(v Value) *Placeholder {
	if w, ok := v.(Wrapper); ok {
		if inner := w.Unwrap(); inner != nil {
			v = inner
		}
	}
	p.value = v
	return p
}

// Value returns the bound value and whether one is bound.
func (p *Placeholder) Value() (Value, bool) {
	return p.value, p.value != nil
}

// IsBound reports whether a value is bound.
func (p *Placeholder) IsBound() bool {
	return p.value != nil
}

// MustValue returns the bound value.
// Panics with *UnboundError if the placeholder is not instantiated.
func (p *Placeholder) MustValue() Value {
	if p.value == nil {
		panic(&UnboundError{PlaceholderID: p.id})
	}
	return p.value
}

// Copy returns a new placeholder with a fresh identity from ids, the same
// tags and description, and the same bound value. The value itself is
// not duplicated: copies are local and keep referring to the instantiated
// object.
func (p *Placeholder) Copy(ids ir.IDProvider) *Placeholder {
	return &Placeholder{
		id:          ids.New(),
		tags:        p.tags,
		Description: p.Description,
		value:       p.value,
	}
}

// String renders the placeholder and, if bound, its value.
func (p *Placeholder) String() string {
	if p.value != nil {
		return fmt.Sprintf("PlaceHolder(%s)>%v", p.tags, p.value)
	}
	return fmt.Sprintf("PlaceHolder(%s)", p.tags)
}
