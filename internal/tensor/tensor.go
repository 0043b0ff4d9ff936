package tensor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/planstate/internal/ir"
)

// Resolver fetches the tensor registered under id at location.
// Implemented by worker.Directory.
type Resolver interface {
	Resolve(ctx context.Context, location string, id ir.ID) (*Tensor, error)
}

// remote describes where the data of a pointer tensor lives.
type remote struct {
	location string
	resolver Resolver
}

// Tensor is a dense float64 array with identity.
//
// Tensors are not safe for concurrent mutation.
type Tensor struct {
	id           ir.ID
	shape        []int
	data         []float64
	requiresGrad bool
	grad         *Tensor
	remote       *remote
}

// New creates a tensor. The data slice is copied.
func New(id ir.ID, shape []int, data []float64) (*Tensor, error) {
	if numel(shape) != len(data) {
		return nil, fmt.Errorf("%w: shape %v wants %d elements, got %d", ErrShapeMismatch, shape, numel(shape), len(data))
	}
	return &Tensor{
		id:    id,
		shape: slices.Clone(shape),
		data:  slices.Clone(data),
	}, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(id ir.ID, shape []int, data []float64) *Tensor {
	t, err := New(id, shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// NewParameter creates a trainable tensor. Its gradient buffer starts absent.
func NewParameter(id ir.ID, shape []int, data []float64) (*Tensor, error) {
	t, err := New(id, shape, data)
	if err != nil {
		return nil, err
	}
	t.requiresGrad = true
	return t, nil
}

// RequireGrad marks t as trainable and returns it.
func (t *Tensor) RequireGrad() *Tensor {
	t.requiresGrad = true
	return t
}

// Zeros creates a zero-filled tensor.
func Zeros(id ir.ID, shape []int) *Tensor {
	return &Tensor{
		id:    id,
		shape: slices.Clone(shape),
		data:  make([]float64, numel(shape)),
	}
}

// NewPointer creates a remote reference to the tensor registered under id
// at location. It holds no data until Fetch.
func NewPointer(id ir.ID, shape []int, location string, resolver Resolver) *Tensor {
	return &Tensor{
		id:     id,
		shape:  slices.Clone(shape),
		remote: &remote{location: location, resolver: resolver},
	}
}

// ID returns the tensor identity.
func (t *Tensor) ID() ir.ID {
	return t.id
}

// Shape returns a copy of the shape.
func (t *Tensor) Shape() []int {
	return slices.Clone(t.shape)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return numel(t.shape)
}

// Data returns a copy of the elements.
func (t *Tensor) Data() []float64 {
	return slices.Clone(t.data)
}

// At returns element i of the flattened data.
func (t *Tensor) At(i int) float64 {
	return t.data[i]
}

// Set writes element i of the flattened data in place.
func (t *Tensor) Set(i int, v float64) {
	t.data[i] = v
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	var s float64
	for _, v := range t.data {
		s += v
	}
	return s
}

// IsParameter reports whether the tensor is trainable.
func (t *Tensor) IsParameter() bool {
	return t.requiresGrad
}

// Grad returns the gradient buffer, or nil if none was allocated.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// SetGrad replaces the gradient buffer. Used when decoding.
func (t *Tensor) SetGrad(g *Tensor) {
	t.grad = g
}

// IsRemote reports whether the tensor is a remote reference.
func (t *Tensor) IsRemote() bool {
	return t.remote != nil
}

// Location returns the remote location, or "" for local tensors.
func (t *Tensor) Location() string {
	if t.remote == nil {
		return ""
	}
	return t.remote.location
}

// Equal reports whether two tensors have the same identity-independent
// content: shape, data and parameter flag.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == nil || other == nil {
		return t == other
	}
	return slices.Equal(t.shape, other.shape) &&
		slices.Equal(t.data, other.data) &&
		t.requiresGrad == other.requiresGrad &&
		t.IsRemote() == other.IsRemote()
}

// Clone returns a deep copy. The identity is kept; no storage is shared
// with the original, including the gradient buffer.
func (t *Tensor) Clone() *Tensor {
	c := &Tensor{
		id:           t.id,
		shape:        slices.Clone(t.shape),
		data:         slices.Clone(t.data),
		requiresGrad: t.requiresGrad,
	}
	if t.grad != nil {
		c.grad = t.grad.Clone()
	}
	if t.remote != nil {
		r := *t.remote
		c.remote = &r
	}
	return c
}

// EnsureGrad allocates a zero gradient buffer for a parameter that has
// none. Tensors that are not parameters are left untouched.
func (t *Tensor) EnsureGrad() error {
	if !t.requiresGrad || t.grad != nil {
		return nil
	}
	if t.remote != nil {
		return fmt.Errorf("%w: %s", ErrRemoteGrad, t.id)
	}
	t.grad = Zeros(t.id+"/grad", t.shape)
	return nil
}

// Fetch replaces a remote reference with the data it points to, in place.
// Resolver errors propagate unchanged.
func (t *Tensor) Fetch(ctx context.Context) error {
	if t.remote == nil {
		return fmt.Errorf("%w: %s", ErrNotRemote, t.id)
	}
	if t.remote.resolver == nil {
		return fmt.Errorf("%w: %s", ErrNoResolver, t.id)
	}
	src, err := t.remote.resolver.Resolve(ctx, t.remote.location, t.id)
	if err != nil {
		return err
	}
	t.shape = slices.Clone(src.shape)
	t.data = slices.Clone(src.data)
	t.requiresGrad = src.requiresGrad
	if src.grad != nil {
		t.grad = src.grad.Clone()
	}
	t.remote = nil
	return nil
}

// Attach sets the resolver used by Fetch on a remote reference.
// Decoded pointers arrive without one.
func (t *Tensor) Attach(resolver Resolver) {
	if t.remote != nil {
		t.remote.resolver = resolver
	}
}

// String renders the tensor for diagnostics.
func (t *Tensor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tensor(%s", t.id)
	if t.remote != nil {
		fmt.Fprintf(&b, " @%s", t.remote.location)
	} else {
		fmt.Fprintf(&b, " %v", t.data)
	}
	if t.requiresGrad {
		b.WriteString(" param")
	}
	b.WriteByte(')')
	return b.String()
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// CloneValue implements ir.Value.
func (t *Tensor) CloneValue() ir.Value {
	return t.Clone()
}
