package ir

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ID is a process-wide unique identity for placeholders, values and plans.
// IDs survive serialization unchanged.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is empty.
func (id ID) IsZero() bool {
	return id == ""
}

// IDProvider hands out fresh identities.
// Implemented by UUIDv7Provider (production) and SequentialProvider (tests).
type IDProvider interface {
	New() ID
}

// UUIDv7Provider generates time-sortable UUIDv7 identities.
//
// Thread-safety: UUIDv7Provider is stateless and safe for concurrent use.
type UUIDv7Provider struct{}

// New creates a new UUIDv7 identity.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Provider) New() ID {
	return ID(uuid.Must(uuid.NewV7()).String())
}

// SequentialProvider returns prefix-1, prefix-2, ... in order.
//
// This enables deterministic test execution and golden wire comparison.
//
// Thread-safety: SequentialProvider is safe for concurrent use via internal mutex.
type SequentialProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequentialProvider creates a provider that numbers identities from 1.
// If prefix is empty, "id" is used.
func NewSequentialProvider(prefix string) *SequentialProvider {
	if prefix == "" {
		prefix = "id"
	}
	return &SequentialProvider{prefix: prefix}
}

// New returns the next identity in the sequence.
func (p *SequentialProvider) New() ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return ID(fmt.Sprintf("%s-%d", p.prefix, p.next))
}
