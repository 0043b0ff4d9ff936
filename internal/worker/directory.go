package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/tensor"
)

// Directory maps worker ids to in-process workers. It resolves remote
// tensor references by looking the value up in the owning worker's
// registry.
//
// Thread-safety: Directory is safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{workers: make(map[string]*Worker)}
}

// Add makes w reachable under its id, replacing any previous entry.
func (d *Directory) Add(w *Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workers[w.ID()] = w
}

// Lookup returns the worker registered under id.
func (d *Directory) Lookup(id string) (*Worker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workers[id]
	return w, ok
}

// IDs returns the known worker ids in sorted order.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.workers))
	for id := range d.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve implements tensor.Resolver.
func (d *Directory) Resolve(ctx context.Context, location string, id ir.ID) (*tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, ok := d.Lookup(location)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, location)
	}
	v, ok := w.Object(id)
	if !ok {
		return nil, &NotRegisteredError{Worker: location, ID: id}
	}
	t, ok := v.(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("worker %s: %s is %T, not a tensor", location, id, v)
	}
	return t, nil
}
