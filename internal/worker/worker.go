// Package worker provides the execution context that owns plan states and
// keeps the identity registry values are resolved against.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/metrics"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/serde"
	"github.com/roach88/planstate/internal/store"
	"github.com/roach88/planstate/internal/tensor"
)

// Worker is one execution context: an id, an identity registry, a tracer
// for plan builds and a codec. With a store attached, every registration
// is written through.
//
// Thread-safety: the registry is safe for concurrent use.
type Worker struct {
	id string

	mu      sync.RWMutex
	objects map[ir.ID]plan.Value

	tracer    *plan.Tracer
	codec     *serde.Codec
	store     *store.Store
	clock     Sequencer
	directory *Directory
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithStore writes registrations through to st.
func WithStore(st *store.Store) Option {
	return func(w *Worker) { w.store = st }
}

// WithCodec sets the codec used for persistence and transport.
func WithCodec(c *serde.Codec) Option {
	return func(w *Worker) { w.codec = c }
}

// WithClock sets the sequencer that stamps persisted records.
func WithClock(c Sequencer) Option {
	return func(w *Worker) { w.clock = c }
}

// WithDirectory joins the worker to d and resolves remote references
// through it.
func WithDirectory(d *Directory) Option {
	return func(w *Worker) { w.directory = d }
}

// WithMetrics records registrations, promotions and reads in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a worker.
func New(id string, opts ...Option) *Worker {
	w := &Worker{
		id:      id,
		objects: make(map[ir.ID]plan.Value),
		clock:   NewClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("worker", id)
	if w.codec == nil {
		w.codec = serde.New(serde.WithMetrics(w.metrics), serde.WithLogger(w.logger))
	}
	w.tracer = plan.NewTracer(
		plan.WithTracerMetrics(w.metrics),
		plan.WithTracerLogger(w.logger),
	)
	if w.directory != nil {
		w.directory.Add(w)
	}
	return w
}

// ID returns the worker id.
func (w *Worker) ID() string {
	return w.id
}

// Tracer implements plan.Owner.
func (w *Worker) Tracer() *plan.Tracer {
	return w.tracer
}

// Codec returns the worker's codec.
func (w *Worker) Codec() *serde.Codec {
	return w.codec
}

// Register implements plan.Registry. The value is stored under id,
// replacing any previous registration. The write-through runs on a
// background context; decodes started by LoadState use the caller's.
func (w *Worker) Register(v plan.Value, id ir.ID) error {
	return w.register(context.Background(), v, id)
}

func (w *Worker) register(ctx context.Context, v plan.Value, id ir.ID) error {
	if w.store != nil {
		if err := w.persist(ctx, v, id); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.objects[id] = v
	w.mu.Unlock()

	w.metrics.RecordRegistration(w.id)
	w.logger.Debug("object registered", "id", id)
	return nil
}

func (w *Worker) persist(ctx context.Context, v plan.Value, id ir.ID) error {
	payload, err := w.codec.Marshal(w, v)
	if err != nil {
		return fmt.Errorf("persist %s: %w", id, err)
	}
	kind, err := serde.Kind(payload)
	if err != nil {
		return fmt.Errorf("persist %s: %w", id, err)
	}
	return w.store.WriteObject(ctx, store.Object{
		WorkerID: w.id,
		ID:       id,
		Kind:     kind,
		Payload:  payload,
		Seq:      w.clock.Next(),
	})
}

// Object returns the value registered under id.
func (w *Worker) Object(id ir.ID) (plan.Value, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.objects[id]
	return v, ok
}

// MustObject returns the value registered under id or a
// *NotRegisteredError.
func (w *Worker) MustObject(id ir.ID) (plan.Value, error) {
	v, ok := w.Object(id)
	if !ok {
		return nil, &NotRegisteredError{Worker: w.id, ID: id}
	}
	return v, nil
}

// Deregister removes id from the registry and, if attached, the store.
func (w *Worker) Deregister(ctx context.Context, id ir.ID) error {
	w.mu.Lock()
	delete(w.objects, id)
	w.mu.Unlock()

	if w.store != nil {
		return w.store.DeleteObject(ctx, w.id, id)
	}
	return nil
}

// Objects returns the registered identities in sorted order.
func (w *Worker) Objects() []ir.ID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]ir.ID, 0, len(w.objects))
	for id := range w.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Resolve implements tensor.Resolver through the worker's directory.
func (w *Worker) Resolve(ctx context.Context, location string, id ir.ID) (*tensor.Tensor, error) {
	if w.directory == nil {
		return nil, fmt.Errorf("%w: %s (worker %s has no directory)", ErrUnknownWorker, location, w.id)
	}
	return w.directory.Resolve(ctx, location, id)
}

// Restore reloads the registry from the store, in registration order.
// A sequencer that implements Resumer is moved past the highest persisted
// seq first. Returns the number of objects restored.
func (w *Worker) Restore(ctx context.Context) (int, error) {
	if w.store == nil {
		return 0, ErrNoStore
	}
	if r, ok := w.clock.(Resumer); ok {
		maxSeq, err := w.store.MaxSeq(ctx)
		if err != nil {
			return 0, err
		}
		r.Resume(maxSeq)
	}

	objs, err := w.store.ListObjects(ctx, w.id)
	if err != nil {
		return 0, err
	}
	restored := make(map[ir.ID]plan.Value, len(objs))
	for _, obj := range objs {
		raw, err := w.codec.Unmarshal(w.within(ctx), obj.Payload)
		if err != nil {
			return 0, fmt.Errorf("restore %s: %w", obj.ID, err)
		}
		v, ok := raw.(plan.Value)
		if !ok {
			return 0, fmt.Errorf("restore %s: %s payload decodes to %T", obj.ID, obj.Kind, raw)
		}
		restored[obj.ID] = v
	}

	w.mu.Lock()
	for id, v := range restored {
		w.objects[id] = v
	}
	w.mu.Unlock()

	w.logger.Debug("registry restored", "objects", len(restored))
	return len(restored), nil
}

// SaveState persists the marshaled form of a state or plan under its
// digest and returns the digest. Saving identical content twice stores it
// once.
func (w *Worker) SaveState(ctx context.Context, label string, v any) (string, error) {
	if w.store == nil {
		return "", ErrNoStore
	}
	data, err := w.codec.Marshal(w, v)
	if err != nil {
		return "", err
	}
	return w.SaveDocument(ctx, label, data)
}

// SaveDocument persists an already marshaled document.
func (w *Worker) SaveDocument(ctx context.Context, label string, data []byte) (string, error) {
	if w.store == nil {
		return "", ErrNoStore
	}
	kind, err := serde.Kind(data)
	if err != nil {
		return "", err
	}
	digest, err := ir.StateDigest(data)
	if err != nil {
		return "", err
	}
	wrote, err := w.store.WriteState(ctx, store.StateRecord{
		Digest:   digest,
		WorkerID: w.id,
		Label:    label,
		Kind:     kind,
		Wire:     data,
		Seq:      w.clock.Next(),
	})
	if err != nil {
		return "", err
	}
	w.logger.Debug("document saved", "digest", digest, "kind", kind, "new", wrote)
	return digest, nil
}

// LoadState decodes the stored document with the given digest onto this
// worker. Values in the document are registered as they decode.
func (w *Worker) LoadState(ctx context.Context, digest string) (any, error) {
	if w.store == nil {
		return nil, ErrNoStore
	}
	rec, err := w.store.ReadState(ctx, digest)
	if err != nil {
		return nil, err
	}
	return w.codec.Unmarshal(w.within(ctx), rec.Wire)
}

// scoped is w for the span of one call: registrations made through it
// persist on ctx. Decoded objects are still owned by w.
type scoped struct {
	*Worker
	ctx context.Context
}

var _ plan.Scoped = scoped{}

func (w *Worker) within(ctx context.Context) scoped {
	return scoped{Worker: w, ctx: ctx}
}

func (s scoped) Register(v plan.Value, id ir.ID) error {
	return s.Worker.register(s.ctx, v, id)
}

func (s scoped) Unscoped() plan.Worker {
	return s.Worker
}
