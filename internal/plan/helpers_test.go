package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/tensor"
)

// testWorker is an in-memory Worker with an inspectable registry.
type testWorker struct {
	tracer      *Tracer
	registered  map[ir.ID]Value
	order       []ir.ID
	registerErr error
	failOn      ir.ID // Register fails for this id only
}

func newTestWorker() *testWorker {
	return &testWorker{
		tracer:     NewTracer(WithTracerLogger(discardLogger())),
		registered: make(map[ir.ID]Value),
	}
}

func (w *testWorker) Tracer() *Tracer { return w.tracer }

func (w *testWorker) Register(v Value, id ir.ID) error {
	if w.registerErr != nil && (w.failOn == "" || w.failOn == id) {
		return w.registerErr
	}
	w.registered[id] = v
	w.order = append(w.order, id)
	return nil
}

func (w *testWorker) Deregister(_ context.Context, id ir.ID) error {
	delete(w.registered, id)
	return nil
}

// scopedWorker stands in for base during one call.
type scopedWorker struct {
	*testWorker
	base *testWorker
}

func (s scopedWorker) Unscoped() Worker { return s.base }

// memCodec hands out opaque keys for simplified objects and returns the
// very same objects on detail.
type memCodec struct {
	objects map[string]any
	n       int
}

func newMemCodec() *memCodec {
	return &memCodec{objects: make(map[string]any)}
}

func (c *memCodec) Simplify(_ Worker, v any) (json.RawMessage, error) {
	c.n++
	key := fmt.Sprintf("obj-%d", c.n)
	c.objects[key] = v
	return json.Marshal(key)
}

func (c *memCodec) Detail(_ Worker, data json.RawMessage) (any, error) {
	var key string
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, err
	}
	v, ok := c.objects[key]
	if !ok {
		return nil, fmt.Errorf("unknown object %q", key)
	}
	return v, nil
}

// put stores v directly and returns its wire key.
func (c *memCodec) put(v any) json.RawMessage {
	c.n++
	key := fmt.Sprintf("obj-%d", c.n)
	c.objects[key] = v
	data, _ := json.Marshal(key)
	return data
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func vec(t *testing.T, id string, data ...float64) *tensor.Tensor {
	t.Helper()
	v, err := tensor.New(ir.ID(id), []int{len(data)}, data)
	require.NoError(t, err)
	return v
}

func param(t *testing.T, id string, data ...float64) *tensor.Tensor {
	t.Helper()
	v, err := tensor.NewParameter(ir.ID(id), []int{len(data)}, data)
	require.NoError(t, err)
	return v
}

func bound(id string, v Value, tags ir.Tags) *Placeholder {
	return NewPlaceholder(ir.ID(id), tags).Instantiate(v)
}

func valueIDs(values []Value) []ir.ID {
	ids := make([]ir.ID, len(values))
	for i, v := range values {
		ids[i] = v.ID()
	}
	return ids
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
