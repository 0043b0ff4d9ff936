package serde

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/tensor"
)

// testWorker registers values in memory and resolves pointers against a
// map of peers.
type testWorker struct {
	tracer     *plan.Tracer
	registered map[ir.ID]plan.Value
	peers      map[string]*testWorker
}

func newTestWorker() *testWorker {
	return &testWorker{
		tracer:     plan.NewTracer(plan.WithTracerLogger(discardLogger())),
		registered: make(map[ir.ID]plan.Value),
		peers:      make(map[string]*testWorker),
	}
}

func (w *testWorker) Tracer() *plan.Tracer { return w.tracer }

func (w *testWorker) Register(v plan.Value, id ir.ID) error {
	w.registered[id] = v
	return nil
}

func (w *testWorker) Resolve(_ context.Context, location string, id ir.ID) (*tensor.Tensor, error) {
	peer, ok := w.peers[location]
	if !ok {
		return nil, fmt.Errorf("unknown location %q", location)
	}
	v, ok := peer.registered[id].(*tensor.Tensor)
	if !ok {
		return nil, fmt.Errorf("no tensor %s at %s", id, location)
	}
	return v, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec() *Codec {
	return New(WithLogger(discardLogger()))
}
