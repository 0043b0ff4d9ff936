package harness

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/manifest"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/store"
	"github.com/roach88/planstate/internal/tensor"
	"github.com/roach88/planstate/internal/testutil"
	"github.com/roach88/planstate/internal/worker"
)

// outputTolerance bounds float drift when comparing expected outputs.
const outputTolerance = 1e-9

// Harness is the scenario execution engine.
// It runs scenarios with deterministic identities and clock.
type Harness struct {
	store  *store.Store
	worker *worker.Worker
	plans  map[string]*plan.Plan
	clock  *worker.Clock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and worker
// 2. Load the manifest and instantiate its plans
// 3. Execute flow steps with expect validation
// 4. Evaluate assertions and serialize every plan
//
// Infrastructure failures are returned as errors; failed expectations
// are recorded in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	m, err := loadManifest(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	logger := testutil.DiscardLogger() // Suppress logs in tests
	clock := worker.NewClock()
	w := worker.New(scenario.Worker,
		worker.WithStore(st),
		worker.WithClock(clock),
		worker.WithLogger(logger),
	)

	plans, err := manifest.Instantiate(w, ir.NewSequentialProvider("ph"), m)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate plans: %w", err)
	}

	h := &Harness{
		store:  st,
		worker: w,
		plans:  plans,
		clock:  clock,
		logger: logger,
	}

	result := newResult()
	if err := h.executeFlow(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		Plans:  plans,
		Worker: w,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.fail(errMsg)
	}

	if err := h.collectDocuments(result); err != nil {
		return nil, err
	}
	return result, nil
}

func loadManifest(s *Scenario) (*manifest.Manifest, error) {
	if s.Manifest != "" {
		return manifest.Load(s.Manifest)
	}
	return manifest.LoadString(s.Name+".cue", s.Source)
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, scenario *Scenario, result *Result) error {
	for i, step := range scenario.Flow {
		op, name := step.Op()
		p, ok := h.plans[name]
		if !ok {
			result.fail(fmt.Sprintf("flow[%d]: unknown plan %q", i, name))
			continue
		}

		ev := TraceEvent{Type: op, Plan: name}
		var stepErr error
		switch op {
		case StepBuild, StepCall:
			args, err := tensorArgs(step.Args)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			var out []plan.Value
			if op == StepBuild {
				out, stepErr = p.Build(ctx, args...)
				ev.Captured = len(p.NestedStates())
			} else {
				out, stepErr = p.Call(ctx, args...)
			}
			if stepErr == nil {
				total := sumOutputs(out)
				ev.Output = &total
			}
		case StepRoundtrip:
			stepErr = h.roundtrip(ctx, scenario, p)
		}

		if stepErr != nil {
			ev.Error = stepErr.Error()
		}
		ev.Seq = h.clock.Next()
		result.Trace = append(result.Trace, ev)

		for _, msg := range checkExpect(step.Expect, ev, stepErr) {
			result.fail(fmt.Sprintf("flow[%d] %s %s: %s", i, op, name, msg))
		}

		h.logger.Info("flow step completed",
			"step", i,
			"op", op,
			"plan", name,
			"error", ev.Error,
		)
	}
	return nil
}

// roundtrip serializes p, decodes it on a replica worker and requires the
// replica to serialize to the same bytes. The document is saved in the
// store.
func (h *Harness) roundtrip(ctx context.Context, scenario *Scenario, p *plan.Plan) error {
	data, err := h.worker.Codec().Marshal(h.worker, p)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := h.worker.SaveDocument(ctx, p.Name(), data); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	replica := worker.New(scenario.Worker+"-replica", worker.WithLogger(h.logger))
	back, err := replica.Codec().UnmarshalPlan(replica, data)
	if err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	again, err := replica.Codec().Marshal(replica, back)
	if err != nil {
		return fmt.Errorf("re-marshal: %w", err)
	}
	if !bytes.Equal(data, again) {
		return fmt.Errorf("replica document differs:\n  sent: %s\n  back: %s", data, again)
	}
	return nil
}

func (h *Harness) collectDocuments(result *Result) error {
	names := make([]string, 0, len(h.plans))
	for name := range h.plans {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := h.worker.Codec().Marshal(h.worker, h.plans[name])
		if err != nil {
			return fmt.Errorf("serialize plan %s: %w", name, err)
		}
		result.Documents[name] = data
	}
	return nil
}

func checkExpect(expect *ExpectClause, ev TraceEvent, err error) []string {
	if expect == nil || expect.Error == "" {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
	}
	if expect == nil {
		return nil
	}

	var msgs []string
	if expect.Error != "" {
		switch {
		case err == nil:
			msgs = append(msgs, fmt.Sprintf("expected error containing %q, got success", expect.Error))
		case !strings.Contains(err.Error(), expect.Error):
			msgs = append(msgs, fmt.Sprintf("expected error containing %q, got %q", expect.Error, err.Error()))
		}
	}
	if expect.Output != nil && err == nil {
		switch {
		case ev.Output == nil:
			msgs = append(msgs, fmt.Sprintf("expected output %v, step produced none", *expect.Output))
		case math.Abs(*ev.Output-*expect.Output) > outputTolerance:
			msgs = append(msgs, fmt.Sprintf("expected output %v, got %v", *expect.Output, *ev.Output))
		}
	}
	return msgs
}

func tensorArgs(args []TensorArg) ([]plan.Value, error) {
	out := make([]plan.Value, 0, len(args))
	for _, a := range args {
		t, err := tensor.New(ir.ID(a.ID), []int{len(a.Data)}, a.Data)
		if err != nil {
			return nil, fmt.Errorf("arg %s: %w", a.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func sumOutputs(values []plan.Value) float64 {
	var total float64
	for _, v := range values {
		if t, ok := v.(*tensor.Tensor); ok {
			total += t.Sum()
		}
	}
	return total
}
