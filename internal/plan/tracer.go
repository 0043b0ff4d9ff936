package plan

import (
	"log/slog"
	"sync"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/metrics"
)

// Tracer holds the stack of capture frames of one owner.
//
// The innermost frame identifies the plan currently being traced; a State
// read while a frame is active promotes its placeholders into that plan.
//
// Thread-safety: frame push/pop is guarded by an internal mutex.
type Tracer struct {
	mu      sync.Mutex
	frames  []*Frame
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerMetrics records promotions and reads in m.
func WithTracerMetrics(m *metrics.Metrics) TracerOption {
	return func(t *Tracer) {
		t.metrics = m
	}
}

// WithTracerLogger sets the logger used for promotion diagnostics.
func WithTracerLogger(l *slog.Logger) TracerOption {
	return func(t *Tracer) {
		t.logger = l
	}
}

// NewTracer creates a tracer with no active frame.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tracer implements Owner, so a bare Tracer can own states in tests.
func (t *Tracer) Tracer() *Tracer {
	return t
}

// Push opens a capture frame for p and makes it the active frame.
func (t *Tracer) Push(p *Plan) *Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := &Frame{plan: p, tracer: t}
	t.frames = append(t.frames, f)
	t.logger.Debug("trace frame opened", "plan", p.Name(), "depth", len(t.frames))
	return f
}

// Pop closes the active frame and returns it, or nil if none is open.
func (t *Tracer) Pop() *Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.frames) == 0 {
		return nil
	}
	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	t.logger.Debug("trace frame closed",
		"plan", f.plan.Name(),
		"captured", len(f.captured),
		"depth", len(t.frames),
	)
	return f
}

// ActiveFrame returns the innermost frame, or nil outside any trace.
func (t *Tracer) ActiveFrame() *Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

// Depth returns the number of open frames.
func (t *Tracer) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

// Frame is the capture list of one plan trace.
type Frame struct {
	plan     *Plan
	tracer   *Tracer
	captured []*Placeholder
	nested   []*State
}

// Plan returns the plan being traced.
func (f *Frame) Plan() *Plan {
	return f.plan
}

// Captured returns the promoted placeholders in promotion order.
func (f *Frame) Captured() []*Placeholder {
	f.plan.mu.Lock()
	defer f.plan.mu.Unlock()
	out := make([]*Placeholder, len(f.captured))
	copy(out, f.captured)
	return out
}

// NestedStates returns the distinct states that promoted into this frame,
// in first-read order.
func (f *Frame) NestedStates() []*State {
	f.plan.mu.Lock()
	defer f.plan.mu.Unlock()
	out := make([]*State, len(f.nested))
	copy(out, f.nested)
	return out
}

// promote hoists every placeholder of inner into the traced plan.
//
// Each placeholder is copied, its tags are replaced by "#inner", "#state"
// and "#N" where N is the plan's slot counter plus one, the copy is
// appended to the plan's state and, when bound, indexed by its value's
// identity, and the counter advances. Nothing is deduplicated against earlier
// promotions.
func (f *Frame) promote(inner *State) {
	p := f.plan
	p.mu.Lock()
	defer p.mu.Unlock()

	if !containsState(f.nested, inner) {
		f.nested = append(f.nested, inner)
	}

	for _, ph := range inner.snapshot() {
		cp := ph.Copy(p.ids)
		cp.ClearTags()
		cp.Tag(ir.FlagInner, ir.FlagState)
		cp.SetIndex(p.counter.Current() + 1)

		p.state.appendPlaceholder(cp)
		if v, ok := cp.Value(); ok {
			p.placeholders[v.ID()] = cp
		}
		p.counter.Next()

		f.captured = append(f.captured, cp)
		f.tracer.metrics.RecordPromotion()
		f.tracer.logger.Debug("placeholder promoted",
			"plan", p.name,
			"from", ph.ID(),
			"to", cp.ID(),
			"index", cp.Tags().Index,
		)
	}
}

func containsState(states []*State, s *State) bool {
	for _, existing := range states {
		if existing == s {
			return true
		}
	}
	return false
}
