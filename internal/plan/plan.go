package plan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/planstate/internal/ir"
)

// Blueprint is the function a plan traces. It receives the plan being
// built so it can read the plan's state and the states of nested plans.
type Blueprint func(ctx context.Context, p *Plan, args []Value) ([]Value, error)

// Plan is a reusable computation whose state is captured by tracing its
// blueprint once.
//
// Thread-safety: the slot counter, state sequence and placeholder index are
// guarded by an internal mutex. Build must not be called concurrently on
// the same plan.
type Plan struct {
	mu sync.Mutex

	id    ir.ID
	name  string
	owner Owner
	ids   ir.IDProvider

	state        *State
	placeholders map[ir.ID]*Placeholder
	counter      *SlotCounter

	inputs       []*Placeholder
	outputs      []*Placeholder
	nestedStates []*State

	includeState bool
	built        bool
	tags         []string
	description  string

	blueprint Blueprint
	logger    *slog.Logger

	pending []Value
}

// Option configures a Plan.
type Option func(*Plan)

// WithID sets the plan identity. Defaults to a fresh id from the provider.
func WithID(id ir.ID) Option {
	return func(p *Plan) { p.id = id }
}

// WithName sets the plan name. Defaults to "Plan".
func WithName(name string) Option {
	return func(p *Plan) { p.name = name }
}

// WithIDs sets the provider of plan and placeholder identities.
func WithIDs(ids ir.IDProvider) Option {
	return func(p *Plan) { p.ids = ids }
}

// WithStateTensors registers each value as a "#state #N" slot, in order.
func WithStateTensors(values ...Value) Option {
	return func(p *Plan) { p.pending = append(p.pending, values...) }
}

// WithBlueprint sets the function traced by Build.
func WithBlueprint(fn Blueprint) Option {
	return func(p *Plan) { p.blueprint = fn }
}

// WithIncludeState marks the plan as a function plan whose blueprint reads
// the plan's own state explicitly.
func WithIncludeState(include bool) Option {
	return func(p *Plan) { p.includeState = include }
}

// WithState replaces the initial empty state. Used when reconstructing a
// plan from its wire form.
func WithState(s *State) Option {
	return func(p *Plan) { p.state = s }
}

// WithInputs sets the argument placeholders.
func WithInputs(phs ...*Placeholder) Option {
	return func(p *Plan) { p.inputs = append(p.inputs, phs...) }
}

// WithOutputs sets the result placeholders.
func WithOutputs(phs ...*Placeholder) Option {
	return func(p *Plan) { p.outputs = append(p.outputs, phs...) }
}

// WithNestedStates records the states promoted into the plan by an earlier
// build.
func WithNestedStates(states ...*State) Option {
	return func(p *Plan) { p.nestedStates = append(p.nestedStates, states...) }
}

// WithBuilt marks the plan as already traced.
func WithBuilt(built bool) Option {
	return func(p *Plan) { p.built = built }
}

// WithTags sets free-form plan tags.
func WithTags(tags ...string) Option {
	return func(p *Plan) { p.tags = append(p.tags, tags...) }
}

// WithDescription sets the plan description.
func WithDescription(desc string) Option {
	return func(p *Plan) { p.description = desc }
}

// WithLogger sets the logger for build diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Plan) { p.logger = l }
}

// WithVarCount starts the slot counter at n.
func WithVarCount(n int) Option {
	return func(p *Plan) { p.counter = NewSlotCounterAt(n) }
}

// New creates a plan owned by owner.
//
// When a state is supplied with WithState, its bound placeholders are
// indexed by value identity and, unless WithVarCount is given, the slot
// counter resumes after the highest "#N" index in it.
func New(owner Owner, opts ...Option) *Plan {
	p := &Plan{
		name:         "Plan",
		owner:        owner,
		ids:          ir.UUIDv7Provider{},
		placeholders: make(map[ir.ID]*Placeholder),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.id.IsZero() {
		p.id = p.ids.New()
	}
	if p.state == nil {
		p.state = NewState(owner)
	}

	maxIndex := 0
	for _, ph := range p.state.placeholders {
		if ph.tags.Index > maxIndex {
			maxIndex = ph.tags.Index
		}
		if v, ok := ph.Value(); ok {
			p.placeholders[v.ID()] = ph
		}
	}
	for _, ph := range append(p.inputs[:len(p.inputs):len(p.inputs)], p.outputs...) {
		if ph.tags.Index > maxIndex {
			maxIndex = ph.tags.Index
		}
	}
	if p.counter == nil {
		p.counter = NewSlotCounterAt(maxIndex)
	}

	pending := p.pending
	p.pending = nil
	for _, v := range pending {
		p.AddState(v)
	}
	return p
}

// ID returns the plan identity.
func (p *Plan) ID() ir.ID { return p.id }

// Name returns the plan name.
func (p *Plan) Name() string { return p.name }

// Owner returns the context the plan belongs to.
func (p *Plan) Owner() Owner { return p.owner }

// State returns the plan state.
func (p *Plan) State() *State { return p.state }

// IncludeState reports whether the blueprint reads the plan's own state.
func (p *Plan) IncludeState() bool { return p.includeState }

// Tags returns the free-form plan tags.
func (p *Plan) Tags() []string {
	out := make([]string, len(p.tags))
	copy(out, p.tags)
	return out
}

// Description returns the plan description.
func (p *Plan) Description() string { return p.description }

// IsBuilt reports whether the plan has been traced.
func (p *Plan) IsBuilt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.built
}

// VarCount returns the number of slots handed out so far.
func (p *Plan) VarCount() int {
	return p.counter.Current()
}

// Inputs returns the argument placeholders in slot order.
func (p *Plan) Inputs() []*Placeholder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Placeholder, len(p.inputs))
	copy(out, p.inputs)
	return out
}

// Outputs returns the result placeholders in result order.
func (p *Plan) Outputs() []*Placeholder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Placeholder, len(p.outputs))
	copy(out, p.outputs)
	return out
}

// NestedStates returns the distinct states read from nested plans during
// the last build.
func (p *Plan) NestedStates() []*State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*State, len(p.nestedStates))
	copy(out, p.nestedStates)
	return out
}

// PlaceholderFor returns the placeholder indexed under a bound value's
// identity.
func (p *Plan) PlaceholderFor(valueID ir.ID) (*Placeholder, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ph, ok := p.placeholders[valueID]
	return ph, ok
}

// AddState binds v to a new "#state #N" placeholder appended to the plan
// state, and indexes it under v's identity.
func (p *Plan) AddState(v Value) *Placeholder {
	p.mu.Lock()
	defer p.mu.Unlock()

	ph := NewPlaceholder(p.ids.New(), ir.NewTags(p.counter.Next(), ir.FlagState))
	ph.Instantiate(v)
	p.state.appendPlaceholder(ph)
	p.placeholders[v.ID()] = ph
	return ph
}

// AddPlaceholder returns the placeholder indexed under v's identity,
// creating a "#N" slot tagged with flags if v has none. Values tagged
// FlagInput or FlagOutput are recorded as arguments or results.
func (p *Plan) AddPlaceholder(v Value, flags ...ir.Flag) *Placeholder {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ph, ok := p.placeholders[v.ID()]; ok {
		return ph
	}
	ph := NewPlaceholder(p.ids.New(), ir.NewTags(p.counter.Next(), flags...))
	ph.Instantiate(v)
	p.placeholders[v.ID()] = ph
	if ph.tags.Has(ir.FlagInput) {
		p.inputs = append(p.inputs, ph)
	}
	if ph.tags.Has(ir.FlagOutput) {
		p.outputs = append(p.outputs, ph)
	}
	return ph
}

// Build traces the blueprint once with args.
//
// The state is snapshotted before tracing and restored afterwards, so
// in-place changes the blueprint makes to state values do not survive the
// build. While the blueprint runs, the plan is the active frame of its
// owner's tracer: nested states read during the trace are promoted into
// this plan. The frame is popped and the snapshot restored even when the
// blueprint fails.
func (p *Plan) Build(ctx context.Context, args ...Value) ([]Value, error) {
	if p.blueprint == nil {
		return nil, &BuildError{PlanID: p.id, Name: p.name, Err: ErrNoBlueprint}
	}
	t := p.tracer()
	if t == nil {
		return nil, &BuildError{PlanID: p.id, Name: p.name, Err: fmt.Errorf("owner has no tracer")}
	}

	snapshot := p.state.CloneStateDict()
	for _, arg := range args {
		p.AddPlaceholder(arg, ir.FlagInput)
	}

	p.logger.Debug("plan build started", "plan", p.name, "id", p.id, "args", len(args))

	frame := t.Push(p)
	results, err := func() ([]Value, error) {
		defer func() {
			t.Pop()
			p.state.Set(snapshot)
		}()
		return p.blueprint(ctx, p, args)
	}()
	if err != nil {
		p.logger.Debug("plan build failed", "plan", p.name, "error", err)
		return nil, &BuildError{PlanID: p.id, Name: p.name, Err: err}
	}

	for _, r := range results {
		p.AddPlaceholder(r, ir.FlagOutput)
	}

	nested := frame.NestedStates()
	p.mu.Lock()
	p.nestedStates = nested
	p.built = true
	p.mu.Unlock()

	p.logger.Debug("plan build finished",
		"plan", p.name,
		"promoted", len(frame.Captured()),
		"var_count", p.counter.Current(),
	)
	return results, nil
}

// Call runs the blueprint directly, without opening a capture frame.
//
// Calling a plan from inside another plan's blueprint is how nesting
// happens: state reads the callee makes are promoted into whichever plan
// is being traced.
func (p *Plan) Call(ctx context.Context, args ...Value) ([]Value, error) {
	if p.blueprint == nil {
		return nil, ErrNoBlueprint
	}
	return p.blueprint(ctx, p, args)
}

func (p *Plan) tracer() *Tracer {
	if p.owner == nil {
		return nil
	}
	return p.owner.Tracer()
}

// FindPlaceholders returns every indexed placeholder carrying all of
// flags, ordered by slot index.
func (p *Plan) FindPlaceholders(flags ...ir.Flag) []*Placeholder {
	var want ir.Flag
	for _, f := range flags {
		want |= f
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*Placeholder
	for _, ph := range p.placeholders {
		if ph.tags.Has(want) {
			out = append(out, ph)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].tags.Index != out[j].tags.Index {
			return out[i].tags.Index < out[j].tags.Index
		}
		return out[i].id < out[j].id
	})
	return out
}

// Parameters returns the bound values of the plan state.
func (p *Plan) Parameters() []Value {
	return p.state.Tensors()
}

// Get fetches every state value from its remote location.
func (p *Plan) Get(ctx context.Context) error {
	return p.state.Get(ctx)
}

// Copy returns an independent plan with a fresh identity from ids.
//
// State placeholders are duplicated with their identities and tags, then
// rebound to deep clones of the current values, so mutating the copy's
// values never affects the original.
func (p *Plan) Copy(ids ir.IDProvider) *Plan {
	p.mu.Lock()
	phs := make([]*Placeholder, len(p.state.placeholders))
	for i, ph := range p.state.placeholders {
		dup := *ph
		phs[i] = &dup
	}
	inputs := append([]*Placeholder(nil), p.inputs...)
	tags := append([]string(nil), p.tags...)
	built := p.built
	p.mu.Unlock()

	state := NewState(p.owner, phs...)
	state.Set(p.state.CloneStateDict())

	return New(p.owner,
		WithID(ids.New()),
		WithIDs(ids),
		WithName(p.name),
		WithState(state),
		WithIncludeState(p.includeState),
		WithBuilt(built),
		WithInputs(inputs...),
		WithTags(tags...),
		WithDescription(p.description),
		WithBlueprint(p.blueprint),
		WithLogger(p.logger),
		WithVarCount(p.counter.Current()),
	)
}

// String renders the plan as "<Plan name id:ID Tags: t1 t2 built>".
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<Plan %s id:%s", p.name, p.id)
	if len(p.tags) > 0 {
		b.WriteString(" Tags:")
		for _, t := range p.tags {
			b.WriteByte(' ')
			b.WriteString(t)
		}
	}
	if p.IsBuilt() {
		b.WriteString(" built")
	}
	b.WriteByte('>')
	return b.String()
}
