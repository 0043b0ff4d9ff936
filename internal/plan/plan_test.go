package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/tensor"
)

func TestNew_StateTensorsAreTaggedInOrder(t *testing.T) {
	w := newTestWorker()
	p := New(w,
		WithID("plan-1"),
		WithIDs(ir.NewSequentialProvider("ph")),
		WithStateTensors(vec(t, "a", 1), vec(t, "b", 2)),
	)

	assert.Equal(t, ir.ID("plan-1"), p.ID())
	assert.Equal(t, "Plan", p.Name())
	assert.Equal(t, 2, p.VarCount())

	phs := p.State().Placeholders()
	require.Len(t, phs, 2)
	assert.Equal(t, ir.ID("ph-1"), phs[0].ID())
	assert.Equal(t, []string{"#state", "#1"}, phs[0].Tags().Strings())
	assert.Equal(t, []string{"#state", "#2"}, phs[1].Tags().Strings())

	ph, ok := p.PlaceholderFor("b")
	require.True(t, ok)
	assert.Same(t, phs[1], ph)
}

func TestNew_ResumesCounterFromState(t *testing.T) {
	s := NewState(nil,
		bound("p1", vec(t, "a", 1), ir.NewTags(4, ir.FlagState)),
		bound("p2", vec(t, "b", 1), ir.NewTags(9, ir.FlagInner, ir.FlagState)),
	)
	p := New(newTestWorker(), WithState(s), WithIDs(ir.NewSequentialProvider("x")))

	assert.Equal(t, 9, p.VarCount())
	ph := p.AddState(vec(t, "c", 1))
	assert.Equal(t, 10, ph.Tags().Index)

	_, ok := p.PlaceholderFor("a")
	assert.True(t, ok)
}

func TestPlan_AddPlaceholderIsIdempotentPerValue(t *testing.T) {
	p := New(newTestWorker(), WithIDs(ir.NewSequentialProvider("ph")))
	x := vec(t, "x", 1)

	first := p.AddPlaceholder(x, ir.FlagInput)
	second := p.AddPlaceholder(x, ir.FlagInput)

	assert.Same(t, first, second)
	assert.Equal(t, 1, p.VarCount())
	assert.Equal(t, []*Placeholder{first}, p.Inputs())
}

func TestPlan_BuildRestoresState(t *testing.T) {
	w := newTestWorker()
	weights := param(t, "w", 1, 2)
	x := vec(t, "x", 5)
	p := New(w,
		WithName("scale"),
		WithStateTensors(weights),
		WithBlueprint(func(ctx context.Context, p *Plan, args []Value) ([]Value, error) {
			state := p.State().Read()
			tw := state[0].(*tensor.Tensor)
			tw.Set(0, 100)
			out := tensor.MustNew("y", []int{1}, []float64{tw.Sum() * args[0].(*tensor.Tensor).At(0)})
			return []Value{out}, nil
		}),
	)

	results, err := p.Build(context.Background(), x)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 510.0, results[0].(*tensor.Tensor).At(0))

	assert.True(t, p.IsBuilt())
	restored := p.State().Tensors()[0].(*tensor.Tensor)
	assert.Equal(t, []float64{1, 2}, restored.Data(), "state is restored to its pre-build snapshot")
	assert.True(t, restored.IsParameter())

	require.Len(t, p.Inputs(), 1)
	assert.Equal(t, []string{"#input", "#2"}, p.Inputs()[0].Tags().Strings())
	require.Len(t, p.Outputs(), 1)
	assert.Equal(t, []string{"#output", "#3"}, p.Outputs()[0].Tags().Strings())
	assert.Equal(t, 3, p.VarCount())
}

func TestPlan_BuildFailure(t *testing.T) {
	w := newTestWorker()
	boom := errors.New("boom")
	weights := vec(t, "w", 1)
	p := New(w,
		WithID("p-1"),
		WithName("broken"),
		WithStateTensors(weights),
		WithBlueprint(func(ctx context.Context, p *Plan, args []Value) ([]Value, error) {
			p.State().Tensors()[0].(*tensor.Tensor).Set(0, 42)
			return nil, boom
		}),
	)

	_, err := p.Build(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "broken", be.Name)
	assert.Equal(t, ir.ID("p-1"), be.PlanID)

	assert.False(t, p.IsBuilt())
	assert.Equal(t, 0, w.Tracer().Depth(), "frame is popped on failure")
	assert.Equal(t, 1.0, p.State().Tensors()[0].(*tensor.Tensor).At(0))
}

func TestPlan_BuildWithoutBlueprint(t *testing.T) {
	p := New(newTestWorker())

	_, err := p.Build(context.Background())
	assert.ErrorIs(t, err, ErrNoBlueprint)

	_, err = p.Call(context.Background())
	assert.ErrorIs(t, err, ErrNoBlueprint)
}

func TestPlan_BuildWithoutTracer(t *testing.T) {
	p := New(nil, WithBlueprint(func(context.Context, *Plan, []Value) ([]Value, error) {
		return nil, nil
	}))

	_, err := p.Build(context.Background())
	var be *BuildError
	assert.True(t, errors.As(err, &be))
}

func TestPlan_CopyIsIndependent(t *testing.T) {
	w := newTestWorker()
	a := vec(t, "a", 1, 2)
	p := New(w,
		WithName("orig"),
		WithIDs(ir.NewSequentialProvider("ph")),
		WithStateTensors(a),
		WithTags("#model"),
		WithDescription("demo"),
	)

	cp := p.Copy(ir.NewSequentialProvider("copy"))

	assert.Equal(t, ir.ID("copy-1"), cp.ID())
	assert.Equal(t, "orig", cp.Name())
	assert.Equal(t, []string{"#model"}, cp.Tags())
	assert.Equal(t, "demo", cp.Description())
	assert.Equal(t, p.VarCount(), cp.VarCount())

	src := p.State().Placeholders()[0]
	dup := cp.State().Placeholders()[0]
	assert.NotSame(t, src, dup)
	assert.Equal(t, src.ID(), dup.ID())
	assert.Equal(t, src.Tags(), dup.Tags())

	dupValue := dup.MustValue().(*tensor.Tensor)
	assert.NotSame(t, a, dupValue)
	dupValue.Set(0, 7)
	assert.Equal(t, []float64{1, 2}, a.Data())

	dup.ClearTags()
	assert.False(t, src.Tags().IsZero())
}

func TestPlan_FindPlaceholders(t *testing.T) {
	w := newTestWorker()
	inner := New(w, WithStateTensors(vec(t, "i", 1)))
	p := New(w,
		WithStateTensors(vec(t, "s", 1)),
		WithBlueprint(func(ctx context.Context, p *Plan, args []Value) ([]Value, error) {
			inner.State().Read()
			return []Value{vec(t, "out", 1)}, nil
		}),
	)
	_, err := p.Build(context.Background(), vec(t, "in", 1))
	require.NoError(t, err)

	ids := func(phs []*Placeholder) []ir.ID {
		out := make([]ir.ID, len(phs))
		for i, ph := range phs {
			out[i] = ph.MustValue().ID()
		}
		return out
	}

	assert.Equal(t, []ir.ID{"s", "i"}, ids(p.FindPlaceholders(ir.FlagState)))
	assert.Equal(t, []ir.ID{"i"}, ids(p.FindPlaceholders(ir.FlagInner)))
	assert.Equal(t, []ir.ID{"in"}, ids(p.FindPlaceholders(ir.FlagInput)))
	assert.Equal(t, []ir.ID{"out"}, ids(p.FindPlaceholders(ir.FlagOutput)))
	assert.Len(t, p.FindPlaceholders(), 4)
}

func TestPlan_ParametersAndGet(t *testing.T) {
	src := vec(t, "w", 3, 4)
	resolver := resolverFunc(func(context.Context, string, ir.ID) (*tensor.Tensor, error) {
		return src, nil
	})
	p := New(newTestWorker(), WithStateTensors(tensor.NewPointer("w", []int{2}, "alice", resolver)))

	require.NoError(t, p.Get(context.Background()))

	params := p.Parameters()
	require.Len(t, params, 1)
	assert.Equal(t, []float64{3, 4}, params[0].(*tensor.Tensor).Data())
}

func TestPlan_String(t *testing.T) {
	p := New(newTestWorker(), WithID("p-1"), WithName("net"), WithTags("#a", "#b"))
	assert.Equal(t, "<Plan net id:p-1 Tags: #a #b>", p.String())

	p = New(newTestWorker(), WithID("p-2"), WithName("net"), WithBuilt(true))
	assert.Equal(t, "<Plan net id:p-2 built>", p.String())
}
