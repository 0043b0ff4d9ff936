package serde

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/metrics"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/tensor"
)

func sampleState(t *testing.T, owner plan.Owner) *plan.State {
	t.Helper()
	w, err := tensor.NewParameter("w", []int{2}, []float64{1, 2.5})
	require.NoError(t, err)
	b := tensor.MustNew("b", []int{1}, []float64{0.5})

	p1 := plan.NewPlaceholder("p-1", ir.NewTags(1, ir.FlagState)).Instantiate(w)
	p2 := plan.NewPlaceholder("p-2", ir.NewTags(2, ir.FlagInner, ir.FlagState)).Instantiate(b)
	return plan.NewState(owner, p1, p2)
}

func TestStateRoundTrip(t *testing.T) {
	sender := newTestWorker()
	receiver := newTestWorker()
	codec := newTestCodec()
	src := sampleState(t, sender)

	data, err := codec.Marshal(sender, src)
	require.NoError(t, err)

	got, err := codec.UnmarshalState(receiver, data)
	require.NoError(t, err)

	require.Equal(t, src.Len(), got.Len())
	assert.Same(t, receiver, got.Owner())
	want := src.Tensors()
	for i, v := range got.Tensors() {
		gt := v.(*tensor.Tensor)
		wt := want[i].(*tensor.Tensor)
		assert.Equal(t, wt.ID(), gt.ID())
		assert.True(t, wt.Equal(gt), "slot %d content", i)
		assert.NotSame(t, wt, gt)
		assert.Same(t, gt, receiver.registered[gt.ID()], "value registered under its identity")
	}
	for i, ph := range got.Placeholders() {
		assert.Equal(t, src.Placeholders()[i].ID(), ph.ID())
		assert.Equal(t, src.Placeholders()[i].Tags(), ph.Tags())
	}
}

func TestStateWire_Golden(t *testing.T) {
	codec := newTestCodec()
	data, err := codec.Marshal(newTestWorker(), sampleState(t, nil))
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "state_wire", data)
}

func TestStateWire_IsDeterministic(t *testing.T) {
	codec := newTestCodec()
	w := newTestWorker()

	first, err := codec.Marshal(w, sampleState(t, w))
	require.NoError(t, err)
	second, err := codec.Marshal(w, sampleState(t, w))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	d1, err := ir.StateDigest(first)
	require.NoError(t, err)
	d2, err := ir.StateDigest(second)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestStateWire_PairingIsPositional(t *testing.T) {
	codec := newTestCodec()
	w := newTestWorker()

	wire, err := plan.Simplify(codec, w, sampleState(t, w))
	require.NoError(t, err)

	// Reverse the value half only.
	var env ir.Envelope
	require.NoError(t, json.Unmarshal(wire[1], &env))
	var items []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Body, &items))
	items[0], items[1] = items[1], items[0]
	env.Body, err = json.Marshal(items)
	require.NoError(t, err)
	wire[1], err = json.Marshal(env)
	require.NoError(t, err)

	got, err := plan.Detail(codec, w, wire)
	require.NoError(t, err)

	phs := got.Placeholders()
	assert.Equal(t, ir.ID("p-1"), phs[0].ID())
	assert.Equal(t, ir.ID("b"), phs[0].MustValue().ID(), "p-1 now holds what was sent second")
	assert.Equal(t, ir.ID("w"), phs[1].MustValue().ID())
}

func TestStateWire_LengthMismatch(t *testing.T) {
	codec := newTestCodec()
	w := newTestWorker()

	wire, err := plan.Simplify(codec, w, sampleState(t, w))
	require.NoError(t, err)
	wire[1], err = codec.Simplify(w, []plan.Value{tensor.MustNew("only", []int{1}, []float64{1})})
	require.NoError(t, err)

	_, err = plan.Detail(codec, w, wire)
	assert.True(t, plan.IsMalformed(err))
	assert.Empty(t, w.registered)
}

func TestDetail_SharesPlaceholdersByIDAndTags(t *testing.T) {
	codec := newTestCodec()
	w := newTestWorker()
	a := plan.NewPlaceholder("a", ir.NewTags(1, ir.FlagInput))
	aAgain := plan.NewPlaceholder("a", ir.NewTags(1, ir.FlagInput))
	b := plan.NewPlaceholder("b", ir.NewTags(1, ir.FlagInput))
	u1 := plan.NewPlaceholder("u1", ir.Tags{})
	u2 := plan.NewPlaceholder("u2", ir.Tags{})

	data, err := codec.Simplify(w, []*plan.Placeholder{a, aAgain, b, u1, u2})
	require.NoError(t, err)

	raw, err := codec.Detail(w, data)
	require.NoError(t, err)
	items := raw.([]any)
	require.Len(t, items, 5)

	assert.Same(t, items[0], items[1], "same id and tags decode to one instance")
	assert.NotSame(t, items[0], items[2], "equal tags alone are not enough to share")
	assert.Equal(t, ir.ID("b"), items[2].(*plan.Placeholder).ID())
	assert.NotSame(t, items[3], items[4], "untagged placeholders are never shared")

	// A new top-level call starts a new session.
	again, err := codec.Detail(w, data)
	require.NoError(t, err)
	assert.NotSame(t, items[0], again.([]any)[0])
}

func TestStateRoundTrip_EqualTagsAcrossPlans(t *testing.T) {
	sender := newTestWorker()
	ta := tensor.MustNew("ta", []int{1}, []float64{1})
	tb := tensor.MustNew("tb", []int{2}, []float64{2, 3})

	// Each plan numbers its own slots, so both state placeholders are #state #1.
	pa := plan.New(sender, plan.WithIDs(ir.NewSequentialProvider("a")), plan.WithStateTensors(ta))
	pb := plan.New(sender, plan.WithIDs(ir.NewSequentialProvider("b")), plan.WithStateTensors(tb))
	src := plan.NewState(sender, append(pa.State().Placeholders(), pb.State().Placeholders()...)...)
	require.Equal(t, src.Placeholders()[0].Tags().Key(), src.Placeholders()[1].Tags().Key())

	codec := newTestCodec()
	data, err := codec.Marshal(sender, src)
	require.NoError(t, err)

	receiver := newTestWorker()
	got, err := codec.UnmarshalState(receiver, data)
	require.NoError(t, err)

	require.Equal(t, 2, got.Len())
	phs := got.Placeholders()
	assert.NotSame(t, phs[0], phs[1])
	assert.NotEqual(t, phs[0].ID(), phs[1].ID())
	assert.Equal(t, src.Placeholders()[0].ID(), phs[0].ID())
	assert.Equal(t, src.Placeholders()[1].ID(), phs[1].ID())

	values := got.Tensors()
	assert.True(t, ta.Equal(values[0].(*tensor.Tensor)))
	assert.True(t, tb.Equal(values[1].(*tensor.Tensor)))
}

func TestTensorWire_GradAndPointer(t *testing.T) {
	codec := newTestCodec()
	alice := newTestWorker()
	bob := newTestWorker()
	bob.peers["alice"] = alice

	w, err := tensor.NewParameter("w", []int{2}, []float64{3, 4})
	require.NoError(t, err)
	require.NoError(t, w.EnsureGrad())
	alice.registered["w"] = w

	data, err := codec.Simplify(alice, w)
	require.NoError(t, err)
	raw, err := codec.Detail(bob, data)
	require.NoError(t, err)
	got := raw.(*tensor.Tensor)
	require.NotNil(t, got.Grad())
	assert.Equal(t, []float64{0, 0}, got.Grad().Data())
	assert.True(t, got.IsParameter())

	ptrData, err := codec.Simplify(bob, tensor.NewPointer("w", []int{2}, "alice", nil))
	require.NoError(t, err)
	raw, err = codec.Detail(bob, ptrData)
	require.NoError(t, err)
	ptr := raw.(*tensor.Tensor)
	require.True(t, ptr.IsRemote())
	assert.Equal(t, "alice", ptr.Location())

	require.NoError(t, ptr.Fetch(context.Background()), "decoded pointers resolve through the receiving worker")
	assert.Equal(t, []float64{3, 4}, ptr.Data())
}

func TestPlanRoundTrip(t *testing.T) {
	codec := newTestCodec()
	sender := newTestWorker()
	ids := ir.NewSequentialProvider("ph")

	inner := plan.New(sender, plan.WithName("inner"), plan.WithIDs(ids),
		plan.WithStateTensors(tensor.MustNew("i", []int{1}, []float64{7})))
	outer := plan.New(sender,
		plan.WithID("plan-1"),
		plan.WithName("outer"),
		plan.WithIDs(ids),
		plan.WithTags("#net"),
		plan.WithDescription("two layers"),
		plan.WithStateTensors(tensor.MustNew("o", []int{1}, []float64{1})),
		plan.WithBlueprint(func(ctx context.Context, p *plan.Plan, args []plan.Value) ([]plan.Value, error) {
			inner.State().Read()
			return []plan.Value{tensor.MustNew("out", []int{1}, []float64{0})}, nil
		}),
	)
	_, err := outer.Build(context.Background(), tensor.MustNew("x", []int{1}, []float64{2}))
	require.NoError(t, err)

	data, err := codec.Marshal(sender, outer)
	require.NoError(t, err)
	kind, err := Kind(data)
	require.NoError(t, err)
	assert.Equal(t, ir.TypePlan, kind)

	receiver := newTestWorker()
	got, err := codec.UnmarshalPlan(receiver, data)
	require.NoError(t, err)

	assert.Equal(t, ir.ID("plan-1"), got.ID())
	assert.Equal(t, "outer", got.Name())
	assert.True(t, got.IsBuilt())
	assert.Equal(t, []string{"#net"}, got.Tags())
	assert.Equal(t, "two layers", got.Description())
	assert.Equal(t, outer.VarCount(), got.VarCount())

	require.Equal(t, 2, got.State().Len())
	assert.Equal(t, []string{"#state", "#1"}, got.State().Placeholders()[0].Tags().Strings())
	assert.Equal(t, []string{"#inner", "#state", "#3"}, got.State().Placeholders()[1].Tags().Strings())

	nested := got.NestedStates()
	require.Len(t, nested, 1)
	require.Equal(t, 1, nested[0].Len())
	assert.Equal(t, ir.ID("i"), nested[0].Tensors()[0].ID())
	assert.NotSame(t, got.State().Placeholders()[0], nested[0].Placeholders()[0],
		"nested state decodes in its own session despite sharing the #state #1 key")
	assert.Equal(t, ir.ID("o"), got.State().Tensors()[0].ID())

	require.Len(t, got.Inputs(), 1)
	assert.Equal(t, []string{"#input", "#2"}, got.Inputs()[0].Tags().Strings())
	require.Len(t, got.Outputs(), 1)
	assert.Equal(t, []string{"#output", "#4"}, got.Outputs()[0].Tags().Strings())

	ph, ok := got.PlaceholderFor("i")
	require.True(t, ok)
	assert.True(t, ph.Tags().Has(ir.FlagInner))
}

func TestDetailErrors(t *testing.T) {
	codec := newTestCodec()
	w := newTestWorker()

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown type", `{"type":"matrix","body":{}}`},
		{"bad tag", `{"type":"placeholder","body":{"id":"p","tags":["#bogus"]}}`},
		{"shape mismatch", `{"type":"tensor","body":{"id":"t","shape":[3],"data":[1]}}`},
		{"list of scalars", `{"type":"list","body":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Detail(w, json.RawMessage(tt.data))
			assert.Error(t, err)
		})
	}

	_, err := codec.Detail(w, json.RawMessage(`{"type":"matrix","body":{}}`))
	assert.ErrorIs(t, err, ErrUnknownType)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "matrix", de.Type)
}

func TestSimplifyUnsupported(t *testing.T) {
	_, err := newTestCodec().Simplify(newTestWorker(), 42)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestUnmarshalVersionMismatch(t *testing.T) {
	_, err := newTestCodec().Unmarshal(newTestWorker(), []byte(`{"version":"0","object":{}}`))
	assert.ErrorIs(t, err, ErrVersion)
}

func TestUnmarshalWrongKind(t *testing.T) {
	codec := newTestCodec()
	w := newTestWorker()
	data, err := codec.Marshal(w, sampleState(t, w))
	require.NoError(t, err)

	_, err = codec.UnmarshalPlan(w, data)
	assert.ErrorContains(t, err, "want *plan.Plan")
}

func TestCodecMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	codec := New(WithMetrics(m), WithLogger(discardLogger()))
	w := newTestWorker()

	data, err := codec.Marshal(w, sampleState(t, w))
	require.NoError(t, err)
	_, err = codec.Unmarshal(w, data)
	require.NoError(t, err)
	_, _ = codec.Detail(w, json.RawMessage(`{"type":"matrix","body":{}}`))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodecOpsTotal.WithLabelValues("simplify", "state", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodecOpsTotal.WithLabelValues("simplify", "tensor", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodecOpsTotal.WithLabelValues("detail", "state", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodecOpsTotal.WithLabelValues("detail", "matrix", "error")))
	assert.Greater(t, testutil.ToFloat64(m.CodecBytesTotal.WithLabelValues("simplify")), 0.0)
}
