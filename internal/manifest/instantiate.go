package manifest

import (
	"context"
	"fmt"

	"github.com/roach88/planstate/internal/ir"
	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/tensor"
)

// Instantiate creates one plan per definition, owned by owner. Tensor
// identities are "<plan>.<field>"; placeholder and plan identities come
// from ids.
func Instantiate(owner plan.Owner, ids ir.IDProvider, m *Manifest) (map[string]*plan.Plan, error) {
	plans := make(map[string]*plan.Plan, len(m.Plans))
	for _, def := range m.Plans {
		values := make([]plan.Value, 0, len(def.State))
		for _, td := range def.State {
			t, err := newTensor(def.Name, td)
			if err != nil {
				return nil, err
			}
			values = append(values, t)
		}

		plans[def.Name] = plan.New(owner,
			plan.WithName(def.Name),
			plan.WithIDs(ids),
			plan.WithDescription(def.Description),
			plan.WithTags(def.Tags...),
			plan.WithStateTensors(values...),
			plan.WithBlueprint(blueprint(def, plans)),
		)
	}
	return plans, nil
}

func newTensor(planName string, td TensorDef) (*tensor.Tensor, error) {
	id := ir.ID(planName + "." + td.Name)
	var (
		t   *tensor.Tensor
		err error
	)
	if td.Data == nil {
		t = tensor.Zeros(id, td.Shape)
	} else {
		t, err = tensor.New(id, td.Shape, td.Data)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", planName, err)
		}
	}
	if td.Param {
		t.RequireGrad()
	}
	return t, nil
}

// blueprint reads the plan's own state, then calls every nested plan
// def.Reads times. Each call reads the nested plan's state. The result is
// a single-element tensor "<plan>/out" holding the sum of the plan's own
// state, every nested result and every argument.
//
// plans is resolved lazily so definitions may nest plans declared later.
func blueprint(def Definition, plans map[string]*plan.Plan) plan.Blueprint {
	return func(ctx context.Context, p *plan.Plan, args []plan.Value) ([]plan.Value, error) {
		var total float64
		total += sum(p.State().Read())

		for _, name := range def.Nested {
			nested, ok := plans[name]
			if !ok {
				return nil, fmt.Errorf("plan %s: nested plan %q not instantiated", def.Name, name)
			}
			for i := 0; i < def.Reads; i++ {
				out, err := nested.Call(ctx, args...)
				if err != nil {
					return nil, fmt.Errorf("plan %s: call %s: %w", def.Name, name, err)
				}
				total += sum(out)
			}
		}
		total += sum(args)

		out, err := tensor.New(ir.ID(def.Name+"/out"), []int{1}, []float64{total})
		if err != nil {
			return nil, err
		}
		return []plan.Value{out}, nil
	}
}

func sum(values []plan.Value) float64 {
	var s float64
	for _, v := range values {
		if t, ok := v.(*tensor.Tensor); ok {
			s += t.Sum()
		}
	}
	return s
}
