package harness

import (
	"fmt"
	"reflect"

	"github.com/roach88/planstate/internal/plan"
	"github.com/roach88/planstate/internal/worker"
)

// AssertionContext provides what assertions inspect after the flow.
type AssertionContext struct {
	Plans  map[string]*plan.Plan
	Worker *worker.Worker
}

// AssertionError describes an assertion that did not hold. Trace is the
// run up to the point of evaluation.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	msg := fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
	if n := len(e.Trace); n > 0 {
		last := e.Trace[n-1]
		msg += fmt.Sprintf(" (after %d steps, last %s %s)", n, last.Type, last.Plan)
	}
	return msg
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if a.Type == AssertRegistered {
		return assertRegistered(trace, a, actx.Worker)
	}

	p, ok := actx.Plans[a.Plan]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("plan %s", a.Plan),
			Actual:   "plan not declared",
			Trace:    trace,
		}
	}

	switch a.Type {
	case AssertStateLen:
		return assertCount(trace, a, p.State().Len())
	case AssertVarCount:
		return assertCount(trace, a, p.VarCount())
	case AssertNestedStates:
		return assertCount(trace, a, len(p.NestedStates()))
	case AssertStateTags:
		return assertStateTags(trace, a, p.State())
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCount(trace []TraceEvent, a Assertion, actual int) error {
	if actual == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s of plan %s = %d", a.Type, a.Plan, a.Count),
		Actual:   fmt.Sprintf("%d", actual),
		Trace:    trace,
	}
}

// assertStateTags compares the tag list of every placeholder, in state
// order.
func assertStateTags(trace []TraceEvent, a Assertion, s *plan.State) error {
	phs := s.Placeholders()
	actual := make([][]string, len(phs))
	for i, ph := range phs {
		actual[i] = ph.Tags().Strings()
	}
	if reflect.DeepEqual(normalizeTags(a.Tags), normalizeTags(actual)) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("plan %s state tags %v", a.Plan, a.Tags),
		Actual:   fmt.Sprintf("%v", actual),
		Trace:    trace,
	}
}

// normalizeTags maps nil and empty tag lists to the same value.
func normalizeTags(tags [][]string) [][]string {
	out := make([][]string, len(tags))
	for i, t := range tags {
		if len(t) == 0 {
			out[i] = []string{}
			continue
		}
		out[i] = t
	}
	return out
}

func assertRegistered(trace []TraceEvent, a Assertion, w *worker.Worker) error {
	n := len(w.Objects())
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d registered objects on %s", a.Count, w.ID()),
		Actual:   fmt.Sprintf("%d: %v", n, w.Objects()),
		Trace:    trace,
	}
}
