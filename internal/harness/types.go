package harness

import "encoding/json"

// TraceEvent is one executed flow step. Captured is the state length
// after a build; Output is the summed plan output after a call.
type TraceEvent struct {
	Type     string   `json:"type"`
	Plan     string   `json:"plan"`
	Output   *float64 `json:"output,omitempty"`
	Error    string   `json:"error,omitempty"`
	Captured int      `json:"captured,omitempty"`
	Seq      int64    `json:"seq"`
}

// Result collects a scenario run. Documents maps plan name to the
// plan's final serialized form.
type Result struct {
	Pass      bool                       `json:"pass"`
	Trace     []TraceEvent               `json:"trace"`
	Errors    []string                   `json:"errors,omitempty"`
	Documents map[string]json.RawMessage `json:"documents,omitempty"`
}

func newResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Documents: map[string]json.RawMessage{},
	}
}

func (r *Result) fail(msg string) {
	r.Pass = false
	r.Errors = append(r.Errors, msg)
}
