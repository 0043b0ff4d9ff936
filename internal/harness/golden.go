package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/planstate/internal/ir"
)

// Snapshot is what golden files hold for a scenario.
type Snapshot struct {
	ScenarioName string                     `json:"scenario_name"`
	Trace        []TraceEvent               `json:"trace"`
	Documents    map[string]json.RawMessage `json:"documents"`
}

// RunWithGolden runs scenario and checks its snapshot against
// testdata/golden/<name>.golden. Pass -update to go test to rewrite the
// file. Mismatches fail t; the returned error is for run failures only.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	data, err := SnapshotJSON(scenario.Name, result)
	if err != nil {
		return nil, err
	}
	goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, scenario.Name, data)
	return result, nil
}

// SnapshotJSON renders result in canonical JSON, so equal runs produce
// equal bytes.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	return ir.MarshalCanonical(Snapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Documents:    result.Documents,
	})
}
