package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a plan-capture scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifest is a directory of CUE plan declarations.
	// Relative paths are resolved against the scenario file location.
	Manifest string `yaml:"manifest,omitempty"`

	// Source is an inline CUE manifest, used when Manifest is empty.
	Source string `yaml:"source,omitempty"`

	// Worker names the worker plans are built on. Defaults to "alice".
	Worker string `yaml:"worker,omitempty"`

	// Flow is executed in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the plans after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep is one operation on a plan. Exactly one of Build, Call and
// Roundtrip is set.
type FlowStep struct {
	Build     string `yaml:"build,omitempty"`
	Call      string `yaml:"call,omitempty"`
	Roundtrip string `yaml:"roundtrip,omitempty"`

	// Args are passed to build and call as 1-D tensors.
	Args []TensorArg `yaml:"args,omitempty"`

	// Expect checks the step outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Op returns the step type and the plan it targets.
func (s FlowStep) Op() (string, string) {
	switch {
	case s.Build != "":
		return StepBuild, s.Build
	case s.Call != "":
		return StepCall, s.Call
	default:
		return StepRoundtrip, s.Roundtrip
	}
}

// TensorArg declares a 1-D argument tensor.
type TensorArg struct {
	ID   string    `yaml:"id"`
	Data []float64 `yaml:"data"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Output is the expected sum of the step outputs.
	Output *float64 `yaml:"output,omitempty"`

	// Error, if set, is a substring the step error must contain.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates a plan after the flow.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Plan names the plan under test. Unused by registered.
	Plan string `yaml:"plan,omitempty"`

	// Count is used by state_len, var_count, nested_states and registered.
	Count int `yaml:"count,omitempty"`

	// Tags is the expected tag list of every state placeholder (state_tags).
	Tags [][]string `yaml:"tags,omitempty"`
}

// Step types.
const (
	StepBuild     = "build"
	StepCall      = "call"
	StepRoundtrip = "roundtrip"
)

// Assertion type constants.
const (
	AssertStateLen     = "state_len"
	AssertStateTags    = "state_tags"
	AssertVarCount     = "var_count"
	AssertNestedStates = "nested_states"
	AssertRegistered   = "registered"
)

// DefaultWorker is the worker id used when a scenario names none.
const DefaultWorker = "alice"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative manifest path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) {
		scenario.Manifest = filepath.Join(filepath.Dir(path), scenario.Manifest)
	}
	if err := validateManifestPath(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes and validates a scenario. Manifest paths are left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Worker == "" {
		scenario.Worker = DefaultWorker
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Manifest == "" && s.Source == "" {
		return fmt.Errorf("one of manifest or source is required")
	}
	if s.Manifest != "" && s.Source != "" {
		return fmt.Errorf("manifest and source are mutually exclusive")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		set := 0
		for _, name := range []string{step.Build, step.Call, step.Roundtrip} {
			if name != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("flow[%d]: exactly one of build, call or roundtrip is required", i)
		}
		if step.Roundtrip != "" && len(step.Args) > 0 {
			return fmt.Errorf("flow[%d]: roundtrip takes no args", i)
		}
		for j, arg := range step.Args {
			if arg.ID == "" {
				return fmt.Errorf("flow[%d].args[%d]: id is required", i, j)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateManifestPath(s *Scenario) error {
	if s.Manifest == "" {
		return nil
	}
	info, err := os.Stat(s.Manifest)
	if err != nil {
		return fmt.Errorf("manifest not found: %s", s.Manifest)
	}
	if !info.IsDir() {
		return fmt.Errorf("manifest is not a directory: %s", s.Manifest)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStateLen, AssertVarCount, AssertNestedStates:
		if a.Plan == "" {
			return fmt.Errorf("assertions[%d]: plan is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertStateTags:
		if a.Plan == "" {
			return fmt.Errorf("assertions[%d]: plan is required for state_tags", index)
		}
		if len(a.Tags) == 0 {
			return fmt.Errorf("assertions[%d]: tags list is required for state_tags", index)
		}
	case AssertRegistered:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for registered", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
