// Package harness runs plan-capture scenarios as executable contract tests.
//
// A scenario loads a CUE manifest, builds and calls plans on a fresh
// worker, and checks the captured states.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: nested_promotion
//	description: "Building the model promotes the layer state"
//	manifest: plans          # directory of .cue files, relative to the scenario
//	flow:
//	  - build: model
//	    args:
//	      - {id: x, data: [1.0]}
//	    expect:
//	      output: 3.5
//	  - roundtrip: model
//	assertions:
//	  - type: state_len
//	    plan: model
//	    count: 5
//	  - type: state_tags
//	    plan: model
//	    tags:
//	      - ["#state", "#1"]
//	      - ["#inner", "#state", "#2"]
//
// Instead of manifest, a scenario may carry the CUE inline under source.
//
// # Step Types
//
//   - build: traces the plan, capturing nested state reads
//   - call: runs the plan's blueprint without tracing
//   - roundtrip: serializes the plan, decodes it on a replica worker and
//     checks that the replica serializes to the same bytes
//
// # Assertion Types
//
//   - state_len: the plan's state holds exactly count placeholders
//   - state_tags: the plan's state placeholders carry exactly tags, in order
//   - var_count: the plan's placeholder counter stands at count
//   - nested_states: the last build captured count nested states
//   - registered: the worker registry holds count objects
//
// # Deterministic Testing
//
// Every run uses sequential placeholder and plan identities, a
// fresh worker.Clock and an in-memory SQLite store, so the final
// plan documents compare byte for byte against golden files.
package harness
