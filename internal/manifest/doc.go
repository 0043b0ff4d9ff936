// Package manifest loads plan definitions from CUE and instantiates them
// as plan.Plan values.
//
// A manifest declares plans under the top-level "plan" struct:
//
//	plan: layer: {
//		state: {
//			w: {shape: [2], data: [0.5, -1.0], param: true}
//			b: {shape: [1], data: [0.1]}
//		}
//	}
//
//	plan: model: {
//		description: "two stacked layers"
//		state: scale: {shape: [1], data: [2.0]}
//		nested: ["layer"]
//		reads: 2
//	}
//
// State fields keep their declaration order; that order is the slot order
// of the instantiated plan. Every instantiated plan gets a blueprint that
// reads its own state and calls each nested plan in order, "reads" times
// (default 1). A nested call reads the nested state, so building the outer
// plan promotes the nested states into it.
package manifest
