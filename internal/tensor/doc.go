// Package tensor is the numeric value runtime bound into placeholders.
//
// A Tensor is a dense float64 array with a shape and a process-wide
// identity. Parameters additionally carry a gradient buffer. A remote
// reference (pointer) carries only a location and an identity until Fetch
// materializes it in place.
//
// The package supplies exactly the primitives plan state relies on:
//   - Clone: deep copy sharing no storage, identity kept
//   - EnsureGrad: explicit zero-initialized gradient allocation
//   - Fetch: remote result into local form, in place
package tensor
