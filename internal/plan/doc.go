// Package plan implements the mutable state bound to a reusable,
// relocatable execution plan.
//
// A Plan owns a State: an ordered sequence of Placeholders, each a named,
// identity-bearing slot that may hold a bound Value. The package keeps the
// mapping between slots and values consistent across three operations:
//
//   - Promotion: State.Read, called while an ancestor plan is being
//     traced, hoists the reading state's placeholders into the ancestor's
//     state with "#inner", "#state" and "#N" tags.
//   - Simplify: the slot sequence and the value sequence are encoded
//     independently into a 2-tuple wire form.
//   - Detail: both halves are decoded, every value is registered with the
//     receiving worker under its own identity, and values are bound to
//     placeholders strictly by position.
//
// # Capture frames
//
// Nested tracing is modelled as a stack of Frames on a Tracer. Plan.Build
// pushes a frame for the plan being traced and pops it on exit; State.Read
// consults the innermost frame. A frame records every placeholder it
// promoted, in order.
//
// Promotion re-appends every placeholder of the reading state on every
// read. Repeated reads inside one trace therefore duplicate promotions;
// downstream slot ordering depends on this, so it is preserved.
//
// # Concurrency
//
// State is not safe for concurrent mutation. Promotion into an ancestor
// plan is serialized by the ancestor's lock so concurrent nested reads
// cannot interleave slot indices.
package plan
