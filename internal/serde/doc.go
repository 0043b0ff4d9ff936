// Package serde is the generic simplify/detail codec for placeholders,
// tensors, sequences, states and plans.
//
// Every simplified object is framed in an ir.Envelope whose type code
// selects the decoder. Sequences are envelopes of type "list" whose body
// is a JSON array of envelopes, so positional alignment between the two
// halves of a state is exactly the array order.
//
// Placeholders decoded within one Session share a single instance per id
// and tag key. A session lives for one top-level Detail call; a plan decode runs
// its state, nested states, inputs and outputs through the same session.
package serde
