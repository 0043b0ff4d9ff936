package tensor

import "errors"

var (
	// ErrShapeMismatch is returned when data length disagrees with shape.
	ErrShapeMismatch = errors.New("tensor: data length does not match shape")

	// ErrNotRemote is returned by Fetch on a tensor that already holds local data.
	ErrNotRemote = errors.New("tensor: not a remote reference")

	// ErrRemoteGrad is returned when a gradient is requested for a remote reference.
	ErrRemoteGrad = errors.New("tensor: cannot allocate gradient on a remote reference")

	// ErrNoResolver is returned when a remote reference has no resolver attached.
	ErrNoResolver = errors.New("tensor: remote reference has no resolver")
)
