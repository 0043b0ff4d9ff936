package worker

import (
	"errors"
	"fmt"

	"github.com/roach88/planstate/internal/ir"
)

var (
	// ErrNoStore is returned by persistence operations on a worker without a store.
	ErrNoStore = errors.New("worker has no store")

	// ErrUnknownWorker is returned when a location is not in the directory.
	ErrUnknownWorker = errors.New("unknown worker")
)

// NotRegisteredError reports a lookup of an identity the worker does not hold.
type NotRegisteredError struct {
	Worker string
	ID     ir.ID
}

// Error implements the error interface.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("worker %s: no object registered under %s", e.Worker, e.ID)
}

// IsNotRegistered checks if an error is a NotRegisteredError.
// Uses errors.As to handle wrapped errors.
func IsNotRegistered(err error) bool {
	var nr *NotRegisteredError
	return errors.As(err, &nr)
}
