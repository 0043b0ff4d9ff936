package ir

// Value is anything that can be bound into a placeholder. Values carry
// their own identity; registries key them by it.
type Value interface {
	ID() ID

	// CloneValue returns an independent deep copy with the same identity.
	CloneValue() Value
}
