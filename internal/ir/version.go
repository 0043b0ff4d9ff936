package ir

// Version constants for the wire schema and the tool.
const (
	// WireVersion is the wire schema version.
	WireVersion = "1"

	// ToolVersion is the planstate version.
	ToolVersion = "0.1.0"
)
