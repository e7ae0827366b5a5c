package engine

import "errors"

// Sentinel errors for the rating engine.
var (
	// ErrProcess wraps every failure of Process. Nothing was committed.
	ErrProcess = errors.New("process report")
	// ErrShape is returned when a model answers with a different tier shape.
	ErrShape = errors.New("rating model returned mismatched tiers")
)
