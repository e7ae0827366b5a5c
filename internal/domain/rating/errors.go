package rating

import "errors"

// Sentinel kinds for rating model errors.
var (
	ErrNoTiers       = errors.New("no tiers to rate")
	ErrEmptyTier     = errors.New("empty tier")
	ErrInvalidRating = errors.New("invalid rating")
	ErrUnknownModel  = errors.New("unknown rating model")
)
