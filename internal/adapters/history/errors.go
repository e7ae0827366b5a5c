package history

import "errors"

// Sentinel errors for history sources.
var (
	ErrOpen   = errors.New("open history")
	ErrDecode = errors.New("decode history")
)
