package replay

import "errors"

// Sentinel errors for history replay.
var (
	ErrReset   = errors.New("reset rating store")
	ErrHistory = errors.New("read history")
	ErrReplay  = errors.New("replay report")
)
