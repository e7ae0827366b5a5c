package report

import "errors"

// Sentinel kinds for report errors.
var (
	ErrUnknownMode = errors.New("unknown parse mode")
)
