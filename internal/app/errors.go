package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrInvalidMessage    = errors.New("invalid message")
	ErrBusy              = errors.New("service busy")
	ErrUnavailable       = errors.New("service unavailable")
	ErrRebuildInProgress = errors.New("rebuild already queued")
	ErrJobNotFound       = errors.New("job not found")
	ErrUnknownJob        = errors.New("unknown job kind")
	ErrAlreadyApplied    = errors.New("report already applied")
)
