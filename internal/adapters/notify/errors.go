package notify

import "errors"

// Sentinel errors for notifiers.
var (
	ErrStatus      = errors.New("webhook returned non-2xx status")
	ErrRateLimited = errors.New("webhook rate limit wait aborted")
)
