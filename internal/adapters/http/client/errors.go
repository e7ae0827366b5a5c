package client

import "errors"

// ErrServer is returned for server failures with no service meaning.
var ErrServer = errors.New("server error")
