package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrOpen          = errors.New("open database failed")
	ErrMigrate       = errors.New("migrate database failed")
	ErrNotFound      = errors.New("player not found")
)
