package persistence

import "errors"

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("persistence: unknown driver")
	// ErrCorrupt is returned when a stored series cannot be decoded.
	ErrCorrupt = errors.New("persistence: corrupt series block")
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("persistence: backend closed")
)
