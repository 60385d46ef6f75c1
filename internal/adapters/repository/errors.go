package repository

import "errors"

// Sentinel kinds for metric store errors.
var (
	ErrInvalidRange  = errors.New("invalid time range")
	ErrInvalidBucket = errors.New("invalid bucket duration")
)
