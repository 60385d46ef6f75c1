package config

import "errors"

// Sentinel errors. Validation failures wrap ErrInvalidConfig and, where a
// metric name is at fault, ErrUnknownMetric as well.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	ErrUnknownMetric = errors.New("unknown metric type")
)
