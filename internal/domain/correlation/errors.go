package correlation

import "errors"

var (
	// ErrInvalidPair is returned when both sides of a pair name the same metric.
	ErrInvalidPair = errors.New("correlation: a metric cannot be paired with itself")
	// ErrInvalidWindow is returned when the window is empty or inverted.
	ErrInvalidWindow = errors.New("correlation: invalid window")
	// ErrJobPending is returned by Job.Result before the job has finished.
	ErrJobPending = errors.New("correlation: job still running")
)
