package jobs

import "errors"

// Sentinel errors for job store operations.
var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrJobNotFound    = errors.New("job not found")
	ErrNotRetryable   = errors.New("job is not in a terminal state")
)
