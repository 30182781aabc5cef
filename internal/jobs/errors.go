package jobs

import "errors"

var (
	// ErrNotReady is returned by a non-blocking Fetch of an unfinished job.
	ErrNotReady = errors.New("job is not finished")

	// ErrAwaitTimeout is returned when a blocking fetch gives up waiting.
	ErrAwaitTimeout = errors.New("timed out waiting for job")
)
