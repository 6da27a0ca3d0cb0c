package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrShutdown is returned when a task is submitted to a dispatcher that
	// is shutting down or has stopped.
	ErrShutdown = errors.New("dispatcher shut down")

	// ErrNilTask is returned when Submit is called with a nil task.
	ErrNilTask = errors.New("nil task")
)
