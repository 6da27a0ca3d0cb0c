package session

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a session that was started
	// before.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrClosed is returned after the session was shut down.
	ErrClosed = errors.New("session closed")

	// ErrUnknownService is returned when creating a service that was not
	// registered.
	ErrUnknownService = errors.New("unknown service")
)
