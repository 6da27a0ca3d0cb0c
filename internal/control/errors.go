package control

import (
	"errors"
	"fmt"
)

// Sentinel errors for the control package.
var (
	// ErrSessionTerminated is wrapped by the completion status of every
	// command that was queued or outstanding when the connection ended,
	// and of every command submitted afterwards.
	ErrSessionTerminated = errors.New("connection is shut down")

	// ErrUnknownDialect is returned when a dialect name is not registered.
	ErrUnknownDialect = errors.New("unknown dialect")
)

// CommandError is the completion status of a command the debugger
// answered with "^error".
type CommandError struct {
	// Command is the line that was sent, without its token.
	Command string

	// Message is the debugger's explanation.
	Message string

	// Code is the optional error code, for example "undefined-command".
	Code string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: command failed", e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// ProtocolError is the completion status of a command whose result record
// could not be parsed.
type ProtocolError struct {
	Command string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: malformed result: %v", e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
