package mi

import (
	"errors"
	"fmt"
)

// Sentinel errors for the mi package.
var (
	// ErrEncoding is wrapped by every error returned while encoding a
	// command.
	ErrEncoding = errors.New("mi: cannot encode command")

	// ErrSyntax is wrapped by every error returned while parsing output.
	ErrSyntax = errors.New("mi: syntax error")
)

// EncodeError describes a command that cannot be represented on the wire.
type EncodeError struct {
	Verb   string
	Token  string
	Reason string
}

func (e *EncodeError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("encode %s: token %q: %s", e.Verb, e.Token, e.Reason)
	}
	return fmt.Sprintf("encode %q: %s", e.Verb, e.Reason)
}

func (e *EncodeError) Unwrap() error {
	return ErrEncoding
}

// SyntaxError describes malformed debugger output.
type SyntaxError struct {
	Line   string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("parse %q at offset %d: %s", e.Line, e.Offset, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}
