package control

import (
	"github.com/dshills/dbgcore/internal/async"
	"github.com/dshills/dbgcore/internal/mi"
)

// Handle tracks one submitted command.
type Handle struct {
	cmd      *mi.Command
	tok      *async.DataToken[*mi.Output]
	line     string
	id       int
	seq      uint64
	sent     bool
	finished bool
}

// Command returns the submitted command.
func (h *Handle) Command() *mi.Command { return h.cmd }

// Token returns the completion token, or nil for commands the control
// issues on its own behalf.
func (h *Handle) Token() *async.DataToken[*mi.Output] { return h.tok }

// ID returns the correlation token, or 0 before the command is sent and
// for raw commands.
func (h *Handle) ID() int { return h.id }

// Line returns the encoded command without its correlation token.
func (h *Handle) Line() string { return h.line }

// Internal reports whether the control issued the command itself, for
// example to select a thread.
func (h *Handle) Internal() bool { return h.tok == nil }

// CommandListener observes the life cycle of commands. Methods run on the
// session dispatcher.
type CommandListener interface {
	// CommandQueued is called when a command enters the waiting queue.
	CommandQueued(h *Handle)

	// CommandSent is called when a command is handed to the writer.
	CommandSent(h *Handle)

	// CommandRemoved is called when a command leaves the queue without
	// being sent, usually because it was cancelled.
	CommandRemoved(h *Handle)

	// CommandDone is called when a command's result arrives or the
	// connection ends while it is queued or outstanding.
	CommandDone(h *Handle, out *mi.Output, err error)
}

// OrphanObserver may be implemented by a CommandListener to learn about
// result records that match no outstanding command.
type OrphanObserver interface {
	OrphanResult(rec *mi.Record)
}

// EventProcessor receives asynchronous records on the session dispatcher.
type EventProcessor interface {
	ProcessEvent(rec *mi.Record)
}

// EventProcessorFunc adapts a function to EventProcessor.
type EventProcessorFunc func(rec *mi.Record)

// ProcessEvent calls f.
func (f EventProcessorFunc) ProcessEvent(rec *mi.Record) {
	f(rec)
}
