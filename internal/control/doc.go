// Package control correlates MI commands with their results.
//
// A Control owns the command queue of one debugger connection. Commands
// are encoded on the caller's goroutine, then queued on the session
// dispatcher, where each one receives a correlation token and is handed to
// the writer goroutine in submission order. At most MaxInFlight commands
// are outstanding at once; the rest wait in the queue.
//
// Result records arrive in any order and are matched to their command by
// token. Asynchronous records go to the registered EventProcessors. When
// the transport fails, every queued and outstanding command is completed
// with ErrSessionTerminated in submission order.
package control
