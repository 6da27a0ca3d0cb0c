// Package dispatch provides the single-goroutine task executor that owns a
// debugger session.
//
// Every piece of session state (pending commands, completion tokens, the
// context cache) is mutated only from tasks run by a Dispatcher. Tasks run
// one at a time in submission order and are never preempted by other tasks.
// Any goroutine may submit work; the transport reader, for instance, hands
// each decoded line to the dispatcher instead of touching session state
// itself.
//
// # Shutdown
//
// Shutdown rejects submissions from other goroutines, drains the tasks that
// are already queued, runs the hooks registered with OnShutdown and then
// stops the worker. Tasks submitted by the worker while draining are still
// accepted so that completion chains can finish.
//
// # Panic Recovery
//
// A task that panics does not take the worker down. The panic is reported
// through the configured PanicHandler and the next task runs.
//
// # Usage
//
//	d := dispatch.New(dispatch.WithName("gdb-1"), dispatch.WithLogger(logger))
//	d.Submit(func() {
//		// runs on the session goroutine
//	})
//	defer d.Shutdown(ctx)
package dispatch
