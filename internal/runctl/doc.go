// Package runctl tracks the execution state of the processes and threads
// behind one debugger connection.
//
// The Service consumes asynchronous MI records (=thread-group-*,
// =thread-created, =thread-exited, *running, *stopped) and maintains a
// model of containers and threads expressed as dmcontext values. It is
// registered with a control.Control as an event processor and, like the
// correlator, is owned by the session dispatcher: every method must be
// called on the dispatcher.
//
// Events are delivered to listeners after the model is updated:
//
//	svc.AddListener(func(ev runctl.Event) {
//	    if ev.Kind == runctl.EventSuspended {
//	        log.Printf("%s stopped: %s", ev.Context, ev.Reason)
//	    }
//	})
package runctl
