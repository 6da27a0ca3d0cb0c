package dispatch

import (
	"fmt"
	"runtime/debug"
)

// Task is a unit of work run by an Executor.
type Task func()

// Executor runs tasks serially.
type Executor interface {
	// Submit queues a task. It never runs the task inline unless the
	// executor is Immediate.
	Submit(task Task) error

	// InDispatcher reports whether the caller is running on the goroutine
	// that executes this executor's tasks.
	InDispatcher() bool
}

// PanicHandler is called when a task panics.
// It receives the panic value and the stack trace of the panicking task.
type PanicHandler func(panicValue any, stack []byte)

// ownershipChecker is implemented by executors whose ownership checks can
// be switched off.
type ownershipChecker interface {
	checksOwnership() bool
}

// AssertOwner panics when ownership checks are enabled for e and the caller
// is not running on e's goroutine. op names the offending operation.
func AssertOwner(e Executor, op string) {
	if e == nil {
		return
	}
	if c, ok := e.(ownershipChecker); ok && !c.checksOwnership() {
		return
	}
	if !e.InDispatcher() {
		panic(fmt.Sprintf("%s called off the dispatcher goroutine", op))
	}
}

// runTask executes a task and recovers from any panic it raises.
// It returns true if the task panicked.
func runTask(task Task, h PanicHandler) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			stack := debug.Stack()
			if h != nil {
				func() {
					defer func() { _ = recover() }()
					h(r, stack)
				}()
			}
		}
	}()
	task()
	return false
}

// immediate runs every task inline on the caller's goroutine.
type immediate struct{}

// Immediate is an Executor that runs tasks synchronously in the caller.
// It is meant for tests and for code that is already serialized by other
// means. Every caller is considered to be on the dispatcher.
var Immediate Executor = immediate{}

func (immediate) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	task()
	return nil
}

func (immediate) InDispatcher() bool { return true }
