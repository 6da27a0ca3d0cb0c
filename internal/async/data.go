package async

import (
	"github.com/dshills/dbgcore/internal/dispatch"
)

// DataToken is a Token that also carries a result payload.
type DataToken[T any] struct {
	*Token
	data    T
	hasData bool
}

// NewData creates a pending data-carrying token.
func NewData[T any](exec dispatch.Executor, opts ...Option) *DataToken[T] {
	return &DataToken[T]{Token: New(exec, opts...)}
}

// SetData stores the payload. It must be called at most once and before
// the token completes.
func (d *DataToken[T]) SetData(v T) {
	dispatch.AssertOwner(d.exec, "async: SetData")
	if d.done {
		panic("async: SetData on completed token")
	}
	if d.hasData {
		panic("async: SetData called twice")
	}
	d.data = v
	d.hasData = true
}

// CompleteWith stores v and completes the token successfully.
func (d *DataToken[T]) CompleteWith(v T) {
	d.SetData(v)
	d.Complete(nil)
}

// Data returns the payload. Reading it before the token is done panics.
func (d *DataToken[T]) Data() T {
	if !d.done {
		panic("async: Data read before completion")
	}
	return d.data
}

// HasData reports whether a payload was set.
func (d *DataToken[T]) HasData() bool {
	return d.hasData
}
