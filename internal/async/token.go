package async

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/dispatch"
)

// Token is the completion handle of one asynchronous operation.
//
// Apart from Cancel, IsCanceled, Done and Wait, all methods must be called
// on the token's dispatcher.
type Token struct {
	exec   dispatch.Executor
	parent *Token
	logger *zap.Logger

	autoComplete bool
	onSuccess    func()
	onError      func(err error)
	onCanceled   func()
	onCompleted  func(err error)
	listeners    []func(t *Token)

	// Owned by the dispatcher.
	done          bool
	err           error
	inFlight      bool
	canceledEarly bool
	dependents    int
	childErr      error
	counter       *counter

	canceled atomic.Bool
	doneCh   chan struct{}
}

// Option configures a Token.
type Option func(*Token)

// WithParent links the token to parent. The token becomes one of parent's
// dependents and inherits its cancellation.
func WithParent(parent *Token) Option {
	return func(t *Token) {
		t.parent = parent
	}
}

// WithoutAutoComplete stops the token from reporting its outcome to its
// parent when no handler replaces the default behavior.
func WithoutAutoComplete() Option {
	return func(t *Token) {
		t.autoComplete = false
	}
}

// OnSuccess sets the handler run when the token completes without error.
// It replaces the default propagation to the parent.
func OnSuccess(fn func()) Option {
	return func(t *Token) {
		t.onSuccess = fn
	}
}

// OnError sets the handler run when the token completes with an error
// other than a cancellation. It replaces the default propagation.
func OnError(fn func(err error)) Option {
	return func(t *Token) {
		t.onError = fn
	}
}

// OnCanceled sets the handler run when the token completes cancelled.
// Without it a cancellation is handed to the OnError handler, if any.
func OnCanceled(fn func()) Option {
	return func(t *Token) {
		t.onCanceled = fn
	}
}

// OnCompleted sets a handler run for every outcome. It takes precedence
// over the outcome-specific handlers and replaces the default propagation.
func OnCompleted(fn func(err error)) Option {
	return func(t *Token) {
		t.onCompleted = fn
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(t *Token) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a pending token owned by exec. When created with a parent
// it must be created on the dispatcher.
func New(exec dispatch.Executor, opts ...Option) *Token {
	t := &Token{
		exec:         exec,
		logger:       zap.NewNop(),
		autoComplete: true,
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.parent != nil && t.parent.counter == nil {
		t.parent.dependents++
	}
	return t
}

// Executor returns the dispatcher that owns the token.
func (t *Token) Executor() dispatch.Executor {
	return t.exec
}

// Parent returns the parent token, or nil.
func (t *Token) Parent() *Token {
	return t.parent
}

// Complete moves the token from pending to done with the given status and
// runs its handlers. A nil err means success. Completing a token twice is a
// programming error and panics.
//
// On a CountingToken, Complete records one child completion instead.
func (t *Token) Complete(err error) {
	dispatch.AssertOwner(t.exec, "async: Complete")
	if t.counter != nil {
		t.count(err)
		return
	}
	if t.done && t.canceledEarly {
		t.logger.Debug("dropping completion of cancelled token", zap.Error(err))
		return
	}
	t.finish(err)
}

func (t *Token) finish(err error) {
	if t.done {
		panic("async: token completed twice")
	}
	t.done = true
	t.err = err
	close(t.doneCh)

	propagate := t.handle(err)
	for _, l := range t.listeners {
		l(t)
	}
	if t.parent != nil {
		t.parent.childFinished(err, propagate && t.autoComplete)
	}
}

// handle runs the handler for err and reports whether the default
// propagation to the parent should happen.
func (t *Token) handle(err error) bool {
	if t.onCompleted != nil {
		t.onCompleted(err)
		return false
	}
	switch SeverityOf(err) {
	case SeverityOK:
		if t.onSuccess != nil {
			t.onSuccess()
			return false
		}
	case SeverityCanceled:
		if t.onCanceled != nil {
			t.onCanceled()
			return false
		}
		if t.onError != nil {
			t.onError(err)
			return false
		}
	default:
		if t.onError != nil {
			t.onError(err)
			return false
		}
	}
	return true
}

func (t *Token) childFinished(err error, propagate bool) {
	if t.counter != nil {
		if propagate {
			t.count(err)
		}
		return
	}
	t.dependents--
	if !propagate {
		return
	}
	t.childErr = worse(t.childErr, err)
	if t.dependents <= 0 && !t.done {
		t.finish(t.childErr)
	}
}

// AddListener registers fn to run after the token's handlers. If the token
// is already done fn runs immediately.
func (t *Token) AddListener(fn func(t *Token)) {
	dispatch.AssertOwner(t.exec, "async: AddListener")
	if t.done {
		fn(t)
		return
	}
	t.listeners = append(t.listeners, fn)
}

// MarkInFlight records that the token's work has been handed to a remote
// party. After this, Cancel only sets the cancellation flag.
func (t *Token) MarkInFlight() {
	dispatch.AssertOwner(t.exec, "async: MarkInFlight")
	t.inFlight = true
}

// Cancel requests cancellation. It may be called from any goroutine. If no
// work is in flight the token completes with ErrCanceled on its dispatcher;
// otherwise the producer observes the request through IsCanceled.
func (t *Token) Cancel() {
	if !t.canceled.CompareAndSwap(false, true) {
		return
	}
	_ = t.exec.Submit(func() {
		if t.done || t.inFlight {
			return
		}
		t.canceledEarly = true
		t.finish(ErrCanceled)
	})
}

// IsCanceled reports whether cancellation was requested for this token or
// any of its ancestors.
func (t *Token) IsCanceled() bool {
	for p := t; p != nil; p = p.parent {
		if p.canceled.Load() {
			return true
		}
	}
	return false
}

// IsDone reports whether the token has completed.
func (t *Token) IsDone() bool {
	return t.done
}

// Err returns the completion status. It is only meaningful once the token
// is done.
func (t *Token) Err() error {
	return t.err
}

// Severity returns the severity of the completion status.
func (t *Token) Severity() Severity {
	return SeverityOf(t.err)
}

// Done returns a channel closed when the token completes.
func (t *Token) Done() <-chan struct{} {
	return t.doneCh
}

// Wait blocks until the token completes or ctx is done, and returns the
// completion status. It must not be called on the dispatcher.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.doneCh:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
