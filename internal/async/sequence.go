package async

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/dispatch"
)

// Step is one stage of a sequence. Execute must eventually complete the
// token it is given. Rollback is optional and undoes a successful Execute;
// its token's status is only logged.
type Step struct {
	Name     string
	Execute  func(tok *Token)
	Rollback func(tok *Token)
}

type sequence struct {
	exec      dispatch.Executor
	steps     []Step
	tok       *Token
	logger    *zap.Logger
	completed []int
}

// RunSequence starts steps on exec and returns the token that completes
// when the sequence ends. Steps run strictly in order, each starting only
// after the previous one succeeded. When a step fails, or cancellation of
// the returned token is requested between steps, the completed steps are
// rolled back in reverse order and the token completes with the error that
// stopped the sequence. Rollback failures never replace that error.
//
// opts configure the returned token.
func RunSequence(exec dispatch.Executor, steps []Step, opts ...Option) *Token {
	tok := New(exec, opts...)
	// Cancellation is observed between steps so that rollback can run.
	tok.inFlight = true
	s := &sequence{
		exec:   exec,
		steps:  steps,
		tok:    tok,
		logger: tok.logger.Named("sequence"),
	}
	if err := exec.Submit(func() { s.run(0) }); err != nil {
		// The dispatcher is gone; nothing else can touch tok.
		tok.finish(fmt.Errorf("start sequence: %w", err))
	}
	return tok
}

func (s *sequence) run(i int) {
	if i == len(s.steps) {
		s.tok.Complete(nil)
		return
	}
	if s.tok.IsCanceled() {
		s.abort(ErrCanceled)
		return
	}

	step := s.steps[i]
	stepTok := New(s.exec, WithLogger(s.logger), OnCompleted(func(err error) {
		if err != nil {
			s.logger.Debug("step failed", zap.String("step", step.Name), zap.Error(err))
			s.abort(err)
			return
		}
		s.completed = append(s.completed, i)
		s.next(i + 1)
	}))
	s.invoke(step.Name, step.Execute, stepTok)
}

func (s *sequence) next(i int) {
	if err := s.exec.Submit(func() { s.run(i) }); err != nil {
		s.abort(fmt.Errorf("continue sequence: %w", err))
	}
}

// abort rolls back completed steps, last first, then completes the
// sequence token with cause.
func (s *sequence) abort(cause error) {
	s.rollback(len(s.completed)-1, cause)
}

func (s *sequence) rollback(k int, cause error) {
	for ; k >= 0; k-- {
		step := s.steps[s.completed[k]]
		if step.Rollback == nil {
			continue
		}
		next := k - 1
		rbTok := New(s.exec, WithLogger(s.logger), OnCompleted(func(err error) {
			if err != nil {
				s.logger.Warn("rollback failed", zap.String("step", step.Name), zap.Error(err))
			}
			s.rollback(next, cause)
		}))
		s.invoke(step.Name, step.Rollback, rbTok)
		return
	}
	s.tok.Complete(cause)
}

// invoke runs fn and turns a panic into a failure of tok.
func (s *sequence) invoke(name string, fn func(*Token), tok *Token) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("step panicked", zap.String("step", name), zap.Any("panic", r))
			if !tok.IsDone() {
				tok.Complete(fmt.Errorf("step %q panicked: %v", name, r))
			}
		}
	}()
	if fn == nil {
		tok.Complete(nil)
		return
	}
	fn(tok)
}
