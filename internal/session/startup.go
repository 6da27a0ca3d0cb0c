package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/async"
	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/mi"
)

// startupSteps builds the sequence run by Start.
func (s *Session) startupSteps() []async.Step {
	steps := []async.Step{
		{Name: "gdb-version", Execute: s.queryVersion},
		{Name: "list-features", Execute: s.listFeatures},
	}
	for _, ic := range s.cfg.Init {
		ic := ic
		step := async.Step{
			Name:    ic.Command,
			Execute: func(tok *async.Token) { s.run(tok, ic.Command, nil) },
		}
		if ic.Rollback != "" {
			step.Rollback = func(tok *async.Token) { s.run(tok, ic.Rollback, nil) }
		}
		steps = append(steps, step)
	}
	return steps
}

// run queues the command line and completes tok with its status. onOutput,
// when set, sees the output of a successful command and may fail the step.
func (s *Session) run(tok *async.Token, line string, onOutput func(*mi.Output) error) {
	cmd, err := mi.ParseCommand(line)
	if err != nil {
		tok.Complete(fmt.Errorf("parse %q: %w", line, err))
		return
	}

	var out *async.DataToken[*mi.Output]
	out = async.NewData[*mi.Output](s.disp, async.OnCompleted(func(err error) {
		if err == nil && onOutput != nil {
			err = onOutput(out.Data())
		}
		tok.Complete(err)
	}))
	if err := s.ctrl.Queue(cmd, out); err != nil {
		tok.Complete(err)
	}
}

func (s *Session) queryVersion(tok *async.Token) {
	s.run(tok, "-gdb-version", func(out *mi.Output) error {
		v, verr := control.ParseVersion(out.Console())
		if verr != nil {
			s.logger.Warn("unrecognized gdb version banner", zap.Error(verr))
		} else {
			s.version = v
		}

		if s.cfg.Dialect != "" && s.cfg.Dialect != DialectAuto {
			d, err := s.dialects.Create(s.cfg.Dialect)
			if err != nil {
				return err
			}
			s.ctrl.SetDialect(d)
			return nil
		}
		if verr == nil {
			s.ctrl.SetDialect(s.dialects.ForVersion(v))
		}
		return nil
	})
}

func (s *Session) listFeatures(tok *async.Token) {
	if !s.ctrl.Dialect().ListFeatures {
		tok.Complete(nil)
		return
	}
	// -list-features errors are not fatal.
	inner := async.New(s.disp, async.OnCompleted(func(err error) {
		if err != nil {
			s.logger.Warn("listing debugger features", zap.Error(err))
		}
		tok.Complete(nil)
	}))
	s.run(inner, "-list-features", func(out *mi.Output) error {
		s.features = s.features[:0]
		for _, f := range out.Query("features").Array() {
			s.features = append(s.features, f.String())
		}
		s.logger.Debug("debugger features", zap.Strings("features", s.features))
		return nil
	})
}
