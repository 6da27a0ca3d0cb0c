package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/dbgcore/internal/async"
	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/dispatch"
	"github.com/dshills/dbgcore/internal/dmcontext"
	"github.com/dshills/dbgcore/internal/mi"
	"github.com/dshills/dbgcore/internal/runctl"
	"github.com/dshills/dbgcore/internal/transport"
)

// State represents the life-cycle state of a session.
type State int32

const (
	// StateCreated is the state before Start.
	StateCreated State = iota
	// StateStarting is while the startup sequence runs.
	StateStarting
	// StateReady is after a successful startup.
	StateReady
	// StateClosed is after the connection ended or Shutdown was called.
	StateClosed
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DialectAuto selects the dialect from the GDB version.
const DialectAuto = "auto"

// InitCommand is a command run during startup. Rollback, when set, undoes
// it if a later init command fails.
type InitCommand struct {
	Command  string
	Rollback string
}

// Config holds the session settings.
type Config struct {
	// MaxInFlight bounds outstanding commands; zero or less is unbounded.
	MaxInFlight int

	// OOBHistory is the number of out-of-band records attached to results.
	OOBHistory int

	// Dialect is a dialect name or DialectAuto.
	Dialect string

	// Charset names the encoding of C string bytes in GDB output.
	Charset string

	// OwnershipChecks enables dispatcher ownership assertions.
	OwnershipChecks bool

	// ShutdownTimeout bounds the graceful part of Shutdown.
	ShutdownTimeout time.Duration

	// Init lists the commands run after the dialect is known.
	Init []InitCommand

	// Services lists the registry services to create. Nil creates all.
	Services []string

	// TraceMI logs every MI line sent and received at debug level.
	TraceMI bool
}

// DefaultConfig returns the default session settings.
func DefaultConfig() Config {
	return Config{
		MaxInFlight:     control.DefaultMaxInFlight,
		OOBHistory:      control.DefaultOOBHistory,
		Dialect:         DialectAuto,
		Charset:         "utf-8",
		OwnershipChecks: true,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session settings.
func WithConfig(cfg Config) Option {
	return func(s *Session) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry sets the service registry.
func WithRegistry(r *Registry) Option {
	return func(s *Session) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithDialects sets the dialect registry.
func WithDialects(r *control.DialectRegistry) Option {
	return func(s *Session) {
		if r != nil {
			s.dialects = r
		}
	}
}

// WithCommandListener registers l with the correlator before startup.
func WithCommandListener(l control.CommandListener) Option {
	return func(s *Session) {
		s.cmdListeners = append(s.cmdListeners, l)
	}
}

// WithEventProcessor registers p with the correlator before startup.
func WithEventProcessor(p control.EventProcessor) Option {
	return func(s *Session) {
		s.processors = append(s.processors, p)
	}
}

// WithConsole passes console and log stream text, and any non-MI output,
// to w.
func WithConsole(w io.Writer) Option {
	return func(s *Session) {
		s.console = w
	}
}

// Lifecycle is notified when the transport goroutines start and when the
// connection ends. Its methods are called from session goroutines, never
// from the dispatcher.
type Lifecycle interface {
	Connected()
	Disconnected(err error)
}

// WithLifecycle registers l for connection notifications.
func WithLifecycle(l Lifecycle) Option {
	return func(s *Session) {
		if l != nil {
			s.lifecycles = append(s.lifecycles, l)
		}
	}
}

// Session is one debugger connection.
type Session struct {
	id       string
	cfg      Config
	logger   *zap.Logger
	registry *Registry
	dialects *control.DialectRegistry
	console  io.Writer

	tr   transport.Transport
	disp *dispatch.Dispatcher
	ctrl *control.Control
	root *dmcontext.ControlContext

	cmdListeners []control.CommandListener
	processors   []control.EventProcessor
	lifecycles   []Lifecycle

	// Owned by the dispatcher.
	services map[string]Service
	features []string
	version  control.Version

	state        atomic.Int32
	running      atomic.Bool
	group        errgroup.Group
	cancelWriter context.CancelFunc
	done         chan struct{}
	err          error
	closeOnce    sync.Once
}

// New creates a session over tr. The parser charset falls back to UTF-8
// when cfg.Charset is unknown.
func New(tr transport.Transport, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		cfg:      DefaultConfig(),
		logger:   zap.NewNop(),
		registry: NewRegistry(),
		dialects: control.NewDialectRegistry(),
		tr:       tr,
		services: make(map[string]Service),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id))

	s.disp = dispatch.New(
		dispatch.WithName("session-"+s.id[:8]),
		dispatch.WithLogger(s.logger.Named("dispatch")),
		dispatch.WithOwnershipChecks(s.cfg.OwnershipChecks),
	)

	parser, err := mi.NewParser(s.cfg.Charset)
	if err != nil {
		s.logger.Warn("unknown charset, using utf-8", zap.String("charset", s.cfg.Charset), zap.Error(err))
		parser = nil
	}

	ctrlLogger := s.logger.Named("control")
	if !s.cfg.TraceMI && ctrlLogger.Core().Enabled(zapcore.DebugLevel) {
		ctrlLogger = ctrlLogger.WithOptions(zap.IncreaseLevel(zapcore.InfoLevel))
	}

	s.root = dmcontext.NewRootControlContext(s.id, "gdb")
	s.ctrl = control.New(s.disp, tr,
		control.WithLogger(ctrlLogger),
		control.WithMaxInFlight(s.cfg.MaxInFlight),
		control.WithOOBHistory(s.cfg.OOBHistory),
		control.WithParser(parser),
		control.WithConsole(s.console),
	)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Context returns the root context of the connection.
func (s *Session) Context() *dmcontext.ControlContext { return s.root }

// Executor returns the session dispatcher. Tokens for session commands
// must be created on it.
func (s *Session) Executor() dispatch.Executor { return s.disp }

// Dispatcher returns the session dispatcher.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.disp }

// Control returns the command correlator.
func (s *Session) Control() *control.Control { return s.ctrl }

// State returns the life-cycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Start creates the session services, starts the transport goroutines and
// runs the startup sequence. On failure the session stays open; the
// caller is expected to call Shutdown.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return ErrAlreadyStarted
	}

	var serr error
	if err := s.disp.Do(ctx, func() { serr = s.setup() }); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if serr != nil {
		return serr
	}

	wctx, cancel := context.WithCancel(context.Background())
	s.cancelWriter = cancel
	s.group.Go(func() error {
		return s.ctrl.RunReader(s.tr)
	})
	s.group.Go(func() error {
		if err := s.ctrl.RunWriter(wctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	s.running.Store(true)
	for _, l := range s.lifecycles {
		l.Connected()
	}
	go s.wait()

	s.logger.Info("session starting", zap.Int("init_commands", len(s.cfg.Init)))
	tok := async.RunSequence(s.disp, s.startupSteps(), async.WithLogger(s.logger))
	if err := tok.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			tok.Cancel()
		}
		return fmt.Errorf("startup: %w", err)
	}

	s.state.CompareAndSwap(int32(StateStarting), int32(StateReady))
	s.logger.Info("session ready", zap.Stringer("gdb_version", s.version))
	return nil
}

// setup runs on the dispatcher before any output is read.
func (s *Session) setup() error {
	for _, l := range s.cmdListeners {
		if err := s.ctrl.AddCommandListener(l); err != nil {
			return err
		}
	}
	for _, p := range s.processors {
		if err := s.ctrl.AddEventProcessor(p); err != nil {
			return err
		}
	}

	names := s.cfg.Services
	if names == nil {
		names = s.registry.Available()
	}
	for _, name := range names {
		svc, err := s.registry.Create(name, s)
		if err != nil {
			return err
		}
		s.services[name] = svc
		if p, ok := svc.(control.EventProcessor); ok {
			if err := s.ctrl.AddEventProcessor(p); err != nil {
				return err
			}
		}
		if l, ok := svc.(control.CommandListener); ok {
			if err := s.ctrl.AddCommandListener(l); err != nil {
				return err
			}
		}
	}
	return nil
}

// wait records how the transport goroutines ended, releases the
// transport and stops the dispatcher once the termination has drained.
func (s *Session) wait() {
	err := s.group.Wait()
	if cerr := s.tr.Close(); cerr != nil {
		s.logger.Debug("closing transport", zap.Error(cerr))
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	if derr := s.disp.Shutdown(ctx); derr != nil {
		s.logger.Warn("stopping dispatcher", zap.Error(derr))
	}
	cancel()
	s.err = err
	s.state.Store(int32(StateClosed))
	s.logger.Info("session ended", zap.Error(err))
	for _, l := range s.lifecycles {
		l.Disconnected(err)
	}
	close(s.done)
}

// Done is closed once the connection has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the connection ends and returns the transport error,
// if any. A clean end of the debugger output returns nil.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitCommand encodes and queues an MI command. The token completes on
// the session dispatcher.
func (s *Session) SubmitCommand(verb string, options, params []string) (*async.DataToken[*mi.Output], error) {
	return s.ctrl.SubmitCommand(verb, options, params)
}

// Exec queues cmd and waits for its output. When ctx ends first the
// command is canceled; a command already sent still runs to completion in
// the debugger. The output is returned with debugger errors when GDB
// produced one.
func (s *Session) Exec(ctx context.Context, cmd *mi.Command) (*mi.Output, error) {
	tok := async.NewData[*mi.Output](s.disp)
	if err := s.ctrl.Queue(cmd, tok); err != nil {
		return nil, err
	}
	err := tok.Wait(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		tok.Cancel()
		return nil, err
	}
	if tok.HasData() {
		return tok.Data(), err
	}
	return nil, err
}

// RegisterEventProcessor adds p to the processors of asynchronous records.
func (s *Session) RegisterEventProcessor(p control.EventProcessor) error {
	return s.ctrl.AddEventProcessor(p)
}

// AddCommandListener adds l to the command life-cycle listeners.
func (s *Session) AddCommandListener(l control.CommandListener) error {
	return s.ctrl.AddCommandListener(l)
}

// CreateSequence runs steps on the session dispatcher.
func (s *Session) CreateSequence(steps []async.Step, opts ...async.Option) *async.Token {
	opts = append([]async.Option{async.WithLogger(s.logger)}, opts...)
	return async.RunSequence(s.disp, steps, opts...)
}

// Service returns a started service. It must be called on the dispatcher.
func (s *Session) Service(name string) (Service, bool) {
	dispatch.AssertOwner(s.disp, "session: Service")
	svc, ok := s.services[name]
	return svc, ok
}

// RunControl returns the run-control service, or nil when it was not
// configured. It must be called on the dispatcher.
func (s *Session) RunControl() *runctl.Service {
	svc, _ := s.Service(ServiceRunControl)
	rc, _ := svc.(*runctl.Service)
	return rc
}

// Features returns the features reported by -list-features. It must be
// called on the dispatcher.
func (s *Session) Features() []string {
	dispatch.AssertOwner(s.disp, "session: Features")
	return append([]string(nil), s.features...)
}

// Version returns the GDB version found at startup. It must be called on
// the dispatcher.
func (s *Session) Version() control.Version {
	dispatch.AssertOwner(s.disp, "session: Version")
	return s.version
}

// Shutdown asks GDB to exit, terminates the connection and stops the
// dispatcher. Outstanding commands fail with control.ErrSessionTerminated.
func (s *Session) Shutdown(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.shutdown(ctx)
	})
	return err
}

func (s *Session) shutdown(ctx context.Context) error {
	started := s.running.Load()
	s.state.Store(int32(StateClosed))

	if started {
		s.exit(ctx)
	}

	var errs []error
	if err := s.ctrl.Terminate(ErrClosed); err != nil && !errors.Is(err, dispatch.ErrShutdown) {
		errs = append(errs, err)
	}
	if started {
		select {
		case <-s.done:
		default:
			if err := s.tr.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transport: %w", err))
			}
		}
		s.cancelWriter()
		select {
		case <-s.done:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	} else if err := s.tr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}

	if err := s.disp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop dispatcher: %w", err))
	}
	s.logger.Info("session shut down")
	return errors.Join(errs...)
}

// exit sends -gdb-exit and waits, bounded by the shutdown timeout, for the
// debugger to close its output.
func (s *Session) exit(ctx context.Context) {
	select {
	case <-s.done:
		return
	default:
	}

	ectx, cancel := context.WithTimeout(ctx, s.shutdownTimeout())
	defer cancel()

	if _, err := s.Exec(ectx, mi.NewCommand("-gdb-exit")); err != nil {
		s.logger.Debug("gdb-exit", zap.Error(err))
		return
	}
	select {
	case <-s.done:
	case <-ectx.Done():
		s.logger.Warn("debugger did not exit in time", zap.Duration("timeout", s.shutdownTimeout()))
	}
}

func (s *Session) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout <= 0 {
		return DefaultConfig().ShutdownTimeout
	}
	return s.cfg.ShutdownTimeout
}
