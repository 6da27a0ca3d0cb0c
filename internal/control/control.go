package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/async"
	"github.com/dshills/dbgcore/internal/dispatch"
	"github.com/dshills/dbgcore/internal/dmcontext"
	"github.com/dshills/dbgcore/internal/mi"
)

// State is the connection state of a Control.
type State int

const (
	// StateIdle means no command is queued or outstanding.
	StateIdle State = iota
	// StateActive means at least one command is queued or outstanding.
	StateActive
	// StateTerminated means the connection ended.
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxInFlight is the number of commands sent before their
	// results are received.
	DefaultMaxInFlight = 3

	// DefaultOOBHistory is the number of out-of-band records attached to
	// the next result.
	DefaultOOBHistory = 20
)

// Control is the command/result correlator of one debugger connection.
//
// Unless stated otherwise its methods may be called from any goroutine.
type Control struct {
	exec        dispatch.Executor
	out         io.Writer
	logger      *zap.Logger
	maxInFlight int
	oobLimit    int
	maxToken    int
	parser      *mi.Parser
	console     io.Writer

	// Owned by the dispatcher.
	dialect    *Dialect
	state      State
	termErr    error
	nextToken  int
	seq        uint64
	waiting    []*Handle
	pending    map[int]*Handle
	oob        []*mi.Record
	processors []EventProcessor
	listeners  []CommandListener
	selThread  string
	selFrame   int
	selValid   bool

	tx *txQueue
}

// Option configures a Control.
type Option func(*Control)

// WithLogger sets the logger. Every line sent and received is traced at
// debug level.
func WithLogger(l *zap.Logger) Option {
	return func(c *Control) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxInFlight bounds the number of outstanding commands. Zero or less
// removes the bound.
func WithMaxInFlight(n int) Option {
	return func(c *Control) {
		c.maxInFlight = n
	}
}

// WithOOBHistory sets how many out-of-band records are kept for the next
// result.
func WithOOBHistory(n int) Option {
	return func(c *Control) {
		if n >= 0 {
			c.oobLimit = n
		}
	}
}

// WithDialect sets the initial protocol dialect.
func WithDialect(d *Dialect) Option {
	return func(c *Control) {
		if d != nil {
			c.dialect = d
		}
	}
}

// WithParser sets the parser used by RunReader.
func WithParser(p *mi.Parser) Option {
	return func(c *Control) {
		c.parser = p
	}
}

// WithConsole sets the sink for console output passed through by
// RunReader.
func WithConsole(w io.Writer) Option {
	return func(c *Control) {
		c.console = w
	}
}

// New creates a Control that writes commands to out. exec must be the
// session dispatcher.
func New(exec dispatch.Executor, out io.Writer, opts ...Option) *Control {
	c := &Control{
		exec:        exec,
		out:         out,
		logger:      zap.NewNop(),
		maxInFlight: DefaultMaxInFlight,
		oobLimit:    DefaultOOBHistory,
		maxToken:    math.MaxInt32,
		dialect:     NewDialectRegistry().ForVersion(Version{Major: 7}),
		pending:     make(map[int]*Handle),
		tx:          newTxQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if d, ok := exec.(interface{ OnShutdown(dispatch.Task) error }); ok {
		_ = d.OnShutdown(func() {
			c.terminate(dispatch.ErrShutdown)
		})
	}
	return c
}

// SubmitCommand encodes and queues an MI command. Encoding errors are
// returned immediately and nothing is queued.
func (c *Control) SubmitCommand(verb string, options, params []string) (*async.DataToken[*mi.Output], error) {
	cmd := &mi.Command{Verb: verb, Options: options, Params: params}
	tok := async.NewData[*mi.Output](c.exec)
	if err := c.Queue(cmd, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Queue encodes cmd and queues it for sending. tok is completed on the
// dispatcher with the command's output or error. Encoding errors are
// returned immediately and tok is left untouched.
func (c *Control) Queue(cmd *mi.Command, tok *async.DataToken[*mi.Output]) error {
	line, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("queue command: %w", err)
	}
	h := &Handle{cmd: cmd, tok: tok, line: line}
	if err := c.exec.Submit(func() { c.enqueue(h) }); err != nil {
		return fmt.Errorf("queue %s: %w", cmd.Verb, err)
	}
	return nil
}

// AddEventProcessor registers p for asynchronous records.
func (c *Control) AddEventProcessor(p EventProcessor) error {
	return c.exec.Submit(func() {
		c.processors = append(c.processors, p)
	})
}

// RemoveEventProcessor unregisters p, which must be of a comparable type
// such as a pointer.
func (c *Control) RemoveEventProcessor(p EventProcessor) error {
	return c.exec.Submit(func() {
		for i, q := range c.processors {
			if q == p {
				c.processors = append(c.processors[:i:i], c.processors[i+1:]...)
				return
			}
		}
	})
}

// AddCommandListener registers l for command life-cycle notifications.
func (c *Control) AddCommandListener(l CommandListener) error {
	return c.exec.Submit(func() {
		c.listeners = append(c.listeners, l)
	})
}

// Terminate ends the connection: every queued and outstanding command is
// completed with an error wrapping ErrSessionTerminated and cause.
func (c *Control) Terminate(cause error) error {
	return c.exec.Submit(func() { c.terminate(cause) })
}

// State returns the connection state. It must be called on the dispatcher.
func (c *Control) State() State {
	return c.state
}

// Pending returns the number of outstanding commands. It must be called on
// the dispatcher.
func (c *Control) Pending() int {
	return len(c.pending)
}

// Waiting returns the number of queued, unsent commands. It must be
// called on the dispatcher.
func (c *Control) Waiting() int {
	return len(c.waiting)
}

// Dialect returns the protocol dialect. It must be called on the
// dispatcher.
func (c *Control) Dialect() *Dialect {
	return c.dialect
}

// SetDialect changes the protocol dialect. It must be called on the
// dispatcher, normally once while the connection starts.
func (c *Control) SetDialect(d *Dialect) {
	dispatch.AssertOwner(c.exec, "control: SetDialect")
	if d != nil {
		c.logger.Info("protocol dialect selected", zap.String("dialect", d.Name))
		c.dialect = d
	}
}

// HandleRecord receives a parsed line from the demultiplexer and moves
// its processing onto the dispatcher.
func (c *Control) HandleRecord(rec *mi.Record, err error) {
	c.logger.Debug("mi rx", zap.String("line", rec.Line))
	if serr := c.exec.Submit(func() { c.process(rec, err) }); serr != nil {
		c.logger.Debug("dropping record after shutdown", zap.String("line", rec.Line))
	}
}

// RunReader feeds r through a demultiplexer until EOF or a read error and
// then terminates the connection. It returns nil on EOF.
func (c *Control) RunReader(r io.Reader) error {
	demux := mi.NewDemux(c, mi.WithParser(c.parser), mi.WithConsole(c.console))
	_, err := demux.ReadFrom(r)

	cause := err
	if cause == nil {
		cause = io.EOF
	}
	_ = c.Terminate(fmt.Errorf("read: %w", cause))
	return err
}

// RunWriter writes queued lines to the transport until the connection
// terminates or ctx is done. A write error terminates the connection.
func (c *Control) RunWriter(ctx context.Context) error {
	for {
		line, ok := c.tx.pop(ctx)
		if !ok {
			return ctx.Err()
		}
		if _, err := io.WriteString(c.out, line); err != nil {
			_ = c.Terminate(fmt.Errorf("write: %w", err))
			return fmt.Errorf("write command: %w", err)
		}
	}
}

func (c *Control) enqueue(h *Handle) {
	if c.state == StateTerminated {
		h.finished = true
		if h.tok != nil {
			h.tok.Complete(c.termErr)
		}
		return
	}
	if h.tok != nil && h.tok.IsDone() {
		h.finished = true
		c.notifyRemoved(h)
		return
	}

	c.seq++
	h.seq = c.seq
	c.waiting = append(c.waiting, h)
	c.state = StateActive
	for _, l := range c.listeners {
		l.CommandQueued(h)
	}
	if h.tok != nil {
		h.tok.AddListener(func(*async.Token) {
			if !h.sent && !h.finished {
				c.unqueue(h)
			}
		})
	}
	c.flush()
}

// unqueue drops a command that completed, normally by cancellation,
// before it was sent.
func (c *Control) unqueue(h *Handle) {
	for i, w := range c.waiting {
		if w == h {
			c.waiting = append(c.waiting[:i:i], c.waiting[i+1:]...)
			break
		}
	}
	h.finished = true
	c.notifyRemoved(h)
	c.updateState()
}

func (c *Control) notifyRemoved(h *Handle) {
	c.logger.Debug("command removed before sending", zap.String("command", h.line))
	for _, l := range c.listeners {
		l.CommandRemoved(h)
	}
}

// flush sends waiting commands while the in-flight window allows.
func (c *Control) flush() {
	for len(c.waiting) > 0 && c.state != StateTerminated {
		if c.maxInFlight > 0 && len(c.pending) >= c.maxInFlight {
			break
		}
		h := c.waiting[0]
		c.waiting[0] = nil
		c.waiting = c.waiting[1:]
		c.send(h)
	}
	c.updateState()
}

func (c *Control) updateState() {
	if c.state == StateTerminated {
		return
	}
	if len(c.pending) == 0 && len(c.waiting) == 0 {
		c.state = StateIdle
	} else {
		c.state = StateActive
	}
}

func (c *Control) send(h *Handle) {
	line := h.line
	if h.cmd.Context != nil && !h.cmd.Raw {
		line = c.target(h)
	}

	if h.cmd.Raw {
		h.sent = true
		h.finished = true
		c.write(line)
		for _, l := range c.listeners {
			l.CommandSent(h)
		}
		out := &mi.Output{}
		for _, l := range c.listeners {
			l.CommandDone(h, out, nil)
		}
		if h.tok != nil {
			h.tok.CompleteWith(out)
		}
		return
	}

	h.id = c.allocToken()
	h.sent = true
	c.pending[h.id] = h
	if h.tok != nil {
		h.tok.MarkInFlight()
	}
	c.write(strconv.Itoa(h.id) + line)
	for _, l := range c.listeners {
		l.CommandSent(h)
	}
}

// target returns the line for a command aimed at a thread or frame. With
// dialects lacking --thread and --frame it first switches GDB's selection.
func (c *Control) target(h *Handle) string {
	thread, hasThread := dmcontext.AncestorOfType[*dmcontext.ThreadContext](h.cmd.Context)
	if !hasThread {
		return h.line
	}
	frame, hasFrame := dmcontext.AncestorOfType[*dmcontext.FrameContext](h.cmd.Context)

	if c.dialect.ThreadFrameOptions {
		cmd := h.cmd.Clone()
		opts := []string{"--thread", thread.ThreadID()}
		if hasFrame {
			opts = append(opts, "--frame", strconv.Itoa(frame.Level()))
		}
		cmd.Options = append(opts, cmd.Options...)
		line, err := cmd.Encode()
		if err != nil {
			return h.line
		}
		return line
	}

	if !c.selValid || c.selThread != thread.ThreadID() {
		c.sendInternal((&mi.Command{Verb: "-thread-select"}).WithOptions(thread.ThreadID()))
		c.selThread = thread.ThreadID()
		c.selFrame = 0
		c.selValid = true
	}
	if hasFrame && c.selFrame != frame.Level() {
		c.sendInternal((&mi.Command{Verb: "-stack-select-frame"}).WithOptions(strconv.Itoa(frame.Level())))
		c.selFrame = frame.Level()
	}
	return h.line
}

func (c *Control) sendInternal(cmd *mi.Command) {
	line, err := cmd.Encode()
	if err != nil {
		c.logger.Error("encoding internal command", zap.Error(err))
		return
	}
	c.seq++
	h := &Handle{cmd: cmd, line: line, seq: c.seq}
	for _, l := range c.listeners {
		l.CommandQueued(h)
	}
	c.send(h)
}

func (c *Control) allocToken() int {
	for {
		c.nextToken++
		if c.nextToken <= 0 || c.nextToken > c.maxToken {
			c.nextToken = 1
		}
		if _, busy := c.pending[c.nextToken]; !busy {
			return c.nextToken
		}
	}
}

func (c *Control) write(line string) {
	c.logger.Debug("mi tx", zap.String("line", line))
	if !c.tx.push(line + "\n") {
		c.logger.Warn("dropping command after writer closed", zap.String("line", line))
	}
}

func (c *Control) process(rec *mi.Record, perr error) {
	switch {
	case rec.Kind == mi.KindResult:
		c.processResult(rec, perr)
	case rec.Kind.IsAsync():
		if perr != nil {
			c.logger.Warn("malformed async record", zap.String("line", rec.Line), zap.Error(perr))
			return
		}
		c.remember(rec)
		c.processEvent(rec)
	case rec.Kind.IsStream():
		c.remember(rec)
	}
}

func (c *Control) remember(rec *mi.Record) {
	if c.oobLimit == 0 {
		return
	}
	c.oob = append(c.oob, rec)
	if over := len(c.oob) - c.oobLimit; over > 0 {
		c.oob = append([]*mi.Record(nil), c.oob[over:]...)
	}
}

func (c *Control) processEvent(rec *mi.Record) {
	switch rec.Class {
	case "running", "stopped":
		// GDB moves its selection when execution state changes.
		c.selValid = false
	case "thread-selected":
		c.selThread = rec.Field("id")
		c.selFrame = selectedLevel(rec)
		c.selValid = c.selThread != ""
	}
	for _, p := range c.processors {
		p.ProcessEvent(rec)
	}
}

// selectedLevel returns the frame level reported by "=thread-selected",
// or -1 when the event does not name one.
func selectedLevel(rec *mi.Record) int {
	v, ok := rec.Get("frame")
	if !ok {
		return -1
	}
	frame, ok := v.(mi.Tuple)
	if !ok {
		return -1
	}
	level, err := strconv.Atoi(frame.Field("level"))
	if err != nil {
		return -1
	}
	return level
}

func (c *Control) processResult(rec *mi.Record, perr error) {
	var h *Handle
	if rec.HasToken {
		h = c.pending[rec.Token]
	}
	if h == nil {
		c.logger.Warn("result matches no outstanding command",
			zap.Int("token", rec.Token),
			zap.Bool("has_token", rec.HasToken),
			zap.String("line", rec.Line))
		for _, l := range c.listeners {
			if o, ok := l.(OrphanObserver); ok {
				o.OrphanResult(rec)
			}
		}
		return
	}

	delete(c.pending, rec.Token)
	h.finished = true
	out := &mi.Output{Result: rec, OOB: c.oob}
	c.oob = nil

	var err error
	switch {
	case perr != nil:
		err = &ProtocolError{Command: h.line, Err: perr}
	case rec.IsError():
		err = &CommandError{Command: h.line, Message: rec.ErrorMessage(), Code: rec.Field("code")}
	}
	if err != nil && h.Internal() {
		c.logger.Warn("internal command failed", zap.String("command", h.line), zap.Error(err))
		c.selValid = false
	}

	for _, l := range c.listeners {
		l.CommandDone(h, out, err)
	}
	c.flush()

	if h.tok != nil && !h.tok.IsDone() {
		h.tok.SetData(out)
		h.tok.Complete(err)
	}
}

func (c *Control) terminate(cause error) {
	if c.state == StateTerminated {
		return
	}
	if cause == nil {
		cause = errors.New("terminated")
	}
	c.termErr = fmt.Errorf("%w: %w", ErrSessionTerminated, cause)
	c.state = StateTerminated
	c.tx.close()
	c.logger.Info("connection terminated",
		zap.Int("pending", len(c.pending)),
		zap.Int("waiting", len(c.waiting)),
		zap.Error(cause))

	all := make([]*Handle, 0, len(c.pending)+len(c.waiting))
	for _, h := range c.pending {
		all = append(all, h)
	}
	all = append(all, c.waiting...)
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	c.pending = make(map[int]*Handle)
	c.waiting = nil
	c.oob = nil

	for _, h := range all {
		h.finished = true
		for _, l := range c.listeners {
			l.CommandDone(h, nil, c.termErr)
		}
		if h.tok != nil && !h.tok.IsDone() {
			h.tok.Complete(c.termErr)
		}
	}
}
