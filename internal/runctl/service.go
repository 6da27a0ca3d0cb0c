package runctl

import (
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/dispatch"
	"github.com/dshills/dbgcore/internal/dmcontext"
	"github.com/dshills/dbgcore/internal/mi"
)

// State is the execution state of a thread.
type State int

const (
	// StateRunning means the thread is executing.
	StateRunning State = iota
	// StateSuspended means the thread is stopped.
	StateSuspended
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// EventKind classifies run-control events.
type EventKind int

// Run-control event kinds.
const (
	EventContainerStarted EventKind = iota
	EventContainerExited
	EventThreadStarted
	EventThreadExited
	EventResumed
	EventSuspended
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventContainerStarted:
		return "container-started"
	case EventContainerExited:
		return "container-exited"
	case EventThreadStarted:
		return "thread-started"
	case EventThreadExited:
		return "thread-exited"
	case EventResumed:
		return "resumed"
	case EventSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Event reports a change of the execution model.
type Event struct {
	Kind    EventKind
	Context dmcontext.Execution

	// Reason is the stop reason of suspend events, such as
	// "breakpoint-hit".
	Reason string

	// Record is the MI record that caused the event.
	Record *mi.Record
}

// StopInfo describes where and why a thread last stopped.
type StopInfo struct {
	Reason string
	Func   string
	File   string
	Line   int

	// Frame is the innermost frame of the stopped thread.
	Frame *dmcontext.FrameContext
}

type container struct {
	ctx      *dmcontext.ContainerContext
	pid      string
	started  bool
	exitCode string
}

type thread struct {
	ctx   *dmcontext.ThreadContext
	group string
	state State
	stop  StopInfo
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service maintains the container and thread model of one connection.
type Service struct {
	exec    dispatch.Executor
	parent  *dmcontext.ControlContext
	logger  *zap.Logger
	groups  map[string]*container
	threads map[string]*thread
	order   []string

	listeners []func(Event)
}

// New creates a run-control service whose contexts descend from parent.
func New(exec dispatch.Executor, parent *dmcontext.ControlContext, opts ...Option) *Service {
	s := &Service{
		exec:    exec,
		parent:  parent,
		logger:  zap.NewNop(),
		groups:  make(map[string]*container),
		threads: make(map[string]*thread),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddListener registers fn for run-control events.
func (s *Service) AddListener(fn func(Event)) {
	dispatch.AssertOwner(s.exec, "runctl: AddListener")
	s.listeners = append(s.listeners, fn)
}

// ProcessEvent updates the model from an asynchronous record.
func (s *Service) ProcessEvent(rec *mi.Record) {
	switch rec.Class {
	case "thread-group-added":
		s.group(rec.Field("id"))
	case "thread-group-started":
		g := s.group(rec.Field("id"))
		g.pid = rec.Field("pid")
		g.started = true
		g.exitCode = ""
		s.emit(Event{Kind: EventContainerStarted, Context: g.ctx, Record: rec})
	case "thread-group-exited":
		s.groupExited(rec)
	case "thread-created":
		s.threadCreated(rec)
	case "thread-exited":
		s.threadExited(rec.Field("id"), rec)
	case "running":
		s.running(rec)
	case "stopped":
		s.stopped(rec)
	}
}

func (s *Service) group(id string) *container {
	if g, ok := s.groups[id]; ok {
		return g
	}
	g := &container{ctx: dmcontext.NewContainerContext(id, s.parent)}
	s.groups[id] = g
	return g
}

func (s *Service) groupExited(rec *mi.Record) {
	id := rec.Field("id")
	g, ok := s.groups[id]
	if !ok {
		return
	}
	for _, tid := range append([]string(nil), s.order...) {
		if t := s.threads[tid]; t.group == id {
			s.threadExited(tid, rec)
		}
	}
	g.started = false
	g.exitCode = rec.Field("exit-code")
	s.emit(Event{Kind: EventContainerExited, Context: g.ctx, Record: rec})
}

func (s *Service) threadCreated(rec *mi.Record) {
	id := rec.Field("id")
	if _, ok := s.threads[id]; ok {
		return
	}
	g := s.group(rec.Field("group-id"))
	t := &thread{
		ctx:   dmcontext.NewThreadContext(id, g.ctx),
		group: rec.Field("group-id"),
		state: StateRunning,
	}
	s.threads[id] = t
	s.order = append(s.order, id)
	s.emit(Event{Kind: EventThreadStarted, Context: t.ctx, Record: rec})
}

func (s *Service) threadExited(id string, rec *mi.Record) {
	t, ok := s.threads[id]
	if !ok {
		return
	}
	delete(s.threads, id)
	for i, tid := range s.order {
		if tid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.emit(Event{Kind: EventThreadExited, Context: t.ctx, Record: rec})
}

// affected returns the threads named by a thread-id style field: "all",
// a single id, or a list of ids. An absent field means all threads.
func (s *Service) affected(rec *mi.Record, field string) []*thread {
	q := rec.Query(field)
	var ids []string
	switch {
	case !q.Exists() || q.String() == "all":
		ids = s.order
	case q.IsArray():
		for _, v := range q.Array() {
			ids = append(ids, v.String())
		}
	default:
		ids = []string{q.String()}
	}

	out := make([]*thread, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.threads[id]; ok {
			out = append(out, t)
		} else {
			s.logger.Debug("event names unknown thread", zap.String("thread", id), zap.String("class", rec.Class))
		}
	}
	return out
}

func (s *Service) running(rec *mi.Record) {
	for _, t := range s.affected(rec, "thread-id") {
		if t.state == StateRunning {
			continue
		}
		t.state = StateRunning
		t.stop = StopInfo{}
		s.emit(Event{Kind: EventResumed, Context: t.ctx, Record: rec})
	}
}

func (s *Service) stopped(rec *mi.Record) {
	reason := rec.Field("reason")
	trigger := rec.Field("thread-id")
	field := "stopped-threads"
	if _, ok := rec.Get(field); !ok && trigger != "" {
		field = "thread-id"
	}

	for _, t := range s.affected(rec, field) {
		t.state = StateSuspended
		t.stop = StopInfo{Reason: reason}
		if t.ctx.ThreadID() == trigger {
			t.stop = stopInfo(rec, t.ctx)
		}
		s.emit(Event{Kind: EventSuspended, Context: t.ctx, Reason: t.stop.Reason, Record: rec})
	}
}

func stopInfo(rec *mi.Record, tc *dmcontext.ThreadContext) StopInfo {
	info := StopInfo{
		Reason: rec.Field("reason"),
		Func:   rec.Query("frame.func").String(),
		File:   rec.Query("frame.file").String(),
	}
	if line := rec.Query("frame.line"); line.Exists() {
		info.Line, _ = strconv.Atoi(line.String())
	}
	if _, ok := rec.Get("frame"); ok {
		level, _ := strconv.Atoi(rec.Query("frame.level").String())
		info.Frame = dmcontext.NewFrameContext(level, tc)
	}
	return info
}

func (s *Service) emit(ev Event) {
	s.logger.Debug("run control event",
		zap.Stringer("kind", ev.Kind),
		zap.String("context", ev.Context.Key()),
		zap.String("reason", ev.Reason))
	for _, fn := range s.listeners {
		fn(ev)
	}
}

// Containers returns the known processes ordered by group id.
func (s *Service) Containers() []*dmcontext.ContainerContext {
	out := make([]*dmcontext.ContainerContext, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.ctx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID() < out[j].GroupID() })
	return out
}

// Pid returns the operating system process id of a started container.
func (s *Service) Pid(c *dmcontext.ContainerContext) (string, bool) {
	g, ok := s.groups[c.GroupID()]
	if !ok || !g.started {
		return "", false
	}
	return g.pid, true
}

// ExitCode returns the exit code of a container that has exited.
func (s *Service) ExitCode(c *dmcontext.ContainerContext) (string, bool) {
	g, ok := s.groups[c.GroupID()]
	if !ok || g.started || g.exitCode == "" {
		return "", false
	}
	return g.exitCode, true
}

// Threads returns the live threads of c in creation order. A nil c
// returns every thread.
func (s *Service) Threads(c *dmcontext.ContainerContext) []*dmcontext.ThreadContext {
	var out []*dmcontext.ThreadContext
	for _, id := range s.order {
		t := s.threads[id]
		if c == nil || t.group == c.GroupID() {
			out = append(out, t.ctx)
		}
	}
	return out
}

// Thread returns the context of a live thread.
func (s *Service) Thread(id string) (*dmcontext.ThreadContext, bool) {
	t, ok := s.threads[id]
	if !ok {
		return nil, false
	}
	return t.ctx, true
}

// IsSuspended reports whether ctx is stopped. A thread or frame context
// asks about its thread; a container is suspended when it has threads and
// all of them are stopped.
func (s *Service) IsSuspended(ctx dmcontext.Context) bool {
	if tc, ok := dmcontext.AncestorOfType[*dmcontext.ThreadContext](ctx); ok {
		t, ok := s.threads[tc.ThreadID()]
		return ok && t.state == StateSuspended
	}
	cc, ok := dmcontext.AncestorOfType[*dmcontext.ContainerContext](ctx)
	if !ok {
		return false
	}
	n := 0
	for _, t := range s.threads {
		if t.group != cc.GroupID() {
			continue
		}
		if t.state != StateSuspended {
			return false
		}
		n++
	}
	return n > 0
}

// StopInfo returns why the thread containing ctx last stopped.
func (s *Service) StopInfo(ctx dmcontext.Context) (StopInfo, bool) {
	tc, ok := dmcontext.AncestorOfType[*dmcontext.ThreadContext](ctx)
	if !ok {
		return StopInfo{}, false
	}
	t, ok := s.threads[tc.ThreadID()]
	if !ok || t.state != StateSuspended {
		return StopInfo{}, false
	}
	return t.stop, true
}

// Name returns the service name.
func (s *Service) Name() string { return "runctl" }
