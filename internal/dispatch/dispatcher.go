package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Dispatcher executes tasks on one dedicated goroutine in FIFO order.
// The queue is unbounded; Submit never blocks.
type Dispatcher struct {
	// Configuration
	name         string
	logger       *zap.Logger
	panicHandler PanicHandler
	checkOwner   bool

	// State
	mu      sync.Mutex
	queue   []Task
	hooks   []Task
	closing bool
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	owner   atomic.Int64

	// Stats
	submitted   atomic.Uint64
	executed    atomic.Uint64
	panicked    atomic.Uint64
	rejected    atomic.Uint64
	totalTimeNs atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithName sets the name used in log output.
func WithName(name string) Option {
	return func(d *Dispatcher) {
		d.name = name
	}
}

// WithLogger sets the logger used to report task panics.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithPanicHandler sets a handler invoked after a task panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(d *Dispatcher) {
		d.panicHandler = h
	}
}

// WithOwnershipChecks enables or disables the off-dispatcher assertions
// performed by AssertOwner. Checks are enabled by default.
func WithOwnershipChecks(enabled bool) Option {
	return func(d *Dispatcher) {
		d.checkOwner = enabled
	}
}

// New creates a dispatcher and starts its worker goroutine.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		name:       "session",
		logger:     zap.NewNop(),
		checkOwner: true,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.owner.Store(-1)

	started := make(chan struct{})
	go d.run(started)
	<-started
	return d
}

// Submit queues a task for execution. It may be called from any goroutine.
// After Shutdown has begun only the worker itself may submit.
func (d *Dispatcher) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	d.mu.Lock()
	if d.stopped || (d.closing && !d.InDispatcher()) {
		d.mu.Unlock()
		d.rejected.Add(1)
		return ErrShutdown
	}
	d.queue = append(d.queue, task)
	d.mu.Unlock()

	d.submitted.Add(1)
	d.signal()
	return nil
}

// Do submits fn and waits until it has run or ctx is done.
// It must not be called from the dispatcher goroutine.
func (d *Dispatcher) Do(ctx context.Context, fn Task) error {
	ran := make(chan struct{})
	if err := d.Submit(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InDispatcher reports whether the caller is the worker goroutine.
func (d *Dispatcher) InDispatcher() bool {
	return goid() == d.owner.Load()
}

func (d *Dispatcher) checksOwnership() bool {
	return d.checkOwner
}

// OnShutdown registers a hook that runs on the worker during Shutdown,
// after the tasks queued before Shutdown have been drained.
func (d *Dispatcher) OnShutdown(hook Task) error {
	if hook == nil {
		return ErrNilTask
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return ErrShutdown
	}
	d.hooks = append(d.hooks, hook)
	return nil
}

// Shutdown stops accepting external submissions, drains the queue, runs
// the shutdown hooks and waits for the worker to exit or ctx to be done.
// Calling Shutdown from a task begins the shutdown without waiting.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closing {
		d.closing = true
		d.queue = append(d.queue, d.hooks...)
		d.hooks = nil
	}
	d.mu.Unlock()
	d.signal()

	if d.InDispatcher() {
		return nil
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that is closed once the worker has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// IsRunning reports whether the dispatcher accepts external submissions.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closing
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run(started chan<- struct{}) {
	defer close(d.done)
	d.owner.Store(goid())
	close(started)

	for {
		task, ok := d.next()
		if !ok {
			return
		}
		d.execute(task)
	}
}

// next blocks until a task is available. It returns false once the
// dispatcher is closing and the queue is empty.
func (d *Dispatcher) next() (Task, bool) {
	for {
		d.mu.Lock()
		if len(d.queue) > 0 {
			task := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return task, true
		}
		if d.closing {
			d.stopped = true
			d.mu.Unlock()
			return nil, false
		}
		d.mu.Unlock()
		<-d.wake
	}
}

func (d *Dispatcher) execute(task Task) {
	start := time.Now()
	panicked := runTask(task, func(v any, stack []byte) {
		d.logger.Error("task panicked",
			zap.String("dispatcher", d.name),
			zap.Any("panic", v),
			zap.ByteString("stack", stack))
		if d.panicHandler != nil {
			d.panicHandler(v, stack)
		}
	})
	d.executed.Add(1)
	if panicked {
		d.panicked.Add(1)
	}
	d.totalTimeNs.Add(time.Since(start).Nanoseconds())
}

// QueueDepth returns the number of tasks waiting to run.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	executed := d.executed.Load()
	totalNs := d.totalTimeNs.Load()

	var avgNs int64
	if executed > 0 {
		avgNs = totalNs / int64(executed)
	}

	return Stats{
		Submitted:     d.submitted.Load(),
		Executed:      executed,
		Panicked:      d.panicked.Load(),
		Rejected:      d.rejected.Load(),
		QueueDepth:    d.QueueDepth(),
		TotalDuration: time.Duration(totalNs),
		AvgDuration:   time.Duration(avgNs),
	}
}

// Stats contains statistics for a dispatcher.
type Stats struct {
	// Submitted is the number of tasks accepted by Submit.
	Submitted uint64

	// Executed is the number of tasks that have run.
	Executed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Rejected is the number of submissions refused after shutdown.
	Rejected uint64

	// QueueDepth is the number of tasks waiting to run.
	QueueDepth int

	// TotalDuration is the cumulative time spent running tasks.
	TotalDuration time.Duration

	// AvgDuration is the average task run time.
	AvgDuration time.Duration
}
