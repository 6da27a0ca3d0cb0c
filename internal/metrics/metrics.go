// Package metrics exports Prometheus metrics for debugger sessions.
//
// A Recorder is a control.CommandListener: register it with a session and
// it counts commands through their life cycle, tracks the in-flight
// window and observes command latency.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/dispatch"
	"github.com/dshills/dbgcore/internal/mi"
)

// Outcome labels of the commands_done_total counter beyond MI result
// classes.
const (
	OutcomeRaw        = "raw"
	OutcomeError      = "error"
	OutcomeProtocol   = "protocol_error"
	OutcomeTerminated = "terminated"
)

// Recorder records command metrics. Its listener methods run on the
// session dispatcher.
type Recorder struct {
	queued   prometheus.Counter
	sent     prometheus.Counter
	removed  prometheus.Counter
	orphans  prometheus.Counter
	done     *prometheus.CounterVec
	inFlight prometheus.Gauge
	latency  prometheus.Histogram

	reg       prometheus.Registerer
	namespace string
	sentAt    map[*control.Handle]time.Time
	now       func() time.Time
}

// NewRecorder registers the command metrics with reg under namespace.
func NewRecorder(reg prometheus.Registerer, namespace string) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		queued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_queued_total",
			Help:      "Commands accepted into the waiting queue.",
		}),
		sent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Commands written to the debugger.",
		}),
		removed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_removed_total",
			Help:      "Commands cancelled before they were sent.",
		}),
		orphans: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphan_results_total",
			Help:      "Result records that matched no outstanding command.",
		}),
		done: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_done_total",
			Help:      "Completed commands by result class or failure.",
		}, []string{"outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_in_flight",
			Help:      "Commands sent and awaiting a result.",
		}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from sending a command to its result.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		reg:       reg,
		namespace: namespace,
		sentAt:    make(map[*control.Handle]time.Time),
		now:       time.Now,
	}
}

// CommandQueued implements control.CommandListener.
func (r *Recorder) CommandQueued(*control.Handle) {
	r.queued.Inc()
}

// CommandSent implements control.CommandListener.
func (r *Recorder) CommandSent(h *control.Handle) {
	r.sent.Inc()
	if h.ID() == 0 {
		// Raw commands expect no result.
		return
	}
	r.sentAt[h] = r.now()
	r.inFlight.Inc()
}

// CommandRemoved implements control.CommandListener.
func (r *Recorder) CommandRemoved(*control.Handle) {
	r.removed.Inc()
}

// CommandDone implements control.CommandListener.
func (r *Recorder) CommandDone(h *control.Handle, out *mi.Output, err error) {
	if at, ok := r.sentAt[h]; ok {
		delete(r.sentAt, h)
		r.inFlight.Dec()
		r.latency.Observe(r.now().Sub(at).Seconds())
	}
	r.done.WithLabelValues(outcome(out, err)).Inc()
}

// OrphanResult implements control.OrphanObserver.
func (r *Recorder) OrphanResult(*mi.Record) {
	r.orphans.Inc()
}

func outcome(out *mi.Output, err error) string {
	var protoErr *control.ProtocolError
	switch {
	case errors.Is(err, control.ErrSessionTerminated):
		return OutcomeTerminated
	case errors.As(err, &protoErr):
		return OutcomeProtocol
	case err != nil:
		return OutcomeError
	}
	if class := out.Class(); class != "" {
		return class
	}
	return OutcomeRaw
}

// WatchDispatcher exports the queue depth and task counters of d.
func (r *Recorder) WatchDispatcher(d *dispatch.Dispatcher) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: r.namespace,
			Name:      "dispatcher_queue_depth",
			Help:      "Tasks waiting on the session dispatcher.",
		}, func() float64 { return float64(d.QueueDepth()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      "dispatcher_tasks_total",
			Help:      "Tasks run by the session dispatcher.",
		}, func() float64 { return float64(d.Stats().Executed) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: r.namespace,
			Name:      "dispatcher_panics_total",
			Help:      "Dispatcher tasks that panicked.",
		}, func() float64 { return float64(d.Stats().Panicked) }),
	}
	for _, c := range collectors {
		if err := r.reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
