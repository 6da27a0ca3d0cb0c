package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dbgcore/internal/async"
	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/dispatch"
	"github.com/dshills/dbgcore/internal/mi"
)

func newRecorded(t *testing.T) (*Recorder, *control.Control, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg, "dbgcore")
	ctrl := control.New(dispatch.Immediate, io.Discard, control.WithMaxInFlight(1))
	require.NoError(t, ctrl.AddCommandListener(rec))
	return rec, ctrl, reg
}

func feed(ctrl *control.Control, line string) {
	rec, err := mi.ParseRecord(line)
	ctrl.HandleRecord(rec, err)
}

func TestRecorder_CommandLifecycle(t *testing.T) {
	rec, ctrl, _ := newRecorded(t)
	clock := time.Unix(0, 0)
	rec.now = func() time.Time { return clock }

	first, err := ctrl.SubmitCommand("-exec-run", nil, nil)
	require.NoError(t, err)
	second, err := ctrl.SubmitCommand("-break-insert", nil, []string{"nosuch"})
	require.NoError(t, err)
	third, err := ctrl.SubmitCommand("-exec-next", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(rec.queued))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.sent))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.inFlight))

	third.Cancel()
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.removed))

	clock = clock.Add(30 * time.Millisecond)
	feed(ctrl, "1^running")
	require.True(t, first.IsDone())
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.done.WithLabelValues("running")))

	feed(ctrl, `2^error,msg="No symbol table is loaded."`)
	require.True(t, second.IsDone())
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.done.WithLabelValues(OutcomeError)))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.inFlight))
	assert.Empty(t, rec.sentAt)

	feed(ctrl, "99^done")
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.orphans))
}

func TestRecorder_RawAndTerminated(t *testing.T) {
	rec, ctrl, _ := newRecorded(t)

	tok := async.NewData[*mi.Output](dispatch.Immediate)
	require.NoError(t, ctrl.Queue(mi.NewRawCommand("info", "sharedlibrary"), tok))
	require.True(t, tok.IsDone())
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.done.WithLabelValues(OutcomeRaw)))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.inFlight))

	_, err := ctrl.SubmitCommand("-exec-continue", nil, nil)
	require.NoError(t, err)
	_, err = ctrl.SubmitCommand("-exec-interrupt", nil, nil)
	require.NoError(t, err)
	require.NoError(t, ctrl.Terminate(errors.New("gdb exited")))

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.done.WithLabelValues(OutcomeTerminated)))
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.inFlight))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "done", outcome(&mi.Output{Result: &mi.Record{Kind: mi.KindResult, Class: "done"}}, nil))
	assert.Equal(t, OutcomeProtocol, outcome(nil, &control.ProtocolError{Command: "-x", Err: mi.ErrSyntax}))
	assert.Equal(t, OutcomeError, outcome(nil, errors.New("boom")))
}

func TestWatchDispatcherAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(reg, "dbgcore")

	d := dispatch.New()
	defer d.Shutdown(context.Background())
	require.NoError(t, rec.WatchDispatcher(d))
	require.NoError(t, d.Do(context.Background(), func() {}))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "dbgcore_dispatcher_queue_depth 0"))
	assert.Contains(t, text, "dbgcore_dispatcher_tasks_total")
	assert.Contains(t, text, "dbgcore_commands_queued_total 0")

	assert.Error(t, rec.WatchDispatcher(d), "registering twice")
}
