package runctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dbgcore/internal/dispatch"
	"github.com/dshills/dbgcore/internal/dmcontext"
	"github.com/dshills/dbgcore/internal/mi"
)

func newService(t *testing.T) (*Service, *[]Event) {
	t.Helper()
	ctrl := dmcontext.NewRootControlContext("s1", "gdb")
	s := New(dispatch.Immediate, ctrl)
	var events []Event
	s.AddListener(func(ev Event) { events = append(events, ev) })
	return s, &events
}

func feed(t *testing.T, s *Service, lines ...string) {
	t.Helper()
	for _, line := range lines {
		rec, err := mi.ParseRecord(line)
		require.NoError(t, err, line)
		s.ProcessEvent(rec)
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestService_ProcessLifecycle(t *testing.T) {
	s, events := newService(t)
	feed(t, s,
		`=thread-group-added,id="i1"`,
		`=thread-group-started,id="i1",pid="4242"`,
		`=thread-created,id="1",group-id="i1"`,
		`=thread-created,id="2",group-id="i1"`,
		`*running,thread-id="all"`,
	)

	containers := s.Containers()
	require.Len(t, containers, 1)
	assert.Equal(t, "i1", containers[0].GroupID())
	pid, ok := s.Pid(containers[0])
	require.True(t, ok)
	assert.Equal(t, "4242", pid)

	threads := s.Threads(containers[0])
	require.Len(t, threads, 2)
	assert.Equal(t, "1", threads[0].ThreadID())

	c, ok := dmcontext.AncestorOfType[*dmcontext.ContainerContext](threads[1])
	require.True(t, ok)
	assert.True(t, c.Equal(containers[0]))
	assert.Equal(t, "s1", threads[1].SessionID())

	assert.False(t, s.IsSuspended(threads[0]))
	assert.False(t, s.IsSuspended(containers[0]))

	feed(t, s,
		`=thread-exited,id="2",group-id="i1"`,
		`=thread-group-exited,id="i1",exit-code="3"`,
	)
	assert.Empty(t, s.Threads(nil))
	code, ok := s.ExitCode(containers[0])
	require.True(t, ok)
	assert.Equal(t, "3", code)
	_, ok = s.Pid(containers[0])
	assert.False(t, ok)

	assert.Equal(t, []EventKind{
		EventContainerStarted,
		EventThreadStarted,
		EventThreadStarted,
		EventThreadExited,
		EventThreadExited,
		EventContainerExited,
	}, kinds(*events))
}

func TestService_AllStop(t *testing.T) {
	s, events := newService(t)
	feed(t, s,
		`=thread-group-started,id="i1",pid="1"`,
		`=thread-created,id="1",group-id="i1"`,
		`=thread-created,id="2",group-id="i1"`,
	)
	*events = nil

	feed(t, s, `*stopped,reason="breakpoint-hit",bkptno="1",frame={addr="0x1139",func="main",args=[],file="hello.c",line="5",level="0"},thread-id="2",stopped-threads="all",core="0"`)

	t1, _ := s.Thread("1")
	t2, _ := s.Thread("2")
	assert.True(t, s.IsSuspended(t1))
	assert.True(t, s.IsSuspended(t2))
	assert.True(t, s.IsSuspended(s.Containers()[0]))
	assert.Equal(t, []EventKind{EventSuspended, EventSuspended}, kinds(*events))

	info, ok := s.StopInfo(t2)
	require.True(t, ok)
	assert.Equal(t, "breakpoint-hit", info.Reason)
	assert.Equal(t, "main", info.Func)
	assert.Equal(t, "hello.c", info.File)
	assert.Equal(t, 5, info.Line)
	require.NotNil(t, info.Frame)
	assert.Equal(t, 0, info.Frame.Level())
	assert.True(t, s.IsSuspended(info.Frame))

	other, ok := s.StopInfo(t1)
	require.True(t, ok)
	assert.Equal(t, "breakpoint-hit", other.Reason)
	assert.Nil(t, other.Frame)

	*events = nil
	feed(t, s, `*running,thread-id="all"`)
	assert.False(t, s.IsSuspended(t1))
	_, ok = s.StopInfo(t2)
	assert.False(t, ok)
	assert.Equal(t, []EventKind{EventResumed, EventResumed}, kinds(*events))
}

func TestService_NonStop(t *testing.T) {
	s, events := newService(t)
	feed(t, s,
		`=thread-created,id="1",group-id="i1"`,
		`=thread-created,id="2",group-id="i1"`,
		`=thread-created,id="3",group-id="i1"`,
	)
	*events = nil

	feed(t, s, `*stopped,reason="signal-received",thread-id="2",stopped-threads=["2","3"]`)
	t1, _ := s.Thread("1")
	t2, _ := s.Thread("2")
	t3, _ := s.Thread("3")
	assert.False(t, s.IsSuspended(t1))
	assert.True(t, s.IsSuspended(t2))
	assert.True(t, s.IsSuspended(t3))
	assert.False(t, s.IsSuspended(s.Containers()[0]))

	feed(t, s, `*running,thread-id="3"`)
	assert.False(t, s.IsSuspended(t3))
	assert.True(t, s.IsSuspended(t2))

	feed(t, s, `*stopped,reason="end-stepping-range",thread-id="3"`)
	assert.True(t, s.IsSuspended(t3))
	assert.False(t, s.IsSuspended(t1))

	for _, ev := range *events {
		if ev.Kind == EventSuspended {
			assert.NotEmpty(t, ev.Reason)
		}
	}
}

func TestService_IgnoresUnknown(t *testing.T) {
	s, events := newService(t)
	feed(t, s,
		`*running,thread-id="9"`,
		`=thread-exited,id="9",group-id="i1"`,
		`=thread-group-exited,id="i7"`,
		`=breakpoint-modified,bkpt={number="1"}`,
	)
	assert.Empty(t, *events)
	assert.Empty(t, s.Containers())
	assert.False(t, s.IsSuspended(dmcontext.NewRootControlContext("s1", "gdb")))

	_, ok := s.Thread("9")
	assert.False(t, ok)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "suspended", StateSuspended.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "thread-exited", EventThreadExited.String())
	assert.Equal(t, "unknown", EventKind(99).String())
}
