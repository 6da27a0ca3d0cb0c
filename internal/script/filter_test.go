package script

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/mi"
)

func record(t *testing.T, line string) *mi.Record {
	t.Helper()
	rec, err := mi.ParseRecord(line)
	require.NoError(t, err)
	return rec
}

const stopFilter = `
function filter(r)
  if r.kind == "exec" and r.class == "stopped" then
    return r.payload.reason ~= "end-stepping-range"
  end
  return r.kind ~= "log"
end
`

func TestFilter_Match(t *testing.T) {
	f, err := NewFilter(stopFilter)
	require.NoError(t, err)
	defer f.Close()

	tests := []struct {
		line string
		want bool
	}{
		{`*stopped,reason="breakpoint-hit",thread-id="1"`, true},
		{`*stopped,reason="end-stepping-range",thread-id="1"`, false},
		{`&"warning: no symbols\n"`, false},
		{`=thread-created,id="1",group-id="i1"`, true},
		{`1^done`, true},
	}
	for _, tt := range tests {
		got, err := f.Match(record(t, tt.line))
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}
}

func TestFilter_TableShapeAndQuery(t *testing.T) {
	f, err := NewFilter(`
function filter(r)
  return r.token == 7
    and r.payload.bkpt.number == "2"
    and #r.payload.stack == 2
    and r.payload.stack[2].level == "1"
    and query(r, "bkpt.number") == "2"
    and string.sub(r.line, 1, 1) == "7"
end
`)
	require.NoError(t, err)
	defer f.Close()

	keep, err := f.Match(record(t, `7^done,bkpt={number="2"},stack=[frame={level="0"},frame={level="1"}]`))
	require.NoError(t, err)
	assert.True(t, keep)
}

func TestFilter_Sandbox(t *testing.T) {
	f, err := NewFilter(`
function filter(r)
  return os == nil and io == nil and require == nil and dofile == nil and load == nil
end
`)
	require.NoError(t, err)
	defer f.Close()

	keep, err := f.Match(record(t, `^done`))
	require.NoError(t, err)
	assert.True(t, keep)
}

func TestFilter_LoadErrors(t *testing.T) {
	_, err := NewFilter(`function filter(r`)
	assert.Error(t, err)

	_, err = NewFilter(`filter = 3`)
	assert.ErrorContains(t, err, "must define function")

	_, err = LoadFilter(filepath.Join(t.TempDir(), "missing.lua"))
	assert.Error(t, err)
}

func TestFilter_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filter.lua")
	require.NoError(t, os.WriteFile(path, []byte(stopFilter), 0o600))

	f, err := LoadFilter(path)
	require.NoError(t, err)
	defer f.Close()

	keep, err := f.Match(record(t, `~"hello\n"`))
	require.NoError(t, err)
	assert.True(t, keep)
}

func TestFilter_RuntimeErrorAndTimeout(t *testing.T) {
	f, err := NewFilter(`function filter(r) error("boom") end`)
	require.NoError(t, err)
	_, err = f.Match(record(t, `^done`))
	assert.ErrorContains(t, err, "boom")
	require.NoError(t, f.Close())

	_, err = f.Match(record(t, `^done`))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, f.Close())

	slow, err := NewFilter(`function filter(r) while true do end end`, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	defer slow.Close()

	start := time.Now()
	_, err = slow.Match(record(t, `^done`))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFilter_PrintLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f, err := NewFilter(`function filter(r) print("saw", r.kind) return true end`, WithLogger(zap.New(core)))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Match(record(t, `=thread-exited,id="1"`))
	require.NoError(t, err)

	entries := logs.FilterMessage("lua").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"saw", "notify"}, entries[0].ContextMap()["args"])
}

func TestFilter_Processor(t *testing.T) {
	f, err := NewFilter(`function filter(r) return r.class ~= "thread-exited" end`)
	require.NoError(t, err)
	defer f.Close()

	var got []string
	p := f.Processor(control.EventProcessorFunc(func(rec *mi.Record) {
		got = append(got, rec.Class)
	}))
	p.ProcessEvent(record(t, `=thread-created,id="1"`))
	p.ProcessEvent(record(t, `=thread-exited,id="1"`))
	p.ProcessEvent(record(t, `*running,thread-id="all"`))
	assert.Equal(t, []string{"thread-created", "running"}, got)

	require.NoError(t, f.Close())
	p.ProcessEvent(record(t, `=thread-exited,id="1"`))
	assert.Len(t, got, 3, "records pass through when the filter fails")
}
