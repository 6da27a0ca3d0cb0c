package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/control"
	"github.com/dshills/dbgcore/internal/mi"
)

// DefaultTimeout bounds one call of the filter function.
const DefaultTimeout = 100 * time.Millisecond

// FilterFunc is the name of the global Lua function a script must define.
const FilterFunc = "filter"

// ErrClosed is returned by a filter after Close.
var ErrClosed = errors.New("lua filter closed")

// Option configures a Filter.
type Option func(*Filter)

// WithTimeout bounds each call of the filter function.
func WithTimeout(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets the logger. Lua print output is logged at info level.
func WithLogger(l *zap.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.logger = l
		}
	}
}

// Filter evaluates a Lua predicate over records. It is safe for
// concurrent use; calls are serialized.
type Filter struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	logger  *zap.Logger
	closed  bool
}

// NewFilter compiles source, which must define filter(record).
func NewFilter(source string, opts ...Option) (*Filter, error) {
	return newFilter(func(L *lua.LState) error { return L.DoString(source) }, opts)
}

// LoadFilter compiles the script at path.
func LoadFilter(path string, opts ...Option) (*Filter, error) {
	return newFilter(func(L *lua.LState) error { return L.DoFile(path) }, opts)
}

func newFilter(load func(*lua.LState) error, opts []Option) (*Filter, error) {
	f := &Filter{
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	f.L = L
	f.install()

	if err := load(L); err != nil {
		L.Close()
		return nil, fmt.Errorf("load filter script: %w", err)
	}
	if fn := L.GetGlobal(FilterFunc); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, fmt.Errorf("filter script must define function %q (got %s)", FilterFunc, fn.Type())
	}
	return f, nil
}

// openSafeLibraries opens only the libraries that cannot reach the host.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

func (f *Filter) install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		f.L.SetGlobal(name, lua.LNil)
	}
	f.L.SetGlobal("print", f.L.NewFunction(f.print))
	f.L.SetGlobal("query", f.L.NewFunction(query))
}

func (f *Filter) print(L *lua.LState) int {
	n := L.GetTop()
	args := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		args = append(args, L.ToStringMeta(L.Get(i)).String())
	}
	f.logger.Info("lua", zap.Strings("args", args))
	return 0
}

// query(record, path) returns the payload value at a gjson path.
func query(L *lua.LState) int {
	rec := L.CheckTable(1)
	path := L.CheckString(2)
	doc, ok := rec.RawGetString("json").(lua.LString)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(toLua(L, gjson.Get(string(doc), "payload."+path)))
	return 1
}

// Match reports whether the filter keeps rec.
func (f *Filter) Match(rec *mi.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false, ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	f.L.SetContext(ctx)
	defer f.L.RemoveContext()

	doc := rec.JSON()
	tbl := toLua(f.L, gjson.Parse(doc))
	if t, ok := tbl.(*lua.LTable); ok {
		t.RawSetString("json", lua.LString(doc))
		t.RawSetString("line", lua.LString(rec.Line))
	}

	err := f.L.CallByParam(lua.P{
		Fn:      f.L.GetGlobal(FilterFunc),
		NRet:    1,
		Protect: true,
	}, tbl)
	if err != nil {
		return false, fmt.Errorf("run filter: %w", err)
	}
	ret := f.L.Get(-1)
	f.L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Processor wraps next so that it only sees records the filter keeps.
// Filter errors are logged and the record is passed through.
func (f *Filter) Processor(next control.EventProcessor) control.EventProcessor {
	return control.EventProcessorFunc(func(rec *mi.Record) {
		keep, err := f.Match(rec)
		if err != nil {
			f.logger.Warn("lua filter failed", zap.String("line", rec.Line), zap.Error(err))
			keep = true
		}
		if keep {
			next.ProcessEvent(rec)
		}
	})
}

// Close releases the Lua state.
func (f *Filter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.L.Close()
	return nil
}

// toLua converts a JSON value to Lua. Arrays become 1-based sequences.
func toLua(L *lua.LState, v gjson.Result) lua.LValue {
	switch {
	case !v.Exists():
		return lua.LNil
	case v.IsObject():
		t := L.NewTable()
		v.ForEach(func(k, val gjson.Result) bool {
			t.RawSetString(k.String(), toLua(L, val))
			return true
		})
		return t
	case v.IsArray():
		t := L.NewTable()
		for _, item := range v.Array() {
			t.Append(toLua(L, item))
		}
		return t
	}
	switch v.Type {
	case gjson.Number:
		return lua.LNumber(v.Float())
	case gjson.True:
		return lua.LTrue
	case gjson.False:
		return lua.LFalse
	case gjson.Null:
		return lua.LNil
	default:
		return lua.LString(v.String())
	}
}
