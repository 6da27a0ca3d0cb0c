package mi

import (
	"strconv"
	"strings"
)

// Kind classifies an output line.
type Kind int

const (
	KindRaw Kind = iota
	KindResult
	KindExec
	KindStatus
	KindNotify
	KindConsole
	KindTarget
	KindLog
	KindPrompt
)

var kindNames = [...]string{
	KindRaw:     "raw",
	KindResult:  "result",
	KindExec:    "exec",
	KindStatus:  "status",
	KindNotify:  "notify",
	KindConsole: "console",
	KindTarget:  "target",
	KindLog:     "log",
	KindPrompt:  "prompt",
}

// String returns the kind name.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// IsAsync reports whether k is an asynchronous (out-of-band) event.
func (k Kind) IsAsync() bool {
	return k == KindExec || k == KindStatus || k == KindNotify
}

// IsStream reports whether k is console, target or log stream output.
func (k Kind) IsStream() bool {
	return k == KindConsole || k == KindTarget || k == KindLog
}

// Result classes of result records.
const (
	ClassDone      = "done"
	ClassRunning   = "running"
	ClassConnected = "connected"
	ClassError     = "error"
	ClassExit      = "exit"
)

// Value is a constant, tuple or list in a record payload.
type Value interface {
	isValue()
	String() string
}

// Const is a string constant.
type Const string

// Tuple is a brace-delimited sequence of named values. GDB occasionally
// repeats a name within one tuple; all occurrences are kept.
type Tuple []Result

// List is a bracket-delimited sequence of either bare values or named
// results.
type List struct {
	Values  []Value
	Results []Result
}

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

func (Const) isValue() {}
func (Tuple) isValue() {}
func (List) isValue()  {}

func (c Const) String() string { return Quote(string(c)) }

func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	writeResults(&sb, t)
	sb.WriteByte('}')
	return sb.String()
}

func (l List) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	if len(l.Results) > 0 {
		writeResults(&sb, l.Results)
	} else {
		for i, v := range l.Values {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(v.String())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// Len returns the number of elements.
func (l List) Len() int {
	return len(l.Values) + len(l.Results)
}

func writeResults(sb *strings.Builder, rs []Result) {
	for i, r := range rs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(r.Name)
		sb.WriteByte('=')
		sb.WriteString(r.Value.String())
	}
}

// Get returns the first value named name.
func (t Tuple) Get(name string) (Value, bool) {
	return lookup(t, name)
}

// Field returns the string constant named name, or "".
func (t Tuple) Field(name string) string {
	v, _ := lookup(t, name)
	c, _ := v.(Const)
	return string(c)
}

func lookup(rs []Result, name string) (Value, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r.Value, true
		}
	}
	return nil, false
}

// Record is one parsed line of debugger output.
type Record struct {
	Kind Kind

	// Token is the correlation token; HasToken is false when the line
	// carried none.
	Token    int
	HasToken bool

	// Class is the result class ("done", "error", ...) or the async class
	// ("stopped", "thread-created", ...).
	Class string

	// Results is the payload of result and async records.
	Results Tuple

	// Text is the decoded payload of a stream record, or the line itself
	// for raw output.
	Text string

	// Line is the line as received.
	Line string
}

// Get returns the first payload value named name.
func (r *Record) Get(name string) (Value, bool) {
	return r.Results.Get(name)
}

// Field returns the payload string constant named name, or "".
func (r *Record) Field(name string) string {
	return r.Results.Field(name)
}

// IsError reports whether r is an "^error" result record.
func (r *Record) IsError() bool {
	return r.Kind == KindResult && r.Class == ClassError
}

// ErrorMessage returns the debugger's message of an error record. GDB uses
// "msg"; some front ends and older versions use "message".
func (r *Record) ErrorMessage() string {
	if m := r.Field("msg"); m != "" {
		return m
	}
	return r.Field("message")
}

// String returns the record as it would appear on the wire.
func (r *Record) String() string {
	if r.Line != "" {
		return r.Line
	}
	var sb strings.Builder
	if r.HasToken {
		sb.WriteString(strconv.Itoa(r.Token))
	}
	switch r.Kind {
	case KindResult, KindExec, KindStatus, KindNotify:
		sb.WriteByte(kindMarker[r.Kind])
		sb.WriteString(r.Class)
		if len(r.Results) > 0 {
			sb.WriteByte(',')
			writeResults(&sb, r.Results)
		}
	case KindConsole, KindTarget, KindLog:
		sb.WriteByte(kindMarker[r.Kind])
		sb.WriteString(Quote(r.Text))
	case KindPrompt:
		sb.WriteString(promptText)
	default:
		sb.WriteString(r.Text)
	}
	return sb.String()
}

var kindMarker = map[Kind]byte{
	KindResult:  '^',
	KindExec:    '*',
	KindStatus:  '+',
	KindNotify:  '=',
	KindConsole: '~',
	KindTarget:  '@',
	KindLog:     '&',
}

// Output is the outcome of one command: its result record and the
// out-of-band records received since the previous result.
type Output struct {
	Result *Record
	OOB    []*Record
}

// Class returns the result class.
func (o *Output) Class() string {
	if o == nil || o.Result == nil {
		return ""
	}
	return o.Result.Class
}

// Console returns the concatenated console stream text received with the
// result, which is where CLI commands print their output.
func (o *Output) Console() string {
	if o == nil {
		return ""
	}
	var sb strings.Builder
	for _, r := range o.OOB {
		if r.Kind == KindConsole {
			sb.WriteString(r.Text)
		}
	}
	return sb.String()
}
