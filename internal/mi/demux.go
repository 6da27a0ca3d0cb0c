package mi

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// RecordHandler receives every parsed line except prompts. err is non-nil
// when the line looked like a result or async record but was malformed;
// rec then carries whatever could be recovered.
type RecordHandler interface {
	HandleRecord(rec *Record, err error)
}

// RecordHandlerFunc adapts a function to RecordHandler.
type RecordHandlerFunc func(rec *Record, err error)

// HandleRecord calls f.
func (f RecordHandlerFunc) HandleRecord(rec *Record, err error) {
	f(rec, err)
}

// Demux splits the debugger's output stream into lines, classifies them
// and hands them to a RecordHandler. Console, target and log streams and
// raw text are also copied, unmodified, to an optional console sink.
//
// Demux performs no session logic and may be driven from the transport
// reader goroutine.
type Demux struct {
	mu      sync.Mutex
	buf     []byte
	handler RecordHandler
	parser  *Parser
	console io.Writer
	closed  bool
}

// DemuxOption configures a Demux.
type DemuxOption func(*Demux)

// WithParser sets the parser used for each line.
func WithParser(p *Parser) DemuxOption {
	return func(d *Demux) {
		if p != nil {
			d.parser = p
		}
	}
}

// WithConsole sets the sink that receives pass-through console text.
func WithConsole(w io.Writer) DemuxOption {
	return func(d *Demux) {
		d.console = w
	}
}

// NewDemux creates a demultiplexer delivering to h.
func NewDemux(h RecordHandler, opts ...DemuxOption) *Demux {
	d := &Demux{
		handler: h,
		parser:  defaultParser,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Write appends p to the pending input and dispatches every complete
// line. It always consumes all of p.
func (d *Demux) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, io.ErrClosedPipe
	}
	d.buf = append(d.buf, p...)
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		d.dispatch(string(bytes.TrimSuffix(line, []byte{'\r'})))
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return len(p), nil
}

// Close flushes a trailing line that has no terminator. Further writes
// fail.
func (d *Demux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if len(d.buf) > 0 {
		d.dispatch(string(bytes.TrimSuffix(d.buf, []byte{'\r'})))
		d.buf = nil
	}
	return nil
}

// ReadFrom pumps r into the demultiplexer until EOF or a read error, then
// flushes. A clean EOF is not reported as an error.
func (d *Demux) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if _, werr := d.Write(chunk[:n]); werr != nil {
				return total, werr
			}
		}
		if err != nil {
			_ = d.Close()
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// Pending returns the number of buffered bytes not yet forming a line.
func (d *Demux) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

func (d *Demux) dispatch(line string) {
	rec, err := d.parser.Parse(line)
	if rec.Kind == KindPrompt {
		return
	}
	if d.console != nil && (rec.Kind == KindRaw || rec.Kind.IsStream()) {
		text := rec.Text
		if rec.Kind == KindRaw {
			text += "\n"
		}
		_, _ = io.WriteString(d.console, text)
	}
	if d.handler != nil {
		d.handler.HandleRecord(rec, err)
	}
}
