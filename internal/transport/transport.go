// Package transport connects a session to a GDB process: over the standard
// streams of a child process, a TCP socket, or any byte stream.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

// Transport is a bidirectional MI byte stream.
type Transport interface {
	io.Reader
	io.Writer

	// Close releases the stream. It may be called more than once.
	Close() error
}

// DefaultExitGrace is how long Stdio.Close waits for the process to exit
// on its own before killing it.
const DefaultExitGrace = 2 * time.Second

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithExitGrace sets how long Close waits before killing the process.
func WithExitGrace(d time.Duration) StdioOption {
	return func(t *Stdio) {
		t.grace = d
	}
}

// WithStderrLogger routes the process's standard error to l, one warning
// per line.
func WithStderrLogger(l *zap.Logger) StdioOption {
	return func(t *Stdio) {
		if l != nil {
			t.stderr = &zapio.Writer{Log: l.Named("stderr"), Level: zap.WarnLevel}
		}
	}
}

// Stdio talks MI over the standard input and output of a child process.
type Stdio struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *zapio.Writer
	grace  time.Duration

	mu       sync.Mutex
	waitOnce sync.Once
	waitErr  error
	exited   chan struct{}
	closed   bool
}

// NewStdio starts cmd with its standard streams connected to the returned
// transport.
func NewStdio(cmd *exec.Cmd, opts ...StdioOption) (*Stdio, error) {
	t := &Stdio{
		cmd:    cmd,
		grace:  DefaultExitGrace,
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}
	if t.stderr != nil {
		cmd.Stderr = t.stderr
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	t.stdin = stdin
	t.stdout = stdout
	return t, nil
}

// Read reads from the process's standard output.
func (t *Stdio) Read(p []byte) (int, error) {
	return t.stdout.Read(p)
}

// Write writes to the process's standard input.
func (t *Stdio) Write(p []byte) (int, error) {
	return t.stdin.Write(p)
}

// Pid returns the process id.
func (t *Stdio) Pid() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Exited is closed once the process has been reaped by Close or Wait.
func (t *Stdio) Exited() <-chan struct{} {
	return t.exited
}

// Wait waits for the process to exit and returns its exit status. It must
// not be called before reads from the transport have finished.
func (t *Stdio) Wait() error {
	t.waitOnce.Do(func() {
		t.waitErr = t.cmd.Wait()
		if t.stderr != nil {
			t.stderr.Close()
		}
		close(t.exited)
	})
	return t.waitErr
}

// Close closes standard input, which asks the process to exit, and kills
// it if it is still running after the exit grace period.
func (t *Stdio) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		<-t.exited
		return t.exitErr()
	}
	t.closed = true
	t.mu.Unlock()

	t.stdin.Close()

	done := make(chan struct{})
	go func() {
		t.Wait()
		close(done)
	}()

	timer := time.NewTimer(t.grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		if t.cmd.Process != nil {
			t.cmd.Process.Kill()
		}
		<-done
	}
	return t.exitErr()
}

// exitErr hides the status of a process that was killed or closed its
// output early; neither is a transport failure.
func (t *Stdio) exitErr() error {
	var exitErr *exec.ExitError
	if errors.As(t.waitErr, &exitErr) {
		return nil
	}
	return t.waitErr
}

// Socket talks MI over a network connection, typically to a GDB started
// with its console redirected to a TCP port.
type Socket struct {
	conn net.Conn
}

// Dial connects to address on network ("tcp" or "unix").
func Dial(ctx context.Context, network, address string) (*Socket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Socket{conn: conn}, nil
}

// NewSocket wraps an established connection.
func NewSocket(conn net.Conn) *Socket {
	return &Socket{conn: conn}
}

func (t *Socket) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *Socket) Write(p []byte) (int, error) { return t.conn.Write(p) }

// Close closes the connection.
func (t *Socket) Close() error {
	err := t.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Raw wraps any io.ReadWriteCloser as a Transport.
type Raw struct {
	rwc  io.ReadWriteCloser
	once sync.Once
	err  error
}

// NewRaw creates a transport from rwc.
func NewRaw(rwc io.ReadWriteCloser) *Raw {
	return &Raw{rwc: rwc}
}

func (t *Raw) Read(p []byte) (int, error)  { return t.rwc.Read(p) }
func (t *Raw) Write(p []byte) (int, error) { return t.rwc.Write(p) }

// Close closes the underlying stream once.
func (t *Raw) Close() error {
	t.once.Do(func() {
		t.err = t.rwc.Close()
	})
	return t.err
}

// Pipe joins separate read and write halves, such as the two ends of
// io.Pipe, into one ReadWriteCloser.
type Pipe struct {
	io.Reader
	io.Writer
}

// Close closes whichever halves implement io.Closer.
func (p Pipe) Close() error {
	var errs []error
	if c, ok := p.Writer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := p.Reader.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
