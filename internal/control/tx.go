package control

import (
	"context"
	"sync"
)

// txQueue hands encoded lines from the dispatcher to the writer goroutine
// without ever blocking the dispatcher.
type txQueue struct {
	mu     sync.Mutex
	lines  []string
	closed bool
	wake   chan struct{}
}

func newTxQueue() *txQueue {
	return &txQueue{wake: make(chan struct{}, 1)}
}

// push appends a line. It returns false once the queue is closed.
func (q *txQueue) push(line string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.lines = append(q.lines, line)
	q.mu.Unlock()
	q.signal()
	return true
}

// pop blocks until a line is available, the queue is closed and drained,
// or ctx is done.
func (q *txQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.lines) > 0 {
			line := q.lines[0]
			q.lines[0] = ""
			q.lines = q.lines[1:]
			q.mu.Unlock()
			return line, true
		}
		if q.closed {
			q.mu.Unlock()
			return "", false
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return "", false
		}
	}
}

// close stops the queue and discards lines not yet written.
func (q *txQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.lines = nil
	q.mu.Unlock()
	q.signal()
}

func (q *txQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
