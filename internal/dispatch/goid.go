package dispatch

import (
	"bytes"
	"runtime"
	"strconv"
)

// goid returns the id of the calling goroutine, or -1 if it cannot be
// determined. It is only used to tell whether a caller runs on the worker.
func goid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	id, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
