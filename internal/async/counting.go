package async

import (
	"github.com/dshills/dbgcore/internal/dispatch"
)

type counter struct {
	expected int
	set      bool
	observed int
	status   error
}

// CountingToken completes once it has observed a fixed number of child
// completions. A failing child does not short-circuit the count; the
// token completes with the most severe status reported by its children.
//
// Children are created with WithParent(c.Token), or report manually by
// calling Complete on the counting token.
type CountingToken struct {
	*Token
}

// NewCounting creates a counting token whose expected count is not yet set.
func NewCounting(exec dispatch.Executor, opts ...Option) *CountingToken {
	t := New(exec, opts...)
	t.counter = &counter{}
	return &CountingToken{Token: t}
}

// SetExpectedCount fixes the number of child completions to wait for. It
// may be called once, before or after children have completed. A count of
// zero completes the token immediately.
func (c *CountingToken) SetExpectedCount(n int) {
	dispatch.AssertOwner(c.exec, "async: SetExpectedCount")
	ct := c.counter
	if ct.set {
		panic("async: SetExpectedCount called twice")
	}
	if n < 0 || n < ct.observed {
		panic("async: expected count below observed completions")
	}
	ct.expected = n
	ct.set = true
	if !c.done && ct.observed == n {
		c.finish(ct.status)
	}
}

// Observed returns the number of child completions seen so far.
func (c *CountingToken) Observed() int {
	return c.counter.observed
}

func (t *Token) count(err error) {
	ct := t.counter
	if t.done {
		if t.canceledEarly {
			return
		}
		panic("async: counting token completed more times than expected")
	}
	ct.observed++
	ct.status = worse(ct.status, err)
	if ct.set && ct.observed == ct.expected {
		t.finish(ct.status)
	}
}
