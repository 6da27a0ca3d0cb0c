// Package dmcontext models the hierarchy of debuggable entities: a debugger
// connection, the processes it controls, their threads and stack frames.
//
// Contexts are immutable values. Each one names its session and zero or
// more parents; the parent graph is acyclic. Two contexts are equal when
// they have the same type, fields and parents, which lets callers compare
// contexts produced independently by different events.
package dmcontext

import (
	"strings"
)

// Context identifies a debuggable entity within a session.
type Context interface {
	// SessionID returns the id of the session the context belongs to.
	SessionID() string

	// Parents returns the direct parents in declaration order.
	Parents() []Context

	// Equal reports structural equality.
	Equal(other Context) bool

	// Key returns a deterministic string usable as a map key. Equal
	// contexts have equal keys.
	Key() string
}

type base struct {
	sessionID string
	parents   []Context
}

func newBase(sessionID string, parents []Context) base {
	ps := make([]Context, 0, len(parents))
	for _, p := range parents {
		if p != nil {
			ps = append(ps, p)
		}
	}
	if sessionID == "" && len(ps) > 0 {
		sessionID = ps[0].SessionID()
	}
	return base{sessionID: sessionID, parents: ps}
}

func (b *base) SessionID() string {
	return b.sessionID
}

func (b *base) Parents() []Context {
	out := make([]Context, len(b.parents))
	copy(out, b.parents)
	return out
}

func (b *base) equal(o *base) bool {
	if b.sessionID != o.sessionID || len(b.parents) != len(o.parents) {
		return false
	}
	for i := range b.parents {
		if !b.parents[i].Equal(o.parents[i]) {
			return false
		}
	}
	return true
}

func (b *base) key(kind, id string) string {
	var sb strings.Builder
	sb.WriteString(kind)
	sb.WriteByte('[')
	sb.WriteString(id)
	sb.WriteByte(']')
	if len(b.parents) == 0 {
		sb.WriteByte('@')
		sb.WriteString(b.sessionID)
		return sb.String()
	}
	sb.WriteString("<-(")
	for i, p := range b.parents {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Key())
	}
	sb.WriteByte(')')
	return sb.String()
}
