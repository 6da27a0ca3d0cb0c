package dmcontext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hierarchy() (*ControlContext, *ContainerContext, *ThreadContext, *FrameContext) {
	control := NewRootControlContext("s1", "gdb")
	container := NewContainerContext("i1", control)
	thread := NewThreadContext("3", container)
	frame := NewFrameContext(0, thread)
	return control, container, thread, frame
}

func TestContext_SessionInherited(t *testing.T) {
	_, _, _, frame := hierarchy()
	assert.Equal(t, "s1", frame.SessionID())
}

func TestContext_StructuralEquality(t *testing.T) {
	_, _, thread, frame := hierarchy()
	_, _, thread2, frame2 := hierarchy()

	assert.True(t, thread.Equal(thread2))
	assert.True(t, frame.Equal(frame2))
	assert.Equal(t, frame.Key(), frame2.Key())

	other := NewFrameContext(1, thread)
	assert.False(t, frame.Equal(other))
	assert.NotEqual(t, frame.Key(), other.Key())

	elsewhere := NewThreadContext("3", NewContainerContext("i2", NewRootControlContext("s1", "gdb")))
	assert.False(t, thread.Equal(elsewhere))
	assert.False(t, thread.Equal(frame))
}

func TestContext_ParentsIsACopy(t *testing.T) {
	_, container, thread, _ := hierarchy()
	ps := thread.Parents()
	ps[0] = nil
	assert.True(t, thread.Parents()[0].Equal(container))
}

func TestAncestorOfType(t *testing.T) {
	control, container, thread, frame := hierarchy()

	got, ok := AncestorOfType[*ThreadContext](frame)
	require.True(t, ok)
	assert.Same(t, thread, got)

	gotControl, ok := AncestorOfType[*ControlContext](frame)
	require.True(t, ok)
	assert.Same(t, control, gotControl)

	self, ok := AncestorOfType[*FrameContext](frame)
	require.True(t, ok)
	assert.Same(t, frame, self)

	_, ok = AncestorOfType[*ServiceContext](frame)
	assert.False(t, ok)

	exec, ok := AncestorOfType[Execution](frame)
	require.True(t, ok)
	assert.Same(t, thread, exec, "nearest execution context is the thread, not the process")

	execOfContainer, ok := AncestorOfType[Execution](container)
	require.True(t, ok)
	assert.Same(t, container, execOfContainer)
}

func TestAncestorOfType_ShallowMatchWins(t *testing.T) {
	outer := NewThreadContext("outer", NewRootControlContext("s1", "gdb"))
	inner := NewThreadContext("inner", outer)
	frame := NewFrameContext(0, inner)

	got, ok := AncestorOfType[*ThreadContext](frame)
	require.True(t, ok)
	assert.Equal(t, "inner", got.ThreadID())
}

func TestAncestorOfType_DirectParentsBeforeDeeperAncestors(t *testing.T) {
	control := NewRootControlContext("s1", "gdb")
	// First parent only reaches a thread through its own parent; the
	// second parent is a thread itself.
	deepThread := NewThreadContext("deep", control)
	firstParent := NewFrameContext(2, deepThread)
	directThread := NewThreadContext("direct", control)

	ctx := NewFrameContext(0, firstParent, directThread)
	got, ok := AncestorOfType[*ThreadContext](ctx)
	require.True(t, ok)
	assert.Equal(t, "direct", got.ThreadID())
}

func TestAncestorOfType_SmallerDepthWins(t *testing.T) {
	control := NewRootControlContext("s1", "gdb")
	deep := NewThreadContext("deep", control)
	shallow := NewThreadContext("shallow", control)

	// deep sits three levels up through the first parent, shallow two
	// levels up through the second.
	first := NewFrameContext(1, NewFrameContext(2, deep))
	second := NewFrameContext(3, shallow)

	got, ok := AncestorOfType[*ThreadContext](NewFrameContext(0, first, second))
	require.True(t, ok)
	assert.Equal(t, "shallow", got.ThreadID())

	got, ok = AncestorOfType[*ThreadContext](NewFrameContext(0, second, first))
	require.True(t, ok)
	assert.Equal(t, "shallow", got.ThreadID())
}

func TestAncestorOfType_Nil(t *testing.T) {
	_, ok := AncestorOfType[*ThreadContext](nil)
	assert.False(t, ok)
}

func TestIsAncestorOf(t *testing.T) {
	control, container, thread, frame := hierarchy()

	assert.True(t, IsAncestorOf(frame, thread))
	assert.True(t, IsAncestorOf(frame, container))
	assert.True(t, IsAncestorOf(frame, control))
	assert.False(t, IsAncestorOf(frame, frame))
	assert.False(t, IsAncestorOf(thread, frame))

	// Structural equality, not identity.
	_, _, thread2, _ := hierarchy()
	assert.True(t, IsAncestorOf(frame, thread2))
}

func TestFlatten_PreservesDuplicates(t *testing.T) {
	control := NewRootControlContext("s1", "gdb")
	left := NewContainerContext("i1", control)
	right := NewContainerContext("i2", control)
	thread := NewThreadContext("1", left, right)

	flat := Flatten(thread)
	keys := make([]string, len(flat))
	for i, c := range flat {
		keys[i] = c.Key()
	}
	assert.Equal(t, []string{
		thread.Key(),
		left.Key(),
		control.Key(),
		right.Key(),
		control.Key(),
	}, keys)

	controls := AllAncestorsOfType[*ControlContext](thread)
	assert.Len(t, controls, 1)
	containers := AllAncestorsOfType[*ContainerContext](thread)
	assert.Len(t, containers, 2)
}

func TestServiceContext(t *testing.T) {
	a := NewServiceContext("s1", "runcontrol")
	b := NewServiceContext("s1", "runcontrol")
	c := NewServiceContext("s2", "runcontrol")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "service[runcontrol]@s1", a.Key())
	assert.Empty(t, a.Parents())
}
