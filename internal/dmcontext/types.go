package dmcontext

import (
	"strconv"
)

// Execution is implemented by contexts that can be run, stopped and
// stepped: processes and threads.
type Execution interface {
	Context
	isExecution()
}

// ServiceContext is the scope of a session-level service. It is a root.
type ServiceContext struct {
	base
	service string
}

// NewServiceContext creates the root scope of a service.
func NewServiceContext(sessionID, service string) *ServiceContext {
	return &ServiceContext{base: newBase(sessionID, nil), service: service}
}

// Service returns the service name.
func (c *ServiceContext) Service() string { return c.service }

func (c *ServiceContext) Equal(other Context) bool {
	o, ok := other.(*ServiceContext)
	return ok && o.service == c.service && c.base.equal(&o.base)
}

func (c *ServiceContext) Key() string { return c.base.key("service", c.service) }

func (c *ServiceContext) String() string { return c.Key() }

// ControlContext identifies one debugger connection.
type ControlContext struct {
	base
	id string
}

// NewControlContext creates a connection context under parents.
func NewControlContext(id string, parents ...Context) *ControlContext {
	return &ControlContext{base: newBase("", parents), id: id}
}

// NewRootControlContext creates a connection context with no parents.
func NewRootControlContext(sessionID, id string) *ControlContext {
	return &ControlContext{base: newBase(sessionID, nil), id: id}
}

// ID returns the connection id.
func (c *ControlContext) ID() string { return c.id }

func (c *ControlContext) Equal(other Context) bool {
	o, ok := other.(*ControlContext)
	return ok && o.id == c.id && c.base.equal(&o.base)
}

func (c *ControlContext) Key() string { return c.base.key("control", c.id) }

func (c *ControlContext) String() string { return c.Key() }

// ContainerContext identifies a process, known to GDB as a thread group.
type ContainerContext struct {
	base
	groupID string
}

// NewContainerContext creates a process context under parents.
func NewContainerContext(groupID string, parents ...Context) *ContainerContext {
	return &ContainerContext{base: newBase("", parents), groupID: groupID}
}

// GroupID returns the thread group id, for example "i1".
func (c *ContainerContext) GroupID() string { return c.groupID }

func (c *ContainerContext) isExecution() {}

func (c *ContainerContext) Equal(other Context) bool {
	o, ok := other.(*ContainerContext)
	return ok && o.groupID == c.groupID && c.base.equal(&o.base)
}

func (c *ContainerContext) Key() string { return c.base.key("container", c.groupID) }

func (c *ContainerContext) String() string { return c.Key() }

// ThreadContext identifies a thread.
type ThreadContext struct {
	base
	threadID string
}

// NewThreadContext creates a thread context under parents.
func NewThreadContext(threadID string, parents ...Context) *ThreadContext {
	return &ThreadContext{base: newBase("", parents), threadID: threadID}
}

// ThreadID returns the debugger's thread id.
func (c *ThreadContext) ThreadID() string { return c.threadID }

func (c *ThreadContext) isExecution() {}

func (c *ThreadContext) Equal(other Context) bool {
	o, ok := other.(*ThreadContext)
	return ok && o.threadID == c.threadID && c.base.equal(&o.base)
}

func (c *ThreadContext) Key() string { return c.base.key("thread", c.threadID) }

func (c *ThreadContext) String() string { return c.Key() }

// FrameContext identifies a stack frame by its level, 0 being innermost.
type FrameContext struct {
	base
	level int
}

// NewFrameContext creates a frame context under parents.
func NewFrameContext(level int, parents ...Context) *FrameContext {
	return &FrameContext{base: newBase("", parents), level: level}
}

// Level returns the frame level.
func (c *FrameContext) Level() int { return c.level }

func (c *FrameContext) Equal(other Context) bool {
	o, ok := other.(*FrameContext)
	return ok && o.level == c.level && c.base.equal(&o.base)
}

func (c *FrameContext) Key() string { return c.base.key("frame", strconv.Itoa(c.level)) }

func (c *FrameContext) String() string { return c.Key() }
