package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/dbgcore/internal/runctl"
)

// Service is a session-scoped component created when the session starts.
// Services that implement control.EventProcessor receive asynchronous
// records; those that implement control.CommandListener observe commands.
type Service interface {
	Name() string
}

// Factory creates a service for s. It runs on the session dispatcher.
type Factory func(s *Session) (Service, error)

// ServiceRunControl is the name of the built-in run-control service.
const ServiceRunControl = "runctl"

// Registry maps service names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in services.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
	}
	r.Register(ServiceRunControl, func(s *Session) (Service, error) {
		return runctl.New(s.disp, s.root, runctl.WithLogger(s.logger.Named("runctl"))), nil
	})
	return r
}

// Register adds or replaces a service factory.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named service for s.
func (r *Registry) Create(name string, s *Session) (Service, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	svc, err := factory(s)
	if err != nil {
		return nil, fmt.Errorf("create service %s: %w", name, err)
	}
	return svc, nil
}

// Available returns the registered service names, sorted.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
