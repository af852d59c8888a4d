package c3p0

import (
	"sync"

	"github.com/oss-evaluation-repository/swaldman-c3p0/taskrunner"
)

// DefaultName is the registry name of the built-in tester and task runner factory.
const DefaultName = "default"

// Registry maps configuration names to connection testers, connection customizers and task runner factories. A
// Manager resolves the names in its configuration against the Registry it was given.
type Registry struct {
	mu          sync.RWMutex
	testers     map[string]ConnectionTester
	customizers map[string]ConnectionCustomizer
	factories   map[string]taskrunner.Factory
}

// NewRegistry returns a registry holding DefaultConnectionTester and taskrunner.DefaultFactory under DefaultName.
func NewRegistry() *Registry {
	return &Registry{
		testers:     map[string]ConnectionTester{DefaultName: DefaultConnectionTester{}},
		customizers: map[string]ConnectionCustomizer{},
		factories:   map[string]taskrunner.Factory{DefaultName: taskrunner.DefaultFactory},
	}
}

func (r *Registry) RegisterConnectionTester(name string, tester ConnectionTester) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.testers[name] = tester
}

func (r *Registry) ConnectionTester(name string) (ConnectionTester, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.testers[name]
	return t, ok
}

func (r *Registry) RegisterConnectionCustomizer(name string, customizer ConnectionCustomizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customizers[name] = customizer
}

func (r *Registry) ConnectionCustomizer(name string) (ConnectionCustomizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customizers[name]
	return c, ok
}

func (r *Registry) RegisterTaskRunnerFactory(name string, factory taskrunner.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// TaskRunnerFactory returns the factory registered as name. "" means DefaultName.
func (r *Registry) TaskRunnerFactory(name string) (taskrunner.Factory, bool) {
	if name == "" {
		name = DefaultName
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}
