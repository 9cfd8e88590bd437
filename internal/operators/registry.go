package operators

import (
	"fmt"
	"sync"

	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/contexts"
	"github.com/tiktok-privacy-innovation/PrivacyGo-PETPlatform/internal/interfaces"
)

// Factory builds an operator instance for one task run.
type Factory func(party string, cm *contexts.ConfigManager, args map[string]interface{}) (interfaces.Operator, error)

// Registry maps mission operator declarations to their factories.
// Operators are compiled in and registered at startup, missions can
// only reference what the registry knows.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty operator registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

func registryKey(classPath, class string) string {
	return classPath + "/" + class
}

// Register binds a class path and class name to a factory. A second
// registration for the same pair replaces the first.
func (r *Registry) Register(classPath, class string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[registryKey(classPath, class)] = factory
}

// Lookup resolves the factory for a mission task declaration.
func (r *Registry) Lookup(classPath, class string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[registryKey(classPath, class)]
	if !ok {
		return nil, fmt.Errorf("no operator registered for %s", registryKey(classPath, class))
	}
	return factory, nil
}

// Names returns every registered declaration, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
