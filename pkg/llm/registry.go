package llm

import (
	"fmt"
	"sync"
)

// Factory builds a collaborator from an agent's model configuration.
type Factory func(cfg Config) (Collaborator, error)

type factoryRegistry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

var registry = &factoryRegistry{
	factories: make(map[string]Factory),
}

// RegisterFactory registers a collaborator factory under a provider name.
// Called from provider init functions.
func RegisterFactory(provider string, factory Factory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[provider] = factory
}

// NewCollaborator builds a collaborator for the configured provider.
func NewCollaborator(cfg Config) (Collaborator, error) {
	registry.mu.RLock()
	factory, ok := registry.factories[cfg.Provider]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown collaborator provider %q (registered: %v)", cfg.Provider, Providers())
	}
	return factory(cfg)
}

// Providers returns all registered provider names.
func Providers() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	return names
}
