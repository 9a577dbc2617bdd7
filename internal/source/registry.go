package source

import (
	"fmt"
	"sort"
	"sync"

	"github.com/michaelrayburke/cniga-wigc/internal/config"
)

// Registry manages the available source types
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a registry with the built-in wordpress and file
// types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Registering fixed names on a fresh registry cannot collide.
	_ = r.Register(TypeWordPress, newWordPress)
	_ = r.Register(TypeFile, newFile)
	return r
}

// Register adds a source type under name
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("source type %s already registered", name)
	}

	r.factories[name] = f
	return nil
}

// Get retrieves a factory by name
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("source type %s not found", name)
	}

	return f, nil
}

// List returns all registered type names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the source named by cfg.Source.Type
func (r *Registry) Open(cfg *config.Config, env Env) (Source, error) {
	f, err := r.Get(cfg.Source.Type)
	if err != nil {
		return nil, err
	}
	src, err := f(cfg, env)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s source: %w", cfg.Source.Type, err)
	}
	return src, nil
}
