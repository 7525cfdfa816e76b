// Package provider manages the lifecycle of built-in providers.
package provider

import (
	"fmt"
	"sync"

	"github.com/cairnhq/cairn/pkg/provider"
	"github.com/cairnhq/cairn/providers/aws"
	"github.com/cairnhq/cairn/providers/docker"
	"github.com/cairnhq/cairn/providers/null"
)

// Registry maps provider names to loaded implementations.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Interface
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]provider.Interface)}
}

// LoadProvider initializes and registers a built-in provider.
func (r *Registry) LoadProvider(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p provider.Interface
	switch name {
	case "null":
		p = null.New()
	case "aws":
		p = aws.New()
	case "docker":
		p = docker.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = p
	return nil
}

// Get returns a loaded provider.
func (r *Registry) Get(name string) (provider.Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}

// Register installs a provider implementation directly. Tests use this to
// inject fakes.
func (r *Registry) Register(name string, p provider.Interface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Known reports whether name is a provider this registry can load.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	if _, loaded := r.providers[name]; loaded {
		r.mu.RUnlock()
		return true
	}
	r.mu.RUnlock()

	switch name {
	case "null", "aws", "docker":
		return true
	}
	return false
}
