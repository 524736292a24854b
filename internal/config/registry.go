package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkravets/ghostline/internal/resilience"
	"github.com/pkravets/ghostline/pkg/backend"
)

// ErrBackendNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Factory constructs a [backend.Client] from its configuration entry.
type Factory func(BackendEntry) (backend.Client, error)

// Registry maps backend names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers a backend factory under name. Subsequent calls with the
// same name overwrite the previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates a backend using the factory registered under entry.Name.
// Returns [ErrBackendNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) Create(entry BackendEntry) (backend.Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, entry.Name)
	}
	return factory(entry)
}

// BuildChain instantiates every configured backend and assembles them into a
// failover chain. The first entry is the primary; the rest are fallbacks in
// listed order. A single-entry chain still goes through the group so its
// circuit breaker applies.
func (r *Registry) BuildChain(cfg *Config) (backend.Client, error) {
	if len(cfg.Backends) == 0 {
		return nil, errors.New("config: no backends configured")
	}

	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: time.Duration(cfg.Resilience.ResetTimeoutMs) * time.Millisecond,
	}

	primary, err := r.Create(cfg.Backends[0])
	if err != nil {
		return nil, fmt.Errorf("config: build backend %q: %w", cfg.Backends[0].Name, err)
	}

	group := resilience.NewBackendGroup(primary, cfg.Backends[0].Name, resilience.FallbackConfig{
		CircuitBreaker: breaker,
	})

	for _, entry := range cfg.Backends[1:] {
		client, err := r.Create(entry)
		if err != nil {
			return nil, fmt.Errorf("config: build backend %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, client)
	}

	return group, nil
}
