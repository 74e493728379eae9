package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxbridge/pkg/transport"
)

// ErrProviderNotRegistered is returned by [Registry.CreateDialer] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// DialerFactory builds a transport dialer from the provider section.
type DialerFactory func(ProviderConfig) (transport.Dialer, error)

// Registry maps provider names to dialer factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]DialerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]DialerFactory)}
}

// Register registers factory under name. Subsequent calls with the same name
// overwrite the previous registration.
func (r *Registry) Register(name string, factory DialerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateDialer instantiates the dialer registered under p.Name.
// Returns [ErrProviderNotRegistered] if no factory exists for that name.
func (r *Registry) CreateDialer(p ProviderConfig) (transport.Dialer, error) {
	r.mu.RLock()
	factory, ok := r.factories[p.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, p.Name)
	}
	d, err := factory(p)
	if err != nil {
		return nil, fmt.Errorf("config: create %q dialer: %w", p.Name, err)
	}
	return d, nil
}
