package broker

import (
	"sync"

	"go.bryk.io/rmi/errors"
)

// Adapter constructs a Connection for a given URL. Concrete broker
// drivers (e.g. `broker/rabbitmq`) register one Adapter per scheme they
// support.
type Adapter interface {
	// Dial opens a Connection to the given URL. Credentials, if any, are
	// expected to travel embedded in the URL or via adapter-specific
	// construction options set when the Adapter itself was built.
	Dial(u URL, topology Topology) (Connection, error)
}

// ErrUnknownAdapter is returned by Registry.Find when no adapter is
// registered for a URL's scheme.
var ErrUnknownAdapter = errors.New("broker: no adapter registered for scheme")

// Registry is an explicit, process-scoped service mapping URL schemes to
// adapters. Per the Design Notes (§9), this replaces the "populated at
// init, read-only thereafter" singleton with a value constructed once at
// startup and passed to the components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register associates an Adapter with a URL scheme. Registering the same
// scheme twice replaces the previous adapter.
func (r *Registry) Register(scheme string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[scheme] = a
}

// Find returns the adapter registered for u's scheme.
func (r *Registry) Find(u URL) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[u.Scheme]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAdapter, "scheme %q", u.Scheme)
	}
	return a, nil
}
