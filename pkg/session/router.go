package session

import (
	"context"
	"fmt"
	"sync"
)

// Router selects the right backend pool for a step's server field.
type Router struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

// NewRouter builds a Router over the given backend->pool mapping.
func NewRouter(pools map[string]*Pool) *Router {
	return &Router{pools: pools}
}

// Acquire leases a session for the named backend ("db" or "file").
func (r *Router) Acquire(ctx context.Context, backend string) (*Lease, error) {
	r.mu.RLock()
	pool, ok := r.pools[backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session: no pool registered for backend %q", backend)
	}
	return pool.Acquire(ctx)
}

// Close closes every backend pool.
func (r *Router) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, pool := range r.pools {
		if err := pool.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
