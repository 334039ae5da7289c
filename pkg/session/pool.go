package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/quietloop/planrunner/pkg/telemetry"
)

// Lease wraps a leased Session; Release returns it to its Pool and is
// safe to call more than once.
type Lease struct {
	Session Session

	once    sync.Once
	release func()
}

// Release returns the leased session to its pool. Idempotent.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}

// Pool hands out a bounded number of Sessions for one backend kind. At
// most len(sessions) leases are outstanding at any time; Acquire blocks
// (respecting ctx) until one is free.
type Pool struct {
	backend string
	sem     *semaphore.Weighted

	// Telemetry, when set, receives active-lease gauge adjustments.
	// Left nil by NewPool; callers that care wire it in afterward.
	Telemetry *telemetry.Provider

	mu   sync.Mutex
	free []Session
}

// NewPool wraps an already-initialized set of sessions as a pool.
func NewPool(backend string, sessions []Session) (*Pool, error) {
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session: pool for backend %q needs at least one session", backend)
	}
	return &Pool{
		backend: backend,
		sem:     semaphore.NewWeighted(int64(len(sessions))),
		free:    append([]Session(nil), sessions...),
	}, nil
}

// Acquire leases one session, blocking until one is available or ctx is
// done.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("session: acquiring %s session: %w", p.backend, err)
	}

	p.mu.Lock()
	n := len(p.free)
	s := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()

	if p.Telemetry != nil {
		p.Telemetry.LeaseAcquired(ctx, p.backend)
	}

	return &Lease{
		Session: s,
		release: func() {
			p.mu.Lock()
			p.free = append(p.free, s)
			p.mu.Unlock()
			p.sem.Release(1)
			if p.Telemetry != nil {
				p.Telemetry.LeaseReleased(context.Background(), p.backend)
			}
		},
	}, nil
}

// Close closes every session currently parked in the pool; sessions
// out on an unreleased lease are not closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, s := range p.free {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
