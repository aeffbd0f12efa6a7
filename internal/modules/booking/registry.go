package booking

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultIdleTTL = 30 * time.Minute
	sweepEvery     = time.Minute
)

type entry struct {
	flow     *Flow
	lastSeen time.Time
}

// Registry keeps one Flow per visitor.
type Registry struct {
	newFlow func() *Flow
	idleTTL time.Duration
	now     func() time.Time

	mu    sync.Mutex
	flows map[string]*entry
}

func NewRegistry(newFlow func() *Flow, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		newFlow: newFlow,
		idleTTL: idleTTL,
		now:     time.Now,
		flows:   make(map[string]*entry),
	}
}

// Get returns the visitor's flow, creating it on first use.
func (r *Registry) Get(visitorID string) *Flow {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.flows[visitorID]
	if !ok {
		e = &entry{flow: r.newFlow()}
		r.flows[visitorID] = e
	}
	e.lastSeen = r.now()
	return e.flow
}

// Lookup returns the visitor's flow without creating one.
func (r *Registry) Lookup(visitorID string) (*Flow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.flows[visitorID]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.flow, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep drops flows unused for longer than the idle TTL, unless a submission
// is still in flight. It returns how many were dropped.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.flows {
		if e.lastSeen.Before(cutoff) && e.flow.State() != StateSubmitting {
			e.flow.Cancel()
			delete(r.flows, id)
			n++
		}
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Sweep()
		}
	}
}
