package snapshot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"glazestudio/internal/domain"
	"glazestudio/internal/pkg/logger"
)

// Lister fetches the full slot collection.
type Lister interface {
	ListAll(ctx context.Context) ([]domain.Slot, error)
}

// Result is the outcome of one fetch-and-compare run.
type Result struct {
	Changed  bool
	Snapshot *domain.Snapshot
	Seq      uint64
}

type call struct {
	done    chan struct{}
	waiters int
	res     Result
	err     error
}

// Cache is the single source of truth for the last known slot state.
//
// Refreshes are serialized: at most one fetch-and-compare runs at a time. A
// refresh requested while one is running joins a single queued follow-up, so
// a burst of triggers costs at most two fetches and nothing is dropped.
type Cache struct {
	lister Lister
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	current  *domain.Snapshot
	seq      uint64
	inflight *call
	pending  *call

	subMu  sync.RWMutex
	subs   []subscriber
	nextID uint64
}

type subscriber struct {
	id uint64
	fn func(*domain.Snapshot)
}

type Option func(*Cache)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.log = logger.OrNop(l)
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(lister Lister, opts ...Option) *Cache {
	c := &Cache{
		lister: lister,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the stored snapshot, nil before the first successful fetch.
func (c *Cache) Current() *domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribe registers fn to run after every Changed result, in subscription
// order, on the refresh goroutine.
func (c *Cache) Subscribe(fn func(*domain.Snapshot)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			kept := make([]subscriber, 0, len(c.subs))
			for _, s := range c.subs {
				if s.id != id {
					kept = append(kept, s)
				}
			}
			c.subs = kept
		})
	}
}

// Refresh fetches the slot list and stores it if it differs from the current
// snapshot. On error the stored snapshot is untouched: a failed fetch means
// "no change", never "empty". ctx only bounds the wait; the fetch itself is
// never cancelled.
func (c *Cache) Refresh(ctx context.Context) (Result, error) {
	cl := c.enqueue(ctx)
	select {
	case <-cl.done:
		return cl.res, cl.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Trigger requests a refresh without waiting for it. Failures are logged.
func (c *Cache) Trigger(ctx context.Context) {
	c.enqueue(ctx)
}

func (c *Cache) enqueue(ctx context.Context) *call {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight == nil {
		cl := &call{done: make(chan struct{}), waiters: 1}
		c.inflight = cl
		go c.drain(context.WithoutCancel(ctx), cl)
		return cl
	}
	if c.pending == nil {
		c.pending = &call{done: make(chan struct{})}
	}
	c.pending.waiters++
	return c.pending
}

func (c *Cache) drain(ctx context.Context, cl *call) {
	for cl != nil {
		cl.res, cl.err = c.run(ctx)
		close(cl.done)

		c.mu.Lock()
		cl = c.pending
		c.pending = nil
		c.inflight = cl
		c.mu.Unlock()
	}
}

func (c *Cache) run(ctx context.Context) (Result, error) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	slots, err := c.lister.ListAll(ctx)
	if err != nil {
		c.log.Warn("slot refresh failed, keeping last snapshot", zap.Uint64("seq", seq), zap.Error(err))
		return Result{Snapshot: c.Current(), Seq: seq}, err
	}
	next := domain.NewSnapshot(slots, seq, c.now())

	// runs never overlap, so seq is always newer than the stored snapshot's
	c.mu.Lock()
	prev := c.current
	if prev.Equal(next) {
		c.mu.Unlock()
		return Result{Snapshot: prev, Seq: seq}, nil
	}
	c.current = next
	c.mu.Unlock()

	if ce := c.log.Check(zap.DebugLevel, "slot snapshot changed"); ce != nil {
		ce.Write(zap.Uint64("seq", seq), zap.Int("slots", next.Len()), zap.String("diff", prev.Diff(next)))
	}
	c.notify(next)
	return Result{Changed: true, Snapshot: next, Seq: seq}, nil
}

func (c *Cache) notify(s *domain.Snapshot) {
	c.subMu.RLock()
	subs := append([]subscriber(nil), c.subs...)
	c.subMu.RUnlock()

	for _, sub := range subs {
		c.invoke(sub.fn, s)
	}
}

func (c *Cache) invoke(fn func(*domain.Snapshot), s *domain.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("snapshot subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(s)
}
