package app

import (
	"sync"
	"time"

	"glazestudio/internal/realtime"
)

type broadcaster interface {
	Broadcast(msg realtime.Message) int
}

// refreshGate tells browser tabs to refresh. After a new_booking frame it
// holds refresh frames back for a while and then sends a single one, so the
// agenda toast stays readable.
type refreshGate struct {
	tabs broadcaster
	hold time.Duration
	now  func() time.Time

	mu       sync.Mutex
	until    time.Time
	deferred bool
	timer    *time.Timer
	closed   bool
}

func newRefreshGate(tabs broadcaster, hold time.Duration) *refreshGate {
	return &refreshGate{tabs: tabs, hold: hold, now: time.Now}
}

// NewBooking relays msg and starts the hold.
func (g *refreshGate) NewBooking(msg realtime.Message) {
	if g.hold > 0 {
		g.mu.Lock()
		g.until = g.now().Add(g.hold)
		g.mu.Unlock()
	}
	g.tabs.Broadcast(msg)
}

// Refresh sends a refresh frame now, or once the hold is over.
func (g *refreshGate) Refresh() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if wait := g.until.Sub(g.now()); wait > 0 {
		g.deferred = true
		if g.timer == nil {
			g.timer = time.AfterFunc(wait, g.flush)
		}
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.tabs.Broadcast(realtime.RefreshMessage())
}

func (g *refreshGate) flush() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	// a later new_booking extended the hold
	if wait := g.until.Sub(g.now()); wait > 0 {
		g.timer = time.AfterFunc(wait, g.flush)
		g.mu.Unlock()
		return
	}
	g.timer = nil
	send := g.deferred
	g.deferred = false
	g.mu.Unlock()

	if send {
		g.tabs.Broadcast(realtime.RefreshMessage())
	}
}

func (g *refreshGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
