package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"glazestudio/internal/pkg/logger"
)

const DefaultReconnectDelay = 3 * time.Second

var ErrAlreadyRunning = errors.New("push channel already running")

type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// Handler is invoked for each delivered message of the subscribed type.
type Handler func(ctx context.Context, msg Message)

type subscription struct {
	id      uint64
	handler Handler
}

// Channel keeps a push connection to the backend alive and dispatches typed
// messages to subscribers. It never fetches slot data itself.
type Channel struct {
	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	log            *zap.Logger
	onState        func(State)

	mu     sync.RWMutex
	subs   map[MessageType][]subscription
	nextID uint64

	running atomic.Bool
	state   atomic.Int32
}

type ChannelOption func(*Channel)

func WithReconnectDelay(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

func WithDialer(d *websocket.Dialer) ChannelOption {
	return func(c *Channel) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithChannelLogger(l *zap.Logger) ChannelOption {
	return func(c *Channel) {
		c.log = logger.OrNop(l)
	}
}

// WithStateHook observes connect/disconnect transitions. The hook runs on the
// channel goroutine and must not block.
func WithStateHook(fn func(State)) ChannelOption {
	return func(c *Channel) {
		c.onState = fn
	}
}

func NewChannel(url string, opts ...ChannelOption) *Channel {
	c := &Channel{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: DefaultReconnectDelay,
		log:            zap.NewNop(),
		subs:           make(map[MessageType][]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) URL() string {
	return c.url
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

// Subscribe registers h for messages of type t. Handlers of one type run in
// subscription order. The returned func removes the subscription.
func (c *Channel) Subscribe(t MessageType, h Handler) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[t] = append(c.subs[t], subscription{id: id, handler: h})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			list := c.subs[t]
			kept := make([]subscription, 0, len(list))
			for _, s := range list {
				if s.id != id {
					kept = append(kept, s)
				}
			}
			c.subs[t] = kept
		})
	}
}

// Run connects and keeps reconnecting until ctx is cancelled. Every drop is
// followed by exactly one attempt after the reconnect delay; there is no cap.
func (c *Channel) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("push channel disconnected",
			zap.String("url", c.url),
			zap.Duration("retry_in", c.reconnectDelay),
			zap.Error(err),
		)

		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
	}
}

func (c *Channel) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMsgSize)
	c.setState(StateConnected)
	defer c.setState(StateDisconnected)
	c.log.Info("push channel connected", zap.String("url", c.url))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		msg, err := DecodeMessage(raw)
		if err != nil {
			c.log.Debug("dropping push message", zap.ByteString("raw", raw), zap.Error(err))
			continue
		}
		c.dispatch(ctx, msg)
	}
}

func (c *Channel) dispatch(ctx context.Context, msg Message) {
	c.mu.RLock()
	subs := append([]subscription(nil), c.subs[msg.Type]...)
	c.mu.RUnlock()

	for _, s := range subs {
		c.invoke(ctx, s.handler, msg)
	}
}

func (c *Channel) invoke(ctx context.Context, h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("push handler panicked", zap.String("type", string(msg.Type)), zap.Any("panic", r))
		}
	}()
	h(ctx, msg)
}

func (c *Channel) setState(s State) {
	c.state.Store(int32(s))
	if c.onState != nil {
		c.onState(s)
	}
}
