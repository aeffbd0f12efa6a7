package realtime

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glazestudio/internal/domain"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitState(t *testing.T, states <-chan State, want State) time.Time {
	t.Helper()
	for {
		select {
		case s := <-states:
			if s == want {
				return time.Now()
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

// deliver broadcasts until a subscriber sees the message; a hub may briefly
// still list a connection that is going away.
func deliver(t *testing.T, hub *Hub, msg Message, got <-chan Message) Message {
	t.Helper()
	var received Message
	require.Eventually(t, func() bool {
		hub.Broadcast(msg)
		select {
		case received = <-got:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
	return received
}

func startChannel(t *testing.T, ch *Channel) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("channel did not stop")
		}
	}
}

func TestChannel_DeliversTypedMessages(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.CloseAll()

	states := make(chan State, 16)
	ch := NewChannel(wsURL(srv), WithStateHook(func(s State) { states <- s }))

	refreshes := make(chan Message, 16)
	bookings := make(chan Message, 16)
	ch.Subscribe(TypeRefresh, func(_ context.Context, m Message) { refreshes <- m })
	ch.Subscribe(TypeNewBooking, func(_ context.Context, m Message) { bookings <- m })

	stop := startChannel(t, ch)
	defer stop()
	waitState(t, states, StateConnected)
	assert.Equal(t, StateConnected, ch.State())

	deliver(t, hub, RefreshMessage(), refreshes)

	slot := domain.Slot{ID: 42, Date: "2024-06-01", Time: "10:00", IsBooked: true, ClientName: "Ana", ClientEmail: "ana@example.com"}
	got := deliver(t, hub, NewBookingMessage(slot), bookings)
	require.NotNil(t, got.Data)
	assert.Equal(t, slot, *got.Data)
}

func TestChannel_DropsMalformedAndKeepsReading(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.CloseAll()

	states := make(chan State, 16)
	ch := NewChannel(wsURL(srv), WithStateHook(func(s State) { states <- s }))
	got := make(chan Message, 16)
	ch.Subscribe(TypeRefresh, func(_ context.Context, m Message) { got <- m })

	stop := startChannel(t, ch)
	defer stop()
	waitState(t, states, StateConnected)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.broadcastRaw([]byte("<<not json>>"))
	hub.broadcastRaw([]byte(`{"type":"something_else"}`))
	hub.Broadcast(RefreshMessage())

	select {
	case m := <-got:
		assert.Equal(t, TypeRefresh, m.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("refresh not delivered after malformed frame")
	}
	assert.Equal(t, StateConnected, ch.State())
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.CloseAll()

	const delay = 200 * time.Millisecond
	states := make(chan State, 16)
	ch := NewChannel(wsURL(srv), WithReconnectDelay(delay), WithStateHook(func(s State) { states <- s }))
	got := make(chan Message, 16)
	ch.Subscribe(TypeRefresh, func(_ context.Context, m Message) { got <- m })

	stop := startChannel(t, ch)
	defer stop()
	waitState(t, states, StateConnected)
	deliver(t, hub, RefreshMessage(), got)

	hub.CloseAll()
	droppedAt := waitState(t, states, StateDisconnected)
	reconnectedAt := waitState(t, states, StateConnected)
	assert.GreaterOrEqual(t, reconnectedAt.Sub(droppedAt), delay-20*time.Millisecond)

	m := deliver(t, hub, RefreshMessage(), got)
	assert.Equal(t, TypeRefresh, m.Type)
}

func TestChannel_RetriesWhileBackendDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	states := make(chan State, 16)
	ch := NewChannel("ws://"+addr+Path, WithReconnectDelay(50*time.Millisecond), WithStateHook(func(s State) { states <- s }))
	stop := startChannel(t, ch)
	defer stop()

	// a few refused dials go by before anything listens
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateDisconnected, ch.State())

	l, err = net.Listen("tcp", addr)
	require.NoError(t, err)
	hub := NewHub(nil)
	srv := &httptest.Server{Listener: l, Config: &http.Server{Handler: hub}}
	srv.Start()
	defer srv.Close()
	defer hub.CloseAll()

	waitState(t, states, StateConnected)
}

func TestChannel_RunTwice(t *testing.T) {
	ch := NewChannel("ws://127.0.0.1:1/ws", WithReconnectDelay(time.Hour))
	stop := startChannel(t, ch)
	defer stop()

	require.Eventually(t, func() bool { return ch.running.Load() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, ch.Run(context.Background()), ErrAlreadyRunning)
}

func TestChannel_DispatchOrderAndUnsubscribe(t *testing.T) {
	ch := NewChannel("ws://unused/ws")
	var calls []string

	ch.Subscribe(TypeRefresh, func(context.Context, Message) { calls = append(calls, "first") })
	unsub := ch.Subscribe(TypeRefresh, func(context.Context, Message) { calls = append(calls, "second") })
	ch.Subscribe(TypeRefresh, func(context.Context, Message) { calls = append(calls, "third") })
	ch.Subscribe(TypeNewBooking, func(context.Context, Message) { calls = append(calls, "booking") })

	ch.dispatch(context.Background(), RefreshMessage())
	assert.Equal(t, []string{"first", "second", "third"}, calls)

	calls = nil
	unsub()
	unsub()
	ch.dispatch(context.Background(), RefreshMessage())
	assert.Equal(t, []string{"first", "third"}, calls)
}

func TestChannel_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	ch := NewChannel("ws://unused/ws")
	reached := false
	ch.Subscribe(TypeRefresh, func(context.Context, Message) { panic("boom") })
	ch.Subscribe(TypeRefresh, func(context.Context, Message) { reached = true })

	assert.NotPanics(t, func() { ch.dispatch(context.Background(), RefreshMessage()) })
	assert.True(t, reached)
}

func TestDefaultReconnectDelay(t *testing.T) {
	assert.Equal(t, 3*time.Second, DefaultReconnectDelay)
	assert.Equal(t, DefaultReconnectDelay, NewChannel("ws://x/ws").reconnectDelay)
}
