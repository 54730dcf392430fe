package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
)

type fakeConn struct {
	mu     sync.Mutex
	got    []Event
	fail   bool
	closed bool
	wrote  chan struct{}
	block  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{wrote: make(chan struct{}, 16)}
}

func (c *fakeConn) WriteJSON(v any) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.wrote <- struct{}{}
	}()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.got = append(c.got, v.(Event))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.got...)
}

func waitWrite(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case <-c.wrote:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}
}

func TestEventAddressing(t *testing.T) {
	assert.True(t, Event{}.For("u1", models.RoleStudent))
	assert.True(t, Event{UserID: "u1"}.For("u1", models.RoleStudent))
	assert.False(t, Event{UserID: "u1"}.For("u2", models.RoleStudent))
	assert.False(t, Event{Role: models.RoleAdmin}.For("u1", models.RoleTutor))
	assert.True(t, Event{Role: models.RoleAdmin}.For("u1", models.RoleAdmin))
}

func TestHubDeliversOnlyToAddressedClients(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	alice := newFakeConn()
	bob := newFakeConn()
	admin := newFakeConn()
	hub.Add(alice, "alice", models.RoleStudent)
	hub.Add(bob, "bob", models.RoleStudent)
	hub.Add(admin, "root", models.RoleAdmin)

	hub.Broadcast(Event{Type: EventMessage, UserID: "alice"})
	waitWrite(t, alice)
	hub.Broadcast(Event{Type: EventMetrics, Role: models.RoleAdmin})
	waitWrite(t, admin)
	hub.Broadcast(Event{Type: EventInvalidate, Keys: []string{"courses"}})
	waitWrite(t, alice)
	waitWrite(t, bob)
	waitWrite(t, admin)

	assert.Len(t, alice.events(), 2)
	assert.Len(t, bob.events(), 1)
	assert.Len(t, admin.events(), 2)
	assert.Equal(t, EventInvalidate, bob.events()[0].Type)
}

func TestHubDropsBrokenClients(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	broken := newFakeConn()
	broken.fail = true
	hub.Add(broken, "u1", models.RoleTutor)
	remove := hub.Add(newFakeConn(), "u2", models.RoleTutor)

	hub.Broadcast(Event{Type: EventInvalidate})
	waitWrite(t, broken)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	remove()
	assert.Equal(t, 0, hub.Len())
}

func TestStalledClientDoesNotDelayOthers(t *testing.T) {
	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	stalled := newFakeConn()
	stalled.block = make(chan struct{})
	defer close(stalled.block)
	healthy := newFakeConn()
	hub.Add(stalled, "u1", models.RoleStudent)
	hub.Add(healthy, "u2", models.RoleStudent)

	for i := 0; i < 3; i++ {
		hub.Broadcast(Event{Type: EventInvalidate, Keys: []string{"courses"}})
		waitWrite(t, healthy)
	}
	assert.Len(t, healthy.events(), 3)
}

func TestCacheSyncEventsNeverReachClients(t *testing.T) {
	assert.False(t, Event{Type: EventCacheSync}.For("u1", models.RoleAdmin))

	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	conn := newFakeConn()
	hub.Add(conn, "u1", models.RoleAdmin)

	hub.Broadcast(Event{Type: EventCacheSync, Keys: []string{"courses"}, Origin: "other"})
	hub.Broadcast(Event{Type: EventInvalidate, Keys: []string{"stats"}})
	waitWrite(t, conn)
	got := conn.events()
	require.Len(t, got, 1)
	assert.Equal(t, EventInvalidate, got[0].Type)
}

func TestLocalBusForwardsUntilCancelled(t *testing.T) {
	bus := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []Event
	require.NoError(t, bus.StartForwarder(ctx, func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}))

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventInvalidate, Keys: []string{"stats"}}))
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()

	cancel()
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.handlers) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(context.Background(), Event{}))
}
