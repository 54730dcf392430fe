package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
)

func TestInvalidationEventsKeepConversationsPrivate(t *testing.T) {
	events := InvalidationEvents(append(messageWriteKeys("bob", "alice"), keyStats))
	require.Len(t, events, 3)

	assert.Empty(t, events[0].UserID)
	assert.Equal(t, []string{keyStats}, events[0].Keys)
	assert.Equal(t, "alice", events[1].UserID)
	assert.ElementsMatch(t, []string{"messages:alice:bob", "conversations:alice"}, events[1].Keys)
	assert.Equal(t, "bob", events[2].UserID)
	assert.ElementsMatch(t, []string{"messages:alice:bob", "conversations:bob"}, events[2].Keys)

	for _, ev := range events[1:] {
		assert.Equal(t, realtime.EventInvalidate, ev.Type)
		assert.False(t, ev.For("eve", models.RoleStudent), "%v", ev.Keys)
	}
}

func TestInvalidationEventsSharedOnly(t *testing.T) {
	events := InvalidationEvents([]string{keyCourses, "notifications:s1", keyProfiles})
	require.Len(t, events, 2)
	assert.Equal(t, []string{keyCourses, keyProfiles}, events[0].Keys)
	assert.Equal(t, "s1", events[1].UserID)
	assert.Equal(t, []string{"notifications:s1"}, events[1].Keys)

	assert.Empty(t, InvalidationEvents(nil))
}

type eventLog struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (l *eventLog) add(ev realtime.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []realtime.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]realtime.Event(nil), l.events...)
}

type instance struct {
	cache     *cache.Cache
	delivered *eventLog
	announced *int
}

// startInstance wires a cache and relay to bus the way the server does.
func startInstance(t *testing.T, ctx context.Context, bus realtime.Bus) instance {
	t.Helper()
	inst := instance{
		cache:     cache.New(cache.Options{TTL: time.Minute}, nil),
		delivered: &eventLog{},
		announced: new(int),
	}
	inst.cache.OnInvalidate(func([]string) { *inst.announced++ })
	relay := NewInvalidationRelay(inst.cache, bus, nil)
	relay.Start(ctx)
	require.NoError(t, bus.StartForwarder(ctx, relay.Forward(inst.delivered.add)))
	return inst
}

func TestRelayDropsEntriesOnOtherInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := realtime.NewLocalBus()
	t.Cleanup(func() { _ = bus.Close() })
	a := startInstance(t, ctx, bus)
	b := startInstance(t, ctx, bus)

	a.cache.Set("courses:admin", 1)
	b.cache.Set("courses:admin", 1)
	b.cache.Set("stats:admin", 1)

	a.cache.Invalidate(keyCourses)
	assert.True(t, a.cache.Stale("courses:admin"))
	assert.True(t, b.cache.Stale("courses:admin"))
	assert.False(t, b.cache.Stale("stats:admin"))
	assert.Equal(t, 1, *a.announced)
	assert.Zero(t, *b.announced)

	for _, inst := range []instance{a, b} {
		got := inst.delivered.all()
		require.Len(t, got, 1)
		assert.Equal(t, realtime.EventInvalidate, got[0].Type)
		assert.Equal(t, []string{keyCourses}, got[0].Keys)
	}
}

func TestRelayForwardsOtherEventsUntouched(t *testing.T) {
	c := cache.New(cache.Options{TTL: time.Minute}, nil)
	c.Set("stats:admin", 1)
	relay := NewInvalidationRelay(c, realtime.NewLocalBus(), nil)
	got := &eventLog{}
	forward := relay.Forward(got.add)

	forward(realtime.Event{Type: realtime.EventMessage, UserID: "s1"})
	forward(realtime.Event{Type: realtime.EventCacheSync, Keys: []string{keyStats}, Origin: relay.origin})
	assert.False(t, c.Stale("stats:admin"))

	forward(realtime.Event{Type: realtime.EventCacheSync, Keys: []string{keyStats}, Origin: "elsewhere"})
	assert.True(t, c.Stale("stats:admin"))

	events := got.all()
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventMessage, events[0].Type)
}
