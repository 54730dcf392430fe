package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
	"lms-dashboard-go/internal/remote/memstore"
	"lms-dashboard-go/internal/services"
)

var errOffline = errors.New("offline")

// countingBackend wraps a MessageService, counting mark-read writes and
// optionally failing sends.
type countingBackend struct {
	*services.MessageService
	marks    atomic.Int32
	failSend bool
	onSend   func(models.Message)
}

func (b *countingBackend) MarkRead(ctx context.Context, v services.Viewer, fromID string) (int, error) {
	b.marks.Add(1)
	return b.MessageService.MarkRead(ctx, v, fromID)
}

func (b *countingBackend) Send(ctx context.Context, v services.Viewer, in services.SendInput) (models.Message, error) {
	if b.failSend {
		return models.Message{}, errOffline
	}
	msg, err := b.MessageService.Send(ctx, v, in)
	if err == nil && b.onSend != nil {
		b.onSend(msg)
	}
	return msg, err
}

var (
	alice = services.Viewer{ID: "alice", Role: models.RoleStudent}
	bob   = services.Viewer{ID: "bob", Role: models.RoleTutor}
	carol = services.Viewer{ID: "carol", Role: models.RoleTutor}
)

func newBackend(t *testing.T) *countingBackend {
	t.Helper()
	store := memstore.New()
	for _, v := range []services.Viewer{alice, bob, carol} {
		require.NoError(t, store.Insert(context.Background(), models.TableProfiles, remote.Values{
			"id": v.ID, "full_name": v.ID, "email": v.ID + "@example.com", "role": v.Role,
		}, nil))
	}
	var tick atomic.Int64
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	deps := services.Deps{
		Store: store,
		Now:   func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Second) },
	}
	return &countingBackend{MessageService: services.NewMessageService(deps, 10)}
}

func seed(t *testing.T, b *countingBackend, from, to services.Viewer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := b.MessageService.Send(context.Background(), from, services.SendInput{ReceiverID: to.ID, Content: fmt.Sprintf("%s-%d", from.ID, i)})
		require.NoError(t, err)
	}
}

func assertOrdered(t *testing.T, entries []Entry) {
	t.Helper()
	seen := map[string]bool{}
	for i, e := range entries {
		assert.False(t, seen[e.ID], "duplicate %s", e.ID)
		seen[e.ID] = true
		if i > 0 {
			assert.False(t, e.CreatedAt.Before(entries[i-1].CreatedAt), "out of order at %d", i)
		}
	}
}

func TestLoadOlderKeepsOrderWithoutDuplicates(t *testing.T) {
	b := newBackend(t)
	seed(t, b, bob, alice, 25)
	w := NewWindow(b, alice, 10, nil)
	ctx := context.Background()

	require.NoError(t, w.Open(ctx, bob.ID))
	assert.Len(t, w.Messages(), 10)
	assert.True(t, w.HasMore())

	// A message arriving between pages shifts server offsets by one.
	msg, err := b.MessageService.Send(ctx, bob, services.SendInput{ReceiverID: alice.ID, Content: "live"})
	require.NoError(t, err)
	require.NoError(t, w.Receive(msg))

	for w.HasMore() {
		_, err := w.LoadOlder()
		require.NoError(t, err)
		assertOrdered(t, w.Messages())
	}
	entries := w.Messages()
	require.Len(t, entries, 26)
	assert.Equal(t, "bob-0", entries[0].Content)
	assert.Equal(t, "live", entries[25].Content)

	n, err := w.LoadOlder()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReopenAfterMissedPageReloadsWithoutGap(t *testing.T) {
	b := newBackend(t)
	seed(t, b, bob, alice, 10)
	w := NewWindow(b, alice, 10, nil)
	ctx := context.Background()
	require.NoError(t, w.Open(ctx, bob.ID))
	require.Len(t, w.Messages(), 10)

	// More than a page arrives while nothing is delivered to the window.
	for i := 0; i < 15; i++ {
		_, err := b.MessageService.Send(ctx, bob, services.SendInput{ReceiverID: alice.ID, Content: fmt.Sprintf("later-%d", i)})
		require.NoError(t, err)
	}
	require.NoError(t, w.Open(ctx, bob.ID))
	entries := w.Messages()
	require.Len(t, entries, 10)
	assert.Equal(t, "later-5", entries[0].Content)

	for i := 0; i < 5 && w.HasMore(); i++ {
		n, err := w.LoadOlder()
		require.NoError(t, err)
		assert.Positive(t, n)
	}
	assert.False(t, w.HasMore())
	entries = w.Messages()
	require.Len(t, entries, 25)
	assertOrdered(t, entries)
	assert.Equal(t, "bob-0", entries[0].Content)
	assert.Equal(t, "later-14", entries[24].Content)
}

func TestOptimisticSendRollsBackOnFailure(t *testing.T) {
	b := newBackend(t)
	seed(t, b, bob, alice, 2)
	w := NewWindow(b, alice, 10, nil)
	require.NoError(t, w.Open(context.Background(), bob.ID))

	b.failSend = true
	_, err := w.Send("hello")
	assert.ErrorIs(t, err, errOffline)
	assert.Equal(t, "hello", w.Draft())
	for _, e := range w.Messages() {
		assert.Nil(t, e.Pending)
		assert.NotEqual(t, "hello", e.Content)
	}
	assert.Len(t, w.Messages(), 2)

	b.failSend = false
	msg, err := w.Send(w.Draft())
	require.NoError(t, err)
	assert.Empty(t, w.Draft())
	entries := w.Messages()
	require.Len(t, entries, 3)
	assert.Equal(t, msg.ID, entries[2].ID)
	assert.Nil(t, entries[2].Pending)

	_, err = w.Send("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendDoesNotDuplicateEchoedMessage(t *testing.T) {
	b := newBackend(t)
	w := NewWindow(b, alice, 10, nil)
	require.NoError(t, w.Open(context.Background(), bob.ID))
	b.onSend = func(m models.Message) { require.NoError(t, w.Receive(m)) }

	msg, err := w.Send("hi bob")
	require.NoError(t, err)
	entries := w.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, msg.ID, entries[0].ID)
	assert.Nil(t, entries[0].Pending)
}

func TestMarkReadFiresOncePerUnreadBatch(t *testing.T) {
	b := newBackend(t)
	seed(t, b, bob, alice, 3)
	seed(t, b, alice, carol, 1)
	w := NewWindow(b, alice, 10, nil)
	ctx := context.Background()

	require.NoError(t, w.Open(ctx, bob.ID))
	assert.Equal(t, int32(1), b.marks.Load())
	for _, e := range w.Messages() {
		assert.True(t, e.IsRead)
	}
	require.NoError(t, w.Open(ctx, bob.ID))
	require.NoError(t, w.Open(ctx, carol.ID))
	require.NoError(t, w.Open(ctx, bob.ID))
	assert.Equal(t, int32(1), b.marks.Load())

	unread, err := b.UnreadTotal(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, unread)

	msg, err := b.MessageService.Send(ctx, bob, services.SendInput{ReceiverID: alice.ID, Content: "new"})
	require.NoError(t, err)
	require.NoError(t, w.Receive(msg))
	assert.Equal(t, int32(2), b.marks.Load())

	other, err := b.MessageService.Send(ctx, carol, services.SendInput{ReceiverID: alice.ID, Content: "elsewhere"})
	require.NoError(t, err)
	require.NoError(t, w.Receive(other))
	assert.Equal(t, int32(2), b.marks.Load())
	assert.Len(t, w.Messages(), 4)
}

// blockingBackend holds History until release is closed.
type blockingBackend struct {
	Backend
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBackend) History(ctx context.Context, v services.Viewer, otherID string, offset, limit int) (services.MessagePage, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return services.MessagePage{Messages: []models.Message{{ID: "late", SenderID: otherID, ReceiverID: v.ID}}, Total: 1}, nil
}

func TestCloseDiscardsLateResults(t *testing.T) {
	b := &blockingBackend{Backend: newBackend(t), started: make(chan struct{}), release: make(chan struct{})}
	w := NewWindow(b, alice, 10, nil)
	done := make(chan error, 1)
	go func() { done <- w.Open(context.Background(), bob.ID) }()

	<-b.started
	w.Close()
	close(b.release)
	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Empty(t, w.Messages())
	assert.Empty(t, w.Partner())

	_, err := w.LoadOlder()
	assert.ErrorIs(t, err, ErrNotOpen)
}
