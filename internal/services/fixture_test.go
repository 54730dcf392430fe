package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
	"lms-dashboard-go/internal/remote"
	"lms-dashboard-go/internal/remote/memstore"
)

var errUnavailable = errors.New("remote unavailable")

type fixture struct {
	store *memstore.Store
	deps  Deps
	bus   *realtime.LocalBus

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New().
		Unique(models.TableEnrollments, "course_id", "student_id").
		Unique(models.TableSubmissions, "assignment_id", "student_id")
	f := &fixture{
		store: store,
		bus:   realtime.NewLocalBus(),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.deps = Deps{
		Store:  store,
		Cache:  cache.New(cache.Options{TTL: time.Minute, Permanent: IsPermanent}, nil),
		Events: f.bus,
		Now:    f.clock,
	}
	t.Cleanup(func() { _ = f.bus.Close() })
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) user(t *testing.T, id, name string, role models.Role) Viewer {
	t.Helper()
	err := f.store.Insert(context.Background(), models.TableProfiles, remote.Values{
		"id":         id,
		"full_name":  name,
		"email":      id + "@example.com",
		"role":       role,
		"created_at": f.clock(),
		"updated_at": f.clock(),
	}, nil)
	require.NoError(t, err)
	return Viewer{ID: id, Role: role}
}

func (f *fixture) count(t *testing.T, table string, filters ...remote.Filter) int {
	t.Helper()
	n, err := f.store.Count(context.Background(), table, filters...)
	require.NoError(t, err)
	return n
}

// faultyStore fails reads of failSelect tables and deletes of failDelete tables.
type faultyStore struct {
	remote.Store
	failSelect map[string]bool
	failDelete map[string]bool
}

func (s faultyStore) Select(ctx context.Context, q remote.Query, dest any) error {
	if s.failSelect[q.Table] {
		return errUnavailable
	}
	return s.Store.Select(ctx, q, dest)
}

func (s faultyStore) Delete(ctx context.Context, table string, filters ...remote.Filter) error {
	if s.failDelete[table] {
		return errUnavailable
	}
	return s.Store.Delete(ctx, table, filters...)
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := AsServiceError(err)
	require.True(t, ok, "expected ServiceError, got %v", err)
	require.Equal(t, status, svcErr.Status, svcErr.Message)
}
