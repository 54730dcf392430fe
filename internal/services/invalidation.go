package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/realtime"
)

// Cache keys. Every write invalidates a fixed list of the views embedding the
// written entity.
const (
	keyCourses       = "courses"
	keyCourse        = "course"
	keyStats         = "stats"
	keyStudents      = "students"
	keyAssignments   = "assignments"
	keyAssignment    = "assignment"
	keyEnrollments   = "enrollments"
	keyDocuments     = "documents"
	keySubmissions   = "submissions"
	keyNeedsGrading  = "needs-grading"
	keyRecentGrades  = "recent-grades"
	keyNotifications = "notifications"
	keyMessages      = "messages"
	keyConversations = "conversations"
	keyProfiles      = "profiles"
	keyProfile       = "profile"
)

// courseWriteKeys covers every view that embeds course title, status or
// instructor: assignments, documents and enrolled-course lists carry the title,
// admin notifications list new courses.
func courseWriteKeys(courseID string) []string {
	return []string{
		keyCourses,
		cache.Key(keyCourse, courseID),
		keyStats,
		keyStudents,
		keyAssignments,
		keyAssignment,
		keyDocuments,
		keyEnrollments,
		keyNotifications,
	}
}

func courseDeleteKeys(courseID string) []string {
	return append(courseWriteKeys(courseID),
		keySubmissions,
		keyNeedsGrading,
		keyRecentGrades,
	)
}

func documentWriteKeys(courseID string) []string {
	return []string{cache.Key(keyDocuments, courseID), keyDocuments, cache.Key(keyCourse, courseID), keyNotifications}
}

func enrollmentWriteKeys(courseID string) []string {
	return []string{keyEnrollments, keyCourses, cache.Key(keyCourse, courseID), keyStudents, keyStats, keyNotifications, keyDocuments}
}

func assignmentWriteKeys(assignmentID, courseID string) []string {
	return []string{
		keyAssignments,
		cache.Key(keyAssignment, assignmentID),
		cache.Key(keyCourse, courseID),
		keyNeedsGrading,
		keyNotifications,
		keyStats,
	}
}

func submissionWriteKeys(assignmentID string) []string {
	return []string{
		keySubmissions,
		cache.Key(keyAssignment, assignmentID),
		keyNeedsGrading,
		keyRecentGrades,
		keyNotifications,
		keyStats,
	}
}

func messageWriteKeys(a, b string) []string {
	return []string{pairKey(a, b), cache.Key(keyConversations, a), cache.Key(keyConversations, b)}
}

// profileWriteKeys covers every view that shows a person's name.
func profileWriteKeys(profileID string) []string {
	return []string{
		keyProfiles,
		cache.Key(keyProfile, profileID),
		keyCourses,
		keyCourse,
		keyAssignments,
		keyAssignment,
		keyDocuments,
		keyEnrollments,
		keyStudents,
		keyConversations,
		keySubmissions,
		keyNeedsGrading,
		keyRecentGrades,
		keyNotifications,
	}
}

// pairKey names the conversation between a and b independent of direction.
func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return cache.Key(keyMessages, ids[0], ids[1])
}

// keyOwners returns the users a key is private to, or nil for keys any
// signed-in client may see.
func keyOwners(key string) []string {
	parts := strings.Split(key, ":")
	switch {
	case parts[0] == keyMessages && len(parts) >= 3:
		return []string{parts[1], parts[2]}
	case (parts[0] == keyConversations || parts[0] == keyNotifications) && len(parts) >= 2:
		return []string{parts[1]}
	}
	return nil
}

// InvalidationEvents addresses invalidated keys to their audience. Keys naming
// a conversation or a user's inbox go only to those users; the rest go to
// every client in one event.
func InvalidationEvents(keys []string) []realtime.Event {
	var shared []string
	private := map[string][]string{}
	for _, key := range keys {
		owners := keyOwners(key)
		if owners == nil {
			shared = append(shared, key)
			continue
		}
		for _, id := range owners {
			private[id] = append(private[id], key)
		}
	}
	var out []realtime.Event
	if len(shared) > 0 {
		out = append(out, realtime.Event{Type: realtime.EventInvalidate, Keys: shared})
	}
	users := make([]string, 0, len(private))
	for id := range private {
		users = append(users, id)
	}
	sort.Strings(users)
	for _, id := range users {
		out = append(out, realtime.Event{Type: realtime.EventInvalidate, UserID: id, Keys: private[id]})
	}
	return out
}

// InvalidationRelay publishes local cache invalidations on the bus: once as a
// cache-sync event for the other instances and once per audience for websocket
// clients. Cache-sync events from other instances are applied quietly, so they
// are never announced again.
type InvalidationRelay struct {
	cache  *cache.Cache
	bus    realtime.Bus
	origin string
	log    *logger.Logger
}

func NewInvalidationRelay(c *cache.Cache, bus realtime.Bus, log *logger.Logger) *InvalidationRelay {
	if log == nil {
		log = logger.NewNop()
	}
	return &InvalidationRelay{
		cache:  c,
		bus:    bus,
		origin: uuid.NewString(),
		log:    log.With("component", "InvalidationRelay"),
	}
}

// Start announces every invalidation of the cache until ctx is done.
func (r *InvalidationRelay) Start(ctx context.Context) {
	r.cache.OnInvalidate(func(keys []string) {
		if ctx.Err() != nil {
			return
		}
		events := append([]realtime.Event{{Type: realtime.EventCacheSync, Keys: keys, Origin: r.origin}}, InvalidationEvents(keys)...)
		for _, ev := range events {
			if err := r.bus.Publish(ctx, ev); err != nil {
				r.log.Warn("publish invalidation failed", "type", ev.Type, "error", err)
			}
		}
	})
}

// Forward returns a bus handler that applies cache-sync events and passes every
// other event to deliver.
func (r *InvalidationRelay) Forward(deliver func(realtime.Event)) func(realtime.Event) {
	return func(ev realtime.Event) {
		if ev.Type != realtime.EventCacheSync {
			deliver(ev)
			return
		}
		if ev.Origin != r.origin {
			r.cache.InvalidateQuiet(ev.Keys...)
		}
	}
}
