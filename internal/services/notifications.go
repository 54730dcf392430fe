package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/loader"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/readstate"
	"lms-dashboard-go/internal/remote"
)

// Notification is synthesized from recent rows; it is never stored. ID is
// "<kind>-<row id>" so read state survives resynthesis.
type Notification struct {
	ID        string                  `json:"id"`
	Kind      models.NotificationKind `json:"kind"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Link      string                  `json:"link,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	Read      bool                    `json:"read"`
}

type NotificationService struct {
	d      Deps
	reads  readstate.Store
	window time.Duration
	log    *logger.Logger
}

func NewNotificationService(d Deps, reads readstate.Store, windowDays int) *NotificationService {
	d = d.withDefaults()
	if reads == nil {
		reads = readstate.NewMemory()
	}
	if windowDays <= 0 {
		windowDays = 30
	}
	return &NotificationService{
		d:      d,
		reads:  reads,
		window: time.Duration(windowDays) * 24 * time.Hour,
		log:    d.Log.With("service", "NotificationService"),
	}
}

func notificationID(kind models.NotificationKind, rowID string) string {
	return string(kind) + "-" + rowID
}

// List returns the viewer's notifications newest first with read flags applied.
func (s *NotificationService) List(ctx context.Context, v Viewer) ([]Notification, error) {
	items, err := cache.Get(ctx, s.d.Cache, cache.Key(keyNotifications, v.ID), func(ctx context.Context) ([]Notification, error) {
		return s.synthesize(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	read, err := s.reads.ReadIDs(ctx, v.ID)
	if err != nil {
		s.log.Warn("read state unavailable", "error", err)
		read = map[string]bool{}
	}
	out := make([]Notification, len(items))
	for i, n := range items {
		n.Read = read[n.ID]
		out[i] = n
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, v Viewer, ids ...string) error {
	ids = loader.Unique(ids)
	if len(ids) == 0 {
		return nil
	}
	return s.reads.MarkRead(ctx, v.ID, ids...)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, v Viewer) error {
	items, err := s.List(ctx, v)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(items))
	for _, n := range items {
		if !n.Read {
			ids = append(ids, n.ID)
		}
	}
	return s.MarkRead(ctx, v, ids...)
}

func (s *NotificationService) UnreadCount(ctx context.Context, v Viewer) (int, error) {
	items, err := s.List(ctx, v)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

func (s *NotificationService) synthesize(ctx context.Context, v Viewer) ([]Notification, error) {
	since := s.d.now().Add(-s.window)
	var (
		out []Notification
		err error
	)
	switch v.Role {
	case models.RoleTutor:
		out, err = s.submissionsFor(ctx, v, since)
	case models.RoleStudent:
		out, err = s.studentFeed(ctx, v, since)
	case models.RoleAdmin:
		out, err = s.newCourses(ctx, since)
	default:
		return nil, ErrForbidden("Not allowed")
	}
	if err != nil {
		s.log.Error("synthesize notifications failed", "role", v.Role, "error", err)
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

func (s *NotificationService) submissionsFor(ctx context.Context, v Viewer, since time.Time) ([]Notification, error) {
	var assignments []models.Assignment
	err := s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableAssignments,
		Columns: []string{"id", "title", "created_by"},
		Filters: []remote.Filter{remote.Eq("created_by", v.ID)},
	}, &assignments)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(assignments))
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		titles[a.ID] = a.Title
		ids = append(ids, a.ID)
	}
	var subs []models.Submission
	err = s.d.Store.Select(ctx, remote.Query{
		Table: models.TableSubmissions,
		Filters: []remote.Filter{
			remote.In("assignment_id", ids),
			remote.Gte("submitted_at", since),
		},
	}, &subs)
	if err != nil {
		return nil, err
	}
	studentIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		studentIDs = append(studentIDs, sub.StudentID)
	}
	names := s.d.profileNames(ctx, studentIDs)
	out := make([]Notification, 0, len(subs))
	for _, sub := range subs {
		out = append(out, Notification{
			ID:        notificationID(models.NotificationSubmission, sub.ID),
			Kind:      models.NotificationSubmission,
			Title:     models.NotificationSubmission.Label(),
			Message:   fmt.Sprintf("%s submitted %s", nameOr(names, sub.StudentID, UnknownName), nameOr(titles, sub.AssignmentID, UnknownRef)),
			Link:      "/assignments/" + sub.AssignmentID,
			CreatedAt: sub.SubmittedAt,
		})
	}
	return out, nil
}

// studentFeed merges grades, published assignments and documents of enrolled
// courses. A failed source is logged and left out.
func (s *NotificationService) studentFeed(ctx context.Context, v Viewer, since time.Time) ([]Notification, error) {
	courseIDs, err := s.d.enrolledCourseIDs(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	titles := s.d.courseTitles(ctx, courseIDs)

	var (
		mu  sync.Mutex
		out []Notification
	)
	add := func(items ...Notification) {
		mu.Lock()
		out = append(out, items...)
		mu.Unlock()
	}
	err = loader.All(ctx,
		func(ctx context.Context) error {
			var subs []models.Submission
			err := s.d.Store.Select(ctx, remote.Query{
				Table: models.TableSubmissions,
				Filters: []remote.Filter{
					remote.Eq("student_id", v.ID),
					remote.Eq("status", models.SubmissionGraded),
					remote.Gte("graded_at", since),
				},
			}, &subs)
			if err != nil {
				return fmt.Errorf("grades: %w", err)
			}
			assignmentIDs := make([]string, 0, len(subs))
			for _, sub := range subs {
				assignmentIDs = append(assignmentIDs, sub.AssignmentID)
			}
			byID, lerr := loader.Load(ctx, assignmentIDs, func(a models.Assignment) string { return a.ID },
				func(ctx context.Context, batch []string) ([]models.Assignment, error) {
					var rows []models.Assignment
					err := s.d.Store.Select(ctx, remote.Query{
						Table:   models.TableAssignments,
						Filters: []remote.Filter{remote.In("id", batch)},
					}, &rows)
					return rows, err
				})
			if lerr != nil {
				s.log.Warn("assignment lookup degraded", "error", lerr)
			}
			for _, sub := range subs {
				a, ok := byID[sub.AssignmentID]
				if !ok {
					a = models.Assignment{Title: UnknownRef}
				}
				at := sub.SubmittedAt
				if sub.GradedAt != nil {
					at = *sub.GradedAt
				}
				grade := ""
				if sub.Grade != nil {
					grade = " " + FormatGrade(*sub.Grade, a.MaxScore)
				}
				add(Notification{
					ID:        notificationID(models.NotificationGrade, sub.ID),
					Kind:      models.NotificationGrade,
					Title:     models.NotificationGrade.Label(),
					Message:   fmt.Sprintf("%s was graded%s", a.Title, grade),
					Link:      "/assignments/" + sub.AssignmentID,
					CreatedAt: at,
				})
			}
			return nil
		},
		func(ctx context.Context) error {
			var rows []models.Assignment
			err := s.d.Store.Select(ctx, remote.Query{
				Table: models.TableAssignments,
				Filters: []remote.Filter{
					remote.In("course_id", courseIDs),
					remote.Eq("assignment_status", models.AssignmentPublished),
					remote.Gte("created_at", since),
				},
			}, &rows)
			if err != nil {
				return fmt.Errorf("assignments: %w", err)
			}
			for _, a := range rows {
				add(Notification{
					ID:        notificationID(models.NotificationAssignment, a.ID),
					Kind:      models.NotificationAssignment,
					Title:     models.NotificationAssignment.Label(),
					Message:   fmt.Sprintf("%s in %s", a.Title, nameOr(titles, a.CourseID, UnknownRef)),
					Link:      "/assignments/" + a.ID,
					CreatedAt: a.CreatedAt,
				})
			}
			return nil
		},
		func(ctx context.Context) error {
			var rows []models.CourseDocument
			err := s.d.Store.Select(ctx, remote.Query{
				Table: models.TableCourseDocuments,
				Filters: []remote.Filter{
					remote.In("course_id", courseIDs),
					remote.Gte("created_at", since),
				},
			}, &rows)
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			for _, doc := range rows {
				add(Notification{
					ID:        notificationID(models.NotificationDocument, doc.ID),
					Kind:      models.NotificationDocument,
					Title:     models.NotificationDocument.Label(),
					Message:   fmt.Sprintf("%s in %s", doc.Title, nameOr(titles, doc.CourseID, UnknownRef)),
					Link:      "/courses/" + doc.CourseID,
					CreatedAt: doc.CreatedAt,
				})
			}
			return nil
		},
	)
	if err != nil {
		s.log.Warn("notification feed degraded", "error", err)
	}
	return out, nil
}

func (s *NotificationService) newCourses(ctx context.Context, since time.Time) ([]Notification, error) {
	var rows []models.Course
	err := s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableCourses,
		Filters: []remote.Filter{remote.Gte("created_at", since)},
	}, &rows)
	if err != nil {
		return nil, err
	}
	instructorIDs := make([]string, 0, len(rows))
	for _, c := range rows {
		instructorIDs = append(instructorIDs, c.InstructorID)
	}
	names := s.d.profileNames(ctx, instructorIDs)
	out := make([]Notification, 0, len(rows))
	for _, c := range rows {
		out = append(out, Notification{
			ID:        notificationID(models.NotificationCourse, c.ID),
			Kind:      models.NotificationCourse,
			Title:     models.NotificationCourse.Label(),
			Message:   fmt.Sprintf("%s created by %s", c.Title, nameOr(names, c.InstructorID, UnknownName)),
			Link:      "/courses/" + c.ID,
			CreatedAt: c.CreatedAt,
		})
	}
	return out, nil
}
