package services

import (
	"context"
	"sync"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/loader"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
)

// StatsSummary holds the dashboard counters for one role. Counts are keyed by
// name, e.g. "courses" or "needs_grading".
type StatsSummary struct {
	Role   models.Role    `json:"role"`
	Counts map[string]int `json:"counts"`
}

type StatsService struct {
	d   Deps
	log *logger.Logger
}

func NewStatsService(d Deps) *StatsService {
	d = d.withDefaults()
	return &StatsService{d: d, log: d.Log.With("service", "StatsService")}
}

type counter struct {
	name    string
	table   string
	filters []remote.Filter
}

func (s *StatsService) Summary(ctx context.Context, v Viewer) (StatsSummary, error) {
	return cache.Get(ctx, s.d.Cache, cache.Key(keyStats, v.scope()), func(ctx context.Context) (StatsSummary, error) {
		counters, err := s.counters(ctx, v)
		if err != nil {
			return StatsSummary{}, err
		}
		summary := StatsSummary{Role: v.Role, Counts: make(map[string]int, len(counters))}
		var mu sync.Mutex
		fns := make([]func(context.Context) error, 0, len(counters))
		for _, c := range counters {
			fns = append(fns, func(ctx context.Context) error {
				n, err := s.d.Store.Count(ctx, c.table, c.filters...)
				if err != nil {
					return err
				}
				mu.Lock()
				summary.Counts[c.name] = n
				mu.Unlock()
				return nil
			})
		}
		if err := loader.All(ctx, fns...); err != nil {
			s.log.Error("count stats failed", "role", v.Role, "error", err)
			return StatsSummary{}, err
		}
		return summary, nil
	})
}

func (s *StatsService) counters(ctx context.Context, v Viewer) ([]counter, error) {
	pending := remote.In("status", []models.SubmissionStatus{models.SubmissionSubmitted, models.SubmissionLate})
	notDropped := remote.Neq("status", models.EnrollmentDropped)
	switch v.Role {
	case models.RoleAdmin:
		return []counter{
			{name: "users", table: models.TableProfiles},
			{name: "students", table: models.TableProfiles, filters: []remote.Filter{remote.Eq("role", models.RoleStudent)}},
			{name: "tutors", table: models.TableProfiles, filters: []remote.Filter{remote.Eq("role", models.RoleTutor)}},
			{name: "courses", table: models.TableCourses},
			{name: "active_courses", table: models.TableCourses, filters: []remote.Filter{remote.In("status", models.VisibleCourseStatuses)}},
			{name: "enrollments", table: models.TableEnrollments, filters: []remote.Filter{notDropped}},
			{name: "assignments", table: models.TableAssignments},
			{name: "needs_grading", table: models.TableSubmissions, filters: []remote.Filter{pending}},
		}, nil
	case models.RoleTutor:
		courseIDs, assignmentIDs, err := s.tutorScope(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		return []counter{
			{name: "courses", table: models.TableCourses, filters: []remote.Filter{remote.Eq("instructor_id", v.ID)}},
			{name: "enrollments", table: models.TableEnrollments, filters: []remote.Filter{remote.In("course_id", courseIDs), notDropped}},
			{name: "assignments", table: models.TableAssignments, filters: []remote.Filter{remote.Eq("created_by", v.ID)}},
			{name: "needs_grading", table: models.TableSubmissions, filters: []remote.Filter{remote.In("assignment_id", assignmentIDs), pending}},
		}, nil
	case models.RoleStudent:
		courseIDs, err := s.d.enrolledCourseIDs(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		return []counter{
			{name: "courses", table: models.TableEnrollments, filters: []remote.Filter{remote.Eq("student_id", v.ID), notDropped}},
			{name: "completed_courses", table: models.TableEnrollments, filters: []remote.Filter{remote.Eq("student_id", v.ID), remote.Eq("status", models.EnrollmentCompleted)}},
			{name: "assignments", table: models.TableAssignments, filters: []remote.Filter{remote.In("course_id", courseIDs), remote.Eq("assignment_status", models.AssignmentPublished)}},
			{name: "submissions", table: models.TableSubmissions, filters: []remote.Filter{remote.Eq("student_id", v.ID)}},
			{name: "graded", table: models.TableSubmissions, filters: []remote.Filter{remote.Eq("student_id", v.ID), remote.Eq("status", models.SubmissionGraded)}},
		}, nil
	}
	return nil, ErrForbidden("Not allowed")
}

func (s *StatsService) tutorScope(ctx context.Context, tutorID string) (courseIDs, assignmentIDs []string, err error) {
	err = loader.All(ctx,
		func(ctx context.Context) error {
			var rows []models.Course
			if err := s.d.Store.Select(ctx, remote.Query{
				Table:   models.TableCourses,
				Columns: []string{"id"},
				Filters: []remote.Filter{remote.Eq("instructor_id", tutorID)},
			}, &rows); err != nil {
				return err
			}
			for _, c := range rows {
				courseIDs = append(courseIDs, c.ID)
			}
			return nil
		},
		func(ctx context.Context) error {
			var rows []models.Assignment
			if err := s.d.Store.Select(ctx, remote.Query{
				Table:   models.TableAssignments,
				Columns: []string{"id"},
				Filters: []remote.Filter{remote.Eq("created_by", tutorID)},
			}, &rows); err != nil {
				return err
			}
			for _, a := range rows {
				assignmentIDs = append(assignmentIDs, a.ID)
			}
			return nil
		},
	)
	return courseIDs, assignmentIDs, err
}
