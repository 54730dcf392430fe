package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
)

type EnrolledCourse struct {
	models.Enrollment
	CourseTitle    string              `json:"course_title"`
	CourseStatus   models.CourseStatus `json:"course_status"`
	InstructorName string              `json:"instructor_name"`
	StatusLabel    string              `json:"status_label"`
}

// StudentSummary aggregates one student's enrollments in the viewer's courses.
type StudentSummary struct {
	StudentID       string     `json:"student_id"`
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	Courses         []string   `json:"courses"`
	AverageProgress int        `json:"average_progress"`
	LastActive      *time.Time `json:"last_active"`
}

type EnrollmentService struct {
	d   Deps
	log *logger.Logger
}

func NewEnrollmentService(d Deps) *EnrollmentService {
	d = d.withDefaults()
	return &EnrollmentService{d: d, log: d.Log.With("service", "EnrollmentService")}
}

// Enroll links a student to a course. Students enroll themselves in visible
// courses; tutors enroll students in their own courses. A dropped enrollment
// is reactivated; any other existing enrollment is a conflict.
func (s *EnrollmentService) Enroll(ctx context.Context, v Viewer, courseID, studentID string) (models.Enrollment, error) {
	c, err := s.d.course(ctx, courseID)
	if err != nil {
		return models.Enrollment{}, err
	}
	switch v.Role {
	case models.RoleStudent:
		if studentID != "" && studentID != v.ID {
			return models.Enrollment{}, ErrForbidden("Students can only enroll themselves")
		}
		if !c.Status.Visible() {
			return models.Enrollment{}, ErrNotFound("Course not found")
		}
		studentID = v.ID
	case models.RoleTutor, models.RoleAdmin:
		if !ownsCourse(v, c) {
			return models.Enrollment{}, ErrForbidden("Not allowed")
		}
		if studentID == "" {
			return models.Enrollment{}, ErrBadRequest("student_id is required")
		}
		p, err := s.d.profile(ctx, studentID)
		if err != nil {
			return models.Enrollment{}, err
		}
		if p.Role != models.RoleStudent {
			return models.Enrollment{}, ErrBadRequest("Only students can be enrolled")
		}
	default:
		return models.Enrollment{}, ErrForbidden("Not allowed")
	}

	existing, err := s.find(ctx, []remote.Filter{remote.Eq("course_id", courseID), remote.Eq("student_id", studentID)})
	if err != nil {
		return models.Enrollment{}, err
	}
	now := s.d.now()
	var out models.Enrollment
	switch {
	case existing != nil && existing.Status != models.EnrollmentDropped:
		return models.Enrollment{}, ErrConflict("Student is already enrolled in this course")
	case existing != nil:
		err = s.d.Store.Update(ctx, models.TableEnrollments, []remote.Filter{remote.Eq("id", existing.ID)}, remote.Values{
			"status":      models.EnrollmentEnrolled,
			"progress":    0,
			"enrolled_at": now,
			"last_active": nil,
		}, &out)
	default:
		err = s.d.Store.Insert(ctx, models.TableEnrollments, remote.Values{
			"id":          uuid.NewString(),
			"course_id":   courseID,
			"student_id":  studentID,
			"status":      models.EnrollmentEnrolled,
			"progress":    0,
			"enrolled_at": now,
		}, &out)
	}
	if errors.Is(err, remote.ErrDuplicate) {
		return models.Enrollment{}, ErrConflict("Student is already enrolled in this course")
	}
	if err != nil {
		s.log.Error("enroll failed", "course_id", courseID, "student_id", studentID, "error", err)
		return models.Enrollment{}, err
	}
	s.afterWrite(ctx, courseID)
	return out, nil
}

// Drop marks an enrollment dropped. The row is kept so progress history survives.
func (s *EnrollmentService) Drop(ctx context.Context, v Viewer, enrollmentID string) (models.Enrollment, error) {
	e, err := s.authorized(ctx, v, enrollmentID)
	if err != nil {
		return models.Enrollment{}, err
	}
	var out models.Enrollment
	err = s.d.Store.Update(ctx, models.TableEnrollments, []remote.Filter{remote.Eq("id", e.ID)},
		remote.Values{"status": models.EnrollmentDropped}, &out)
	if err != nil {
		s.log.Error("drop enrollment failed", "enrollment_id", enrollmentID, "error", err)
		return models.Enrollment{}, notFoundAs(err, "Enrollment not found")
	}
	s.afterWrite(ctx, e.CourseID)
	return out, nil
}

// UpdateProgress records progress in [0, 100]; 100 completes the enrollment.
func (s *EnrollmentService) UpdateProgress(ctx context.Context, v Viewer, enrollmentID string, progress int) (models.Enrollment, error) {
	if progress < 0 || progress > 100 {
		return models.Enrollment{}, ErrBadRequest("progress must be between 0 and 100")
	}
	e, err := s.authorized(ctx, v, enrollmentID)
	if err != nil {
		return models.Enrollment{}, err
	}
	if e.Status == models.EnrollmentDropped {
		return models.Enrollment{}, ErrConflict("Enrollment was dropped")
	}
	status := models.EnrollmentEnrolled
	if progress == 100 {
		status = models.EnrollmentCompleted
	}
	var out models.Enrollment
	err = s.d.Store.Update(ctx, models.TableEnrollments, []remote.Filter{remote.Eq("id", e.ID)}, remote.Values{
		"progress":    progress,
		"status":      status,
		"last_active": s.d.now(),
	}, &out)
	if err != nil {
		s.log.Error("update progress failed", "enrollment_id", enrollmentID, "error", err)
		return models.Enrollment{}, notFoundAs(err, "Enrollment not found")
	}
	s.afterWrite(ctx, e.CourseID)
	return out, nil
}

// Enrolled lists the courses a student has not dropped.
func (s *EnrollmentService) Enrolled(ctx context.Context, v Viewer) ([]EnrolledCourse, error) {
	if !v.IsStudent() {
		return nil, ErrForbidden("Only students have enrollments")
	}
	return cache.Get(ctx, s.d.Cache, cache.Key(keyEnrollments, v.scope()), func(ctx context.Context) ([]EnrolledCourse, error) {
		var rows []models.Enrollment
		err := s.d.Store.Select(ctx, remote.Query{
			Table: models.TableEnrollments,
			Filters: []remote.Filter{
				remote.Eq("student_id", v.ID),
				remote.Neq("status", models.EnrollmentDropped),
			},
			Order: []remote.Order{remote.Desc("enrolled_at")},
		}, &rows)
		if err != nil {
			s.log.Error("list enrollments failed", "error", err)
			return nil, err
		}
		courseIDs := make([]string, 0, len(rows))
		for _, e := range rows {
			courseIDs = append(courseIDs, e.CourseID)
		}
		var courses []models.Course
		if len(courseIDs) > 0 {
			if err := s.d.Store.Select(ctx, remote.Query{
				Table:   models.TableCourses,
				Filters: []remote.Filter{remote.In("id", courseIDs)},
			}, &courses); err != nil {
				s.log.Warn("course lookup degraded", "error", err)
			}
		}
		byID := make(map[string]models.Course, len(courses))
		instructorIDs := make([]string, 0, len(courses))
		for _, c := range courses {
			byID[c.ID] = c
			instructorIDs = append(instructorIDs, c.InstructorID)
		}
		names := s.d.profileNames(ctx, instructorIDs)
		out := make([]EnrolledCourse, 0, len(rows))
		for _, e := range rows {
			view := EnrolledCourse{
				Enrollment:     e,
				CourseTitle:    UnknownRef,
				InstructorName: UnknownName,
				StatusLabel:    e.Status.Label(),
			}
			if c, ok := byID[e.CourseID]; ok {
				view.CourseTitle = c.Title
				view.CourseStatus = c.Status
				view.InstructorName = nameOr(names, c.InstructorID, UnknownName)
			}
			out = append(out, view)
		}
		return out, nil
	})
}

// Students lists the distinct students enrolled in the viewer's courses, or in
// every course for an admin.
func (s *EnrollmentService) Students(ctx context.Context, v Viewer) ([]StudentSummary, error) {
	if !v.IsTutor() && !v.IsAdmin() {
		return nil, ErrForbidden("Not allowed")
	}
	return cache.Get(ctx, s.d.Cache, cache.Key(keyStudents, v.scope()), func(ctx context.Context) ([]StudentSummary, error) {
		q := remote.Query{Table: models.TableCourses, Columns: []string{"id", "title"}}
		if v.IsTutor() {
			q.Filters = []remote.Filter{remote.Eq("instructor_id", v.ID)}
		}
		var courses []models.Course
		if err := s.d.Store.Select(ctx, q, &courses); err != nil {
			s.log.Error("list tutor courses failed", "error", err)
			return nil, err
		}
		titles := make(map[string]string, len(courses))
		courseIDs := make([]string, 0, len(courses))
		for _, c := range courses {
			titles[c.ID] = c.Title
			courseIDs = append(courseIDs, c.ID)
		}
		var rows []models.Enrollment
		err := s.d.Store.Select(ctx, remote.Query{
			Table: models.TableEnrollments,
			Filters: []remote.Filter{
				remote.In("course_id", courseIDs),
				remote.Neq("status", models.EnrollmentDropped),
			},
		}, &rows)
		if err != nil {
			s.log.Error("list enrollments failed", "error", err)
			return nil, err
		}
		return s.summarize(ctx, rows, titles), nil
	})
}

func (s *EnrollmentService) summarize(ctx context.Context, rows []models.Enrollment, titles map[string]string) []StudentSummary {
	type acc struct {
		summary StudentSummary
		total   int
	}
	byStudent := map[string]*acc{}
	order := []string{}
	for _, e := range rows {
		a, ok := byStudent[e.StudentID]
		if !ok {
			a = &acc{summary: StudentSummary{StudentID: e.StudentID}}
			byStudent[e.StudentID] = a
			order = append(order, e.StudentID)
		}
		a.summary.Courses = append(a.summary.Courses, nameOr(titles, e.CourseID, UnknownRef))
		a.total += e.Progress
		if e.LastActive != nil && (a.summary.LastActive == nil || e.LastActive.After(*a.summary.LastActive)) {
			last := *e.LastActive
			a.summary.LastActive = &last
		}
	}

	var profiles []models.Profile
	if len(order) > 0 {
		if err := s.d.Store.Select(ctx, remote.Query{
			Table:   models.TableProfiles,
			Columns: []string{"id", "full_name", "email"},
			Filters: []remote.Filter{remote.In("id", order)},
		}, &profiles); err != nil {
			s.log.Warn("student lookup degraded", "error", err)
		}
	}
	byID := make(map[string]models.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	out := make([]StudentSummary, 0, len(order))
	for _, id := range order {
		a := byStudent[id]
		a.summary.AverageProgress = a.total / len(a.summary.Courses)
		a.summary.FullName = UnknownName
		if p, ok := byID[id]; ok {
			a.summary.FullName = p.FullName
			a.summary.Email = p.Email
		}
		sort.Strings(a.summary.Courses)
		out = append(out, a.summary)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

func (s *EnrollmentService) authorized(ctx context.Context, v Viewer, enrollmentID string) (models.Enrollment, error) {
	e, err := s.find(ctx, []remote.Filter{remote.Eq("id", enrollmentID)})
	if err != nil {
		return models.Enrollment{}, err
	}
	if e == nil {
		return models.Enrollment{}, ErrNotFound("Enrollment not found")
	}
	if v.IsStudent() && e.StudentID == v.ID {
		return *e, nil
	}
	if v.IsTutor() || v.IsAdmin() {
		c, err := s.d.course(ctx, e.CourseID)
		if err != nil {
			return models.Enrollment{}, err
		}
		if ownsCourse(v, c) {
			return *e, nil
		}
	}
	return models.Enrollment{}, ErrForbidden("Not allowed")
}

func (s *EnrollmentService) find(ctx context.Context, filters []remote.Filter) (*models.Enrollment, error) {
	var rows []models.Enrollment
	if err := s.d.Store.Select(ctx, remote.Query{Table: models.TableEnrollments, Filters: filters, Limit: 1}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// afterWrite recomputes the denormalized students_count and invalidates.
func (s *EnrollmentService) afterWrite(ctx context.Context, courseID string) {
	defer s.d.Cache.Invalidate(enrollmentWriteKeys(courseID)...)
	n, err := s.d.Store.Count(ctx, models.TableEnrollments,
		remote.Eq("course_id", courseID),
		remote.Neq("status", models.EnrollmentDropped),
	)
	if err != nil {
		s.log.Warn("count enrollments failed", "course_id", courseID, "error", err)
		return
	}
	err = s.d.Store.Update(ctx, models.TableCourses, []remote.Filter{remote.Eq("id", courseID)},
		remote.Values{"students_count": n}, nil)
	if err != nil {
		s.log.Warn("update students_count failed", "course_id", courseID, "error", err)
	}
}
