package services

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/loader"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
	"lms-dashboard-go/internal/storage"
)

type CourseView struct {
	models.Course
	InstructorName string `json:"instructor_name"`
	StatusLabel    string `json:"status_label"`
}

type CourseInput struct {
	Title        string              `json:"title" validate:"required,min=3,max=200"`
	Description  string              `json:"description" validate:"max=5000"`
	Status       models.CourseStatus `json:"status" validate:"omitempty,course_status"`
	LessonsCount int                 `json:"lessons_count" validate:"gte=0,lte=1000"`
	// InstructorID lets an admin create a course on behalf of a tutor.
	InstructorID string `json:"instructor_id" validate:"omitempty,max=64"`
}

type CoursePatch struct {
	Title        *string              `json:"title" validate:"omitempty,min=3,max=200"`
	Description  *string              `json:"description" validate:"omitempty,max=5000"`
	Status       *models.CourseStatus `json:"status" validate:"omitempty,course_status"`
	LessonsCount *int                 `json:"lessons_count" validate:"omitempty,gte=0,lte=1000"`
}

type CourseService struct {
	d   Deps
	log *logger.Logger
}

func NewCourseService(d Deps) *CourseService {
	d = d.withDefaults()
	return &CourseService{d: d, log: d.Log.With("service", "CourseService")}
}

// List returns the courses v may see: tutors their own in any status, students
// the active and published ones, admins everything.
func (s *CourseService) List(ctx context.Context, v Viewer) ([]CourseView, error) {
	key := cache.Key(keyCourses, v.scope())
	return cache.Get(ctx, s.d.Cache, key, func(ctx context.Context) ([]CourseView, error) {
		q := remote.Query{Table: models.TableCourses, Order: []remote.Order{remote.Desc("created_at")}}
		switch v.Role {
		case models.RoleTutor:
			q.Filters = []remote.Filter{remote.Eq("instructor_id", v.ID)}
		case models.RoleStudent:
			q.Filters = []remote.Filter{remote.In("status", models.VisibleCourseStatuses)}
		case models.RoleAdmin:
		default:
			return nil, ErrForbidden("Not allowed")
		}
		var rows []models.Course
		if err := s.d.Store.Select(ctx, q, &rows); err != nil {
			s.log.Error("list courses failed", "error", err)
			return nil, err
		}
		return s.decorate(ctx, rows), nil
	})
}

func (s *CourseService) decorate(ctx context.Context, rows []models.Course) []CourseView {
	ids := make([]string, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.InstructorID)
	}
	names := s.d.profileNames(ctx, ids)
	out := make([]CourseView, 0, len(rows))
	for _, c := range rows {
		out = append(out, CourseView{
			Course:         c,
			InstructorName: nameOr(names, c.InstructorID, UnknownName),
			StatusLabel:    c.Status.Label(),
		})
	}
	return out
}

// Get returns one course. Courses hidden from a student read as not found.
func (s *CourseService) Get(ctx context.Context, v Viewer, id string) (CourseView, error) {
	view, err := cache.Get(ctx, s.d.Cache, cache.Key(keyCourse, id), func(ctx context.Context) (CourseView, error) {
		c, err := s.d.course(ctx, id)
		if err != nil {
			return CourseView{}, err
		}
		return s.decorate(ctx, []models.Course{c})[0], nil
	})
	if err != nil {
		return CourseView{}, err
	}
	if !canViewCourse(v, view.Course) {
		return CourseView{}, ErrNotFound("Course not found")
	}
	return view, nil
}

func canViewCourse(v Viewer, c models.Course) bool {
	switch v.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTutor:
		return c.InstructorID == v.ID || c.Status.Visible()
	case models.RoleStudent:
		return c.Status.Visible()
	}
	return false
}

func (s *CourseService) Create(ctx context.Context, v Viewer, in CourseInput) (CourseView, error) {
	if !v.IsTutor() && !v.IsAdmin() {
		return CourseView{}, ErrForbidden("Only tutors can create courses")
	}
	in.Title = strings.TrimSpace(in.Title)
	if err := Validate(in); err != nil {
		return CourseView{}, err
	}
	instructor := v.ID
	if v.IsAdmin() && in.InstructorID != "" {
		p, err := s.d.profile(ctx, in.InstructorID)
		if err != nil {
			return CourseView{}, err
		}
		if p.Role != models.RoleTutor {
			return CourseView{}, ErrBadRequest("instructor_id must reference a tutor")
		}
		instructor = p.ID
	}
	if in.Status == "" {
		in.Status = models.CourseDraft
	}
	now := s.d.now()
	var created models.Course
	err := s.d.Store.Insert(ctx, models.TableCourses, remote.Values{
		"id":             uuid.NewString(),
		"title":          in.Title,
		"description":    in.Description,
		"instructor_id":  instructor,
		"status":         in.Status,
		"students_count": 0,
		"lessons_count":  in.LessonsCount,
		"created_at":     now,
		"updated_at":     now,
	}, &created)
	if err != nil {
		s.log.Error("create course failed", "error", err)
		return CourseView{}, err
	}
	s.d.Cache.Invalidate(courseWriteKeys(created.ID)...)
	return s.decorate(ctx, []models.Course{created})[0], nil
}

func (s *CourseService) Update(ctx context.Context, v Viewer, id string, patch CoursePatch) (CourseView, error) {
	if err := Validate(patch); err != nil {
		return CourseView{}, err
	}
	c, err := s.d.course(ctx, id)
	if err != nil {
		return CourseView{}, err
	}
	if !ownsCourse(v, c) {
		return CourseView{}, ErrForbidden("Not allowed")
	}
	values := remote.Values{"updated_at": s.d.now()}
	if patch.Title != nil {
		values["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		values["description"] = *patch.Description
	}
	if patch.Status != nil {
		values["status"] = *patch.Status
	}
	if patch.LessonsCount != nil {
		values["lessons_count"] = *patch.LessonsCount
	}
	var updated models.Course
	if err := s.d.Store.Update(ctx, models.TableCourses, []remote.Filter{remote.Eq("id", id)}, values, &updated); err != nil {
		s.log.Error("update course failed", "course_id", id, "error", err)
		return CourseView{}, notFoundAs(err, "Course not found")
	}
	s.d.Cache.Invalidate(courseWriteKeys(id)...)
	return s.decorate(ctx, []models.Course{updated})[0], nil
}

// Delete removes a course and everything that references it. Children go
// first, in dependency order; the course row is removed only when every child
// delete succeeded, so a failed delete can be retried without orphans.
func (s *CourseService) Delete(ctx context.Context, v Viewer, id string) error {
	c, err := s.d.course(ctx, id)
	if err != nil {
		return err
	}
	if !ownsCourse(v, c) {
		return ErrForbidden("Not allowed")
	}
	defer s.d.Cache.Invalidate(courseDeleteKeys(id)...)

	var assignments []models.Assignment
	err = s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableAssignments,
		Columns: []string{"id"},
		Filters: []remote.Filter{remote.Eq("course_id", id)},
	}, &assignments)
	if err != nil {
		s.log.Error("delete course: list assignments failed", "course_id", id, "error", err)
		return err
	}
	assignmentIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		assignmentIDs = append(assignmentIDs, a.ID)
	}
	var documents []models.CourseDocument
	err = s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableCourseDocuments,
		Columns: []string{"id", "file_path", "uploaded_by"},
		Filters: []remote.Filter{remote.Eq("course_id", id)},
	}, &documents)
	if err != nil {
		s.log.Error("delete course: list documents failed", "course_id", id, "error", err)
		return err
	}

	if err := deleteSubmissionsOf(ctx, s.d, assignmentIDs); err != nil {
		return s.cascadeFailed(id, err)
	}
	err = loader.All(ctx,
		func(ctx context.Context) error {
			return s.d.Store.Delete(ctx, models.TableAssignmentFiles, remote.In("assignment_id", assignmentIDs))
		},
		func(ctx context.Context) error {
			return s.d.Store.Delete(ctx, models.TableCourseDocuments, remote.Eq("course_id", id))
		},
		func(ctx context.Context) error {
			return s.d.Store.Delete(ctx, models.TableEnrollments, remote.Eq("course_id", id))
		},
	)
	if err != nil {
		return s.cascadeFailed(id, err)
	}
	if err := s.d.Store.Delete(ctx, models.TableAssignments, remote.Eq("course_id", id)); err != nil {
		return s.cascadeFailed(id, err)
	}
	if err := s.d.Store.Delete(ctx, models.TableCourses, remote.Eq("id", id)); err != nil {
		s.log.Error("delete course row failed", "course_id", id, "error", err)
		return err
	}
	for _, doc := range documents {
		removeObject(ctx, s.d, s.log, doc.UploadedBy, doc.FilePath)
	}
	return nil
}

func (s *CourseService) cascadeFailed(id string, err error) error {
	s.log.Error("course delete incomplete, course row kept", "course_id", id, "error", err)
	return WrapError(err, "delete course children")
}

// deleteSubmissionsOf removes the submissions of the given assignments along
// with their files.
func deleteSubmissionsOf(ctx context.Context, d Deps, assignmentIDs []string) error {
	if len(assignmentIDs) == 0 {
		return nil
	}
	var submissions []models.Submission
	err := d.Store.Select(ctx, remote.Query{
		Table:   models.TableSubmissions,
		Columns: []string{"id"},
		Filters: []remote.Filter{remote.In("assignment_id", assignmentIDs)},
	}, &submissions)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		ids = append(ids, sub.ID)
	}
	if len(ids) > 0 {
		if err := d.Store.Delete(ctx, models.TableSubmissionFiles, remote.In("submission_id", ids)); err != nil {
			return err
		}
	}
	return d.Store.Delete(ctx, models.TableSubmissions, remote.In("assignment_id", assignmentIDs))
}

// removeObject deletes an uploaded object, logging instead of failing. Only
// objects under the uploader's own prefix are removed.
func removeObject(ctx context.Context, d Deps, log *logger.Logger, uploaderID, objectName string) {
	if d.Objects == nil || objectName == "" || uploaderID == "" {
		return
	}
	if !strings.HasPrefix(path.Clean(objectName), uploaderID+"/") {
		log.Warn("object outside uploader prefix kept", "object", objectName, "uploaded_by", uploaderID)
		return
	}
	if err := d.Objects.Remove(ctx, storage.BucketUploads, objectName); err != nil {
		log.Warn("remove object failed", "object", objectName, "error", err)
	}
}
