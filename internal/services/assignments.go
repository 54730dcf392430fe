package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/loader"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
)

type AssignmentView struct {
	models.Assignment
	CourseTitle string `json:"course_title"`
	CreatorName string `json:"creator_name"`
	StatusLabel string `json:"status_label"`
}

type AssignmentFilter struct {
	CourseID string
}

type AssignmentInput struct {
	CourseID    string                  `json:"course_id" validate:"required,max=64"`
	Title       string                  `json:"title" validate:"required,min=3,max=200"`
	Description string                  `json:"description" validate:"max=10000"`
	DueDate     *time.Time              `json:"due_date"`
	MaxScore    int                     `json:"max_score" validate:"gte=0,lte=1000"`
	Status      models.AssignmentStatus `json:"assignment_status" validate:"omitempty,assignment_status"`
}

type AssignmentPatch struct {
	Title       *string                  `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string                  `json:"description" validate:"omitempty,max=10000"`
	DueDate     *time.Time               `json:"due_date"`
	ClearDue    bool                     `json:"clear_due_date"`
	MaxScore    *int                     `json:"max_score" validate:"omitempty,gte=1,lte=1000"`
	Status      *models.AssignmentStatus `json:"assignment_status" validate:"omitempty,assignment_status"`
}

type AssignmentService struct {
	d   Deps
	log *logger.Logger
}

func NewAssignmentService(d Deps) *AssignmentService {
	d = d.withDefaults()
	return &AssignmentService{d: d, log: d.Log.With("service", "AssignmentService")}
}

// List returns assignments scoped by role: tutors see the ones they created in
// any status, students only published ones, admins all.
func (s *AssignmentService) List(ctx context.Context, v Viewer, f AssignmentFilter) ([]AssignmentView, error) {
	key := cache.Key(keyAssignments, v.scope(), f.CourseID)
	return cache.Get(ctx, s.d.Cache, key, func(ctx context.Context) ([]AssignmentView, error) {
		q := remote.Query{Table: models.TableAssignments, Order: []remote.Order{remote.Desc("created_at")}}
		switch v.Role {
		case models.RoleTutor:
			q.Filters = append(q.Filters, remote.Eq("created_by", v.ID))
		case models.RoleStudent:
			q.Filters = append(q.Filters, remote.Eq("assignment_status", models.AssignmentPublished))
		case models.RoleAdmin:
		default:
			return nil, ErrForbidden("Not allowed")
		}
		if f.CourseID != "" {
			q.Filters = append(q.Filters, remote.Eq("course_id", f.CourseID))
		}
		var rows []models.Assignment
		if err := s.d.Store.Select(ctx, q, &rows); err != nil {
			s.log.Error("list assignments failed", "error", err)
			return nil, err
		}
		return s.decorate(ctx, rows), nil
	})
}

// decorate joins course titles and creator names, fetched concurrently. A
// failed lookup leaves placeholders.
func (s *AssignmentService) decorate(ctx context.Context, rows []models.Assignment) []AssignmentView {
	courseIDs := make([]string, 0, len(rows))
	creatorIDs := make([]string, 0, len(rows))
	for _, a := range rows {
		courseIDs = append(courseIDs, a.CourseID)
		creatorIDs = append(creatorIDs, a.CreatedBy)
	}
	var titles, names map[string]string
	_ = loader.All(ctx,
		func(ctx context.Context) error { titles = s.d.courseTitles(ctx, courseIDs); return nil },
		func(ctx context.Context) error { names = s.d.profileNames(ctx, creatorIDs); return nil },
	)
	out := make([]AssignmentView, 0, len(rows))
	for _, a := range rows {
		out = append(out, AssignmentView{
			Assignment:  a,
			CourseTitle: nameOr(titles, a.CourseID, UnknownRef),
			CreatorName: nameOr(names, a.CreatedBy, UnknownName),
			StatusLabel: a.Status.Label(),
		})
	}
	return out
}

func canViewAssignment(v Viewer, a models.Assignment) bool {
	switch v.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTutor:
		return a.CreatedBy == v.ID || a.Status == models.AssignmentPublished
	case models.RoleStudent:
		return a.Status == models.AssignmentPublished
	}
	return false
}

func canManageAssignment(v Viewer, a models.Assignment) bool {
	return v.IsAdmin() || (v.IsTutor() && a.CreatedBy == v.ID)
}

func (s *AssignmentService) Get(ctx context.Context, v Viewer, id string) (AssignmentView, error) {
	view, err := cache.Get(ctx, s.d.Cache, cache.Key(keyAssignment, id), func(ctx context.Context) (AssignmentView, error) {
		a, err := s.d.assignment(ctx, id)
		if err != nil {
			return AssignmentView{}, err
		}
		return s.decorate(ctx, []models.Assignment{a})[0], nil
	})
	if err != nil {
		return AssignmentView{}, err
	}
	if !canViewAssignment(v, view.Assignment) {
		return AssignmentView{}, ErrNotFound("Assignment not found")
	}
	return view, nil
}

func (s *AssignmentService) Create(ctx context.Context, v Viewer, in AssignmentInput) (AssignmentView, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := Validate(in); err != nil {
		return AssignmentView{}, err
	}
	c, err := s.d.course(ctx, in.CourseID)
	if err != nil {
		return AssignmentView{}, err
	}
	if !ownsCourse(v, c) {
		return AssignmentView{}, ErrForbidden("Not allowed")
	}
	if in.MaxScore == 0 {
		in.MaxScore = 100
	}
	if in.Status == "" {
		in.Status = models.AssignmentDraft
	}
	now := s.d.now()
	var created models.Assignment
	err = s.d.Store.Insert(ctx, models.TableAssignments, remote.Values{
		"id":                uuid.NewString(),
		"course_id":         c.ID,
		"created_by":        v.ID,
		"title":             in.Title,
		"description":       in.Description,
		"due_date":          in.DueDate,
		"max_score":         in.MaxScore,
		"assignment_status": in.Status,
		"created_at":        now,
		"updated_at":        now,
	}, &created)
	if err != nil {
		s.log.Error("create assignment failed", "course_id", c.ID, "error", err)
		return AssignmentView{}, err
	}
	s.d.Cache.Invalidate(assignmentWriteKeys(created.ID, created.CourseID)...)
	return s.decorate(ctx, []models.Assignment{created})[0], nil
}

func (s *AssignmentService) Update(ctx context.Context, v Viewer, id string, patch AssignmentPatch) (AssignmentView, error) {
	if err := Validate(patch); err != nil {
		return AssignmentView{}, err
	}
	a, err := s.d.assignment(ctx, id)
	if err != nil {
		return AssignmentView{}, err
	}
	if !canManageAssignment(v, a) {
		return AssignmentView{}, ErrForbidden("Not allowed")
	}
	values := remote.Values{"updated_at": s.d.now()}
	if patch.Title != nil {
		values["title"] = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		values["description"] = *patch.Description
	}
	if patch.ClearDue {
		values["due_date"] = nil
	} else if patch.DueDate != nil {
		values["due_date"] = *patch.DueDate
	}
	if patch.MaxScore != nil {
		values["max_score"] = *patch.MaxScore
	}
	if patch.Status != nil {
		values["assignment_status"] = *patch.Status
	}
	var updated models.Assignment
	if err := s.d.Store.Update(ctx, models.TableAssignments, []remote.Filter{remote.Eq("id", id)}, values, &updated); err != nil {
		s.log.Error("update assignment failed", "assignment_id", id, "error", err)
		return AssignmentView{}, notFoundAs(err, "Assignment not found")
	}
	s.d.Cache.Invalidate(assignmentWriteKeys(id, a.CourseID)...)
	return s.decorate(ctx, []models.Assignment{updated})[0], nil
}

// Delete removes an assignment after its submissions and attached files.
func (s *AssignmentService) Delete(ctx context.Context, v Viewer, id string) error {
	a, err := s.d.assignment(ctx, id)
	if err != nil {
		return err
	}
	if !canManageAssignment(v, a) {
		return ErrForbidden("Not allowed")
	}
	defer s.d.Cache.Invalidate(append(assignmentWriteKeys(id, a.CourseID), keySubmissions, keyRecentGrades)...)
	if err := deleteSubmissionsOf(ctx, s.d, []string{id}); err != nil {
		s.log.Error("delete assignment submissions failed", "assignment_id", id, "error", err)
		return err
	}
	if err := s.d.Store.Delete(ctx, models.TableAssignmentFiles, remote.Eq("assignment_id", id)); err != nil {
		s.log.Error("delete assignment files failed", "assignment_id", id, "error", err)
		return err
	}
	if err := s.d.Store.Delete(ctx, models.TableAssignments, remote.Eq("id", id)); err != nil {
		s.log.Error("delete assignment failed", "assignment_id", id, "error", err)
		return err
	}
	return nil
}

// AttachFile records metadata of an uploaded file on an assignment.
func (s *AssignmentService) AttachFile(ctx context.Context, v Viewer, assignmentID string, meta models.FileMeta) (models.AssignmentFile, error) {
	if err := Validate(meta); err != nil {
		return models.AssignmentFile{}, err
	}
	a, err := s.d.assignment(ctx, assignmentID)
	if err != nil {
		return models.AssignmentFile{}, err
	}
	if !canManageAssignment(v, a) {
		return models.AssignmentFile{}, ErrForbidden("Not allowed")
	}
	if !ownsObject(v, meta.FilePath) {
		return models.AssignmentFile{}, ErrForbidden("File does not belong to you")
	}
	var created models.AssignmentFile
	err = s.d.Store.Insert(ctx, models.TableAssignmentFiles, remote.Values{
		"id":            uuid.NewString(),
		"assignment_id": a.ID,
		"file_name":     meta.FileName,
		"file_path":     meta.FilePath,
		"file_type":     meta.FileType,
		"file_size":     meta.FileSize,
		"uploaded_by":   v.ID,
		"created_at":    s.d.now(),
	}, &created)
	if err != nil {
		s.log.Error("attach assignment file failed", "assignment_id", a.ID, "error", err)
		return models.AssignmentFile{}, err
	}
	s.d.Cache.Invalidate(cache.Key(keyAssignment, a.ID))
	return created, nil
}

func (s *AssignmentService) Files(ctx context.Context, v Viewer, assignmentID string) ([]models.AssignmentFile, error) {
	a, err := s.d.assignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !canViewAssignment(v, a) {
		return nil, ErrNotFound("Assignment not found")
	}
	return cache.Get(ctx, s.d.Cache, cache.Key(keyAssignment, a.ID, "files"), func(ctx context.Context) ([]models.AssignmentFile, error) {
		var rows []models.AssignmentFile
		err := s.d.Store.Select(ctx, remote.Query{
			Table:   models.TableAssignmentFiles,
			Filters: []remote.Filter{remote.Eq("assignment_id", a.ID)},
			Order:   []remote.Order{remote.Asc("created_at")},
		}, &rows)
		return rows, err
	})
}
