package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
)

type SubmissionView struct {
	models.Submission
	AssignmentTitle string `json:"assignment_title"`
	MaxScore        int    `json:"max_score"`
	StudentName     string `json:"student_name"`
	StatusLabel     string `json:"status_label"`
	// GradeDisplay renders as "85/100" once graded.
	GradeDisplay string `json:"grade_display,omitempty"`
}

type SubmitInput struct {
	AssignmentID string            `json:"assignment_id" validate:"required,max=64"`
	Content      string            `json:"content" validate:"max=50000"`
	Files        []models.FileMeta `json:"files" validate:"max=20,dive"`
}

type GradeInput struct {
	Grade    float64 `json:"grade"`
	Feedback string  `json:"feedback" validate:"max=10000"`
}

type SubmissionService struct {
	d   Deps
	log *logger.Logger
}

func NewSubmissionService(d Deps) *SubmissionService {
	d = d.withDefaults()
	return &SubmissionService{d: d, log: d.Log.With("service", "SubmissionService")}
}

// Submit records the viewer's work on a published assignment. Each student has
// at most one submission per assignment: an ungraded one is replaced, a graded
// one is final.
func (s *SubmissionService) Submit(ctx context.Context, v Viewer, in SubmitInput) (SubmissionView, error) {
	if !v.IsStudent() {
		return SubmissionView{}, ErrForbidden("Only students can submit")
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := Validate(in); err != nil {
		return SubmissionView{}, err
	}
	if in.Content == "" && len(in.Files) == 0 {
		return SubmissionView{}, ErrBadRequest("content or files are required")
	}
	for _, f := range in.Files {
		if !ownsObject(v, f.FilePath) {
			return SubmissionView{}, ErrForbidden("File does not belong to you")
		}
	}
	a, err := s.d.assignment(ctx, in.AssignmentID)
	if err != nil {
		return SubmissionView{}, err
	}
	if a.Status != models.AssignmentPublished {
		return SubmissionView{}, ErrNotFound("Assignment not found")
	}

	now := s.d.now()
	status := models.SubmissionSubmitted
	if a.DueDate != nil && now.After(*a.DueDate) {
		status = models.SubmissionLate
	}
	existing, err := s.find(ctx, []remote.Filter{remote.Eq("assignment_id", a.ID), remote.Eq("student_id", v.ID)})
	if err != nil {
		return SubmissionView{}, err
	}
	var saved models.Submission
	switch {
	case existing != nil && existing.Status == models.SubmissionGraded:
		return SubmissionView{}, ErrConflict("Submission was already graded")
	case existing != nil:
		err = s.d.Store.Update(ctx, models.TableSubmissions, []remote.Filter{remote.Eq("id", existing.ID)}, remote.Values{
			"content":      in.Content,
			"status":       status,
			"submitted_at": now,
		}, &saved)
	default:
		err = s.d.Store.Insert(ctx, models.TableSubmissions, remote.Values{
			"id":            uuid.NewString(),
			"assignment_id": a.ID,
			"student_id":    v.ID,
			"content":       in.Content,
			"status":        status,
			"submitted_at":  now,
		}, &saved)
	}
	if errors.Is(err, remote.ErrDuplicate) {
		return SubmissionView{}, ErrConflict("Assignment was already submitted")
	}
	if err != nil {
		s.log.Error("save submission failed", "assignment_id", a.ID, "error", err)
		return SubmissionView{}, err
	}
	for _, f := range in.Files {
		err := s.d.Store.Insert(ctx, models.TableSubmissionFiles, remote.Values{
			"id":            uuid.NewString(),
			"submission_id": saved.ID,
			"file_name":     f.FileName,
			"file_path":     f.FilePath,
			"file_type":     f.FileType,
			"file_size":     f.FileSize,
			"uploaded_by":   v.ID,
			"created_at":    now,
		}, nil)
		if err != nil {
			s.log.Error("save submission file failed", "submission_id", saved.ID, "error", err)
			s.d.Cache.Invalidate(submissionWriteKeys(a.ID)...)
			return SubmissionView{}, err
		}
	}
	s.d.Cache.Invalidate(submissionWriteKeys(a.ID)...)
	return s.view(saved, a, ""), nil
}

// Grade records a grade in [0, max_score]. Only the assignment's creator or an
// admin may grade, and a submission is graded once.
func (s *SubmissionService) Grade(ctx context.Context, v Viewer, submissionID string, in GradeInput) (SubmissionView, error) {
	if err := Validate(in); err != nil {
		return SubmissionView{}, err
	}
	sub, err := s.find(ctx, []remote.Filter{remote.Eq("id", submissionID)})
	if err != nil {
		return SubmissionView{}, err
	}
	if sub == nil {
		return SubmissionView{}, ErrNotFound("Submission not found")
	}
	a, err := s.d.assignment(ctx, sub.AssignmentID)
	if err != nil {
		return SubmissionView{}, err
	}
	if !canManageAssignment(v, a) {
		return SubmissionView{}, ErrForbidden("Not allowed")
	}
	if in.Grade < 0 || in.Grade > float64(a.MaxScore) {
		return SubmissionView{}, ErrBadRequest("grade must be between 0 and " + strconv.Itoa(a.MaxScore))
	}
	if sub.Status == models.SubmissionGraded {
		return SubmissionView{}, ErrConflict("Submission was already graded")
	}
	values := remote.Values{
		"grade":     in.Grade,
		"status":    models.SubmissionGraded,
		"graded_at": s.d.now(),
	}
	if feedback := strings.TrimSpace(in.Feedback); feedback != "" {
		values["feedback"] = feedback
	}
	var graded models.Submission
	err = s.d.Store.Update(ctx, models.TableSubmissions, []remote.Filter{remote.Eq("id", sub.ID)}, values, &graded)
	if err != nil {
		s.log.Error("grade submission failed", "submission_id", sub.ID, "error", err)
		return SubmissionView{}, notFoundAs(err, "Submission not found")
	}
	s.d.Cache.Invalidate(submissionWriteKeys(a.ID)...)
	names := s.d.profileNames(ctx, []string{graded.StudentID})
	return s.view(graded, a, nameOr(names, graded.StudentID, UnknownName)), nil
}

// NeedsGrading lists submitted or late work on the viewer's assignments, oldest first.
func (s *SubmissionService) NeedsGrading(ctx context.Context, v Viewer) ([]SubmissionView, error) {
	if !v.IsTutor() && !v.IsAdmin() {
		return nil, ErrForbidden("Not allowed")
	}
	return cache.Get(ctx, s.d.Cache, cache.Key(keyNeedsGrading, v.scope()), func(ctx context.Context) ([]SubmissionView, error) {
		assignments, err := s.ownAssignments(ctx, v)
		if err != nil {
			return nil, err
		}
		var rows []models.Submission
		err = s.d.Store.Select(ctx, remote.Query{
			Table: models.TableSubmissions,
			Filters: []remote.Filter{
				remote.In("assignment_id", keysOf(assignments)),
				remote.In("status", []models.SubmissionStatus{models.SubmissionSubmitted, models.SubmissionLate}),
			},
			Order: []remote.Order{remote.Asc("submitted_at")},
		}, &rows)
		if err != nil {
			s.log.Error("list submissions to grade failed", "error", err)
			return nil, err
		}
		return s.decorate(ctx, rows, assignments), nil
	})
}

// RecentGrades lists graded submissions newest first: a student's own, or those
// on a tutor's assignments.
func (s *SubmissionService) RecentGrades(ctx context.Context, v Viewer, limit int) ([]SubmissionView, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	key := cache.Key(keyRecentGrades, v.scope(), strconv.Itoa(limit))
	return cache.Get(ctx, s.d.Cache, key, func(ctx context.Context) ([]SubmissionView, error) {
		q := remote.Query{
			Table:   models.TableSubmissions,
			Filters: []remote.Filter{remote.Eq("status", models.SubmissionGraded)},
			Order:   []remote.Order{remote.Desc("graded_at")},
			Limit:   limit,
		}
		var assignments map[string]models.Assignment
		switch v.Role {
		case models.RoleStudent:
			q.Filters = append(q.Filters, remote.Eq("student_id", v.ID))
		case models.RoleTutor:
			own, err := s.ownAssignments(ctx, v)
			if err != nil {
				return nil, err
			}
			assignments = own
			q.Filters = append(q.Filters, remote.In("assignment_id", keysOf(own)))
		case models.RoleAdmin:
		default:
			return nil, ErrForbidden("Not allowed")
		}
		var rows []models.Submission
		if err := s.d.Store.Select(ctx, q, &rows); err != nil {
			s.log.Error("list recent grades failed", "error", err)
			return nil, err
		}
		if assignments == nil {
			assignments = s.assignmentsOf(ctx, rows)
		}
		return s.decorate(ctx, rows, assignments), nil
	})
}

// ListForAssignment returns every submission to the assignment's manager and
// only the viewer's own to a student.
func (s *SubmissionService) ListForAssignment(ctx context.Context, v Viewer, assignmentID string) ([]SubmissionView, error) {
	a, err := s.d.assignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	filters := []remote.Filter{remote.Eq("assignment_id", a.ID)}
	switch {
	case canManageAssignment(v, a):
	case v.IsStudent() && a.Status == models.AssignmentPublished:
		filters = append(filters, remote.Eq("student_id", v.ID))
	default:
		return nil, ErrNotFound("Assignment not found")
	}
	key := cache.Key(keySubmissions, "assignment", a.ID, v.scope())
	return cache.Get(ctx, s.d.Cache, key, func(ctx context.Context) ([]SubmissionView, error) {
		var rows []models.Submission
		err := s.d.Store.Select(ctx, remote.Query{
			Table:   models.TableSubmissions,
			Filters: filters,
			Order:   []remote.Order{remote.Desc("submitted_at")},
		}, &rows)
		if err != nil {
			s.log.Error("list submissions failed", "assignment_id", a.ID, "error", err)
			return nil, err
		}
		return s.decorate(ctx, rows, map[string]models.Assignment{a.ID: a}), nil
	})
}

// Mine lists the viewer's own submissions, newest first.
func (s *SubmissionService) Mine(ctx context.Context, v Viewer) ([]SubmissionView, error) {
	if !v.IsStudent() {
		return nil, ErrForbidden("Only students have submissions")
	}
	return cache.Get(ctx, s.d.Cache, cache.Key(keySubmissions, v.scope()), func(ctx context.Context) ([]SubmissionView, error) {
		var rows []models.Submission
		err := s.d.Store.Select(ctx, remote.Query{
			Table:   models.TableSubmissions,
			Filters: []remote.Filter{remote.Eq("student_id", v.ID)},
			Order:   []remote.Order{remote.Desc("submitted_at")},
		}, &rows)
		if err != nil {
			s.log.Error("list own submissions failed", "error", err)
			return nil, err
		}
		return s.decorate(ctx, rows, s.assignmentsOf(ctx, rows)), nil
	})
}

func (s *SubmissionService) Files(ctx context.Context, v Viewer, submissionID string) ([]models.SubmissionFile, error) {
	sub, err := s.find(ctx, []remote.Filter{remote.Eq("id", submissionID)})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound("Submission not found")
	}
	if sub.StudentID != v.ID {
		a, err := s.d.assignment(ctx, sub.AssignmentID)
		if err != nil {
			return nil, err
		}
		if !canManageAssignment(v, a) {
			return nil, ErrNotFound("Submission not found")
		}
	}
	var rows []models.SubmissionFile
	err = s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableSubmissionFiles,
		Filters: []remote.Filter{remote.Eq("submission_id", sub.ID)},
		Order:   []remote.Order{remote.Asc("created_at")},
	}, &rows)
	return rows, err
}

func (s *SubmissionService) ownAssignments(ctx context.Context, v Viewer) (map[string]models.Assignment, error) {
	q := remote.Query{Table: models.TableAssignments}
	if !v.IsAdmin() {
		q.Filters = []remote.Filter{remote.Eq("created_by", v.ID)}
	}
	var rows []models.Assignment
	if err := s.d.Store.Select(ctx, q, &rows); err != nil {
		s.log.Error("list own assignments failed", "error", err)
		return nil, err
	}
	out := make(map[string]models.Assignment, len(rows))
	for _, a := range rows {
		out[a.ID] = a
	}
	return out, nil
}

// assignmentsOf loads the assignments rows refer to. Failures degrade to an
// empty map.
func (s *SubmissionService) assignmentsOf(ctx context.Context, rows []models.Submission) map[string]models.Assignment {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.AssignmentID)
	}
	out := map[string]models.Assignment{}
	if len(ids) == 0 {
		return out
	}
	var assignments []models.Assignment
	err := s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableAssignments,
		Filters: []remote.Filter{remote.In("id", ids)},
	}, &assignments)
	if err != nil {
		s.log.Warn("assignment lookup degraded", "error", err)
		return out
	}
	for _, a := range assignments {
		out[a.ID] = a
	}
	return out
}

func (s *SubmissionService) decorate(ctx context.Context, rows []models.Submission, assignments map[string]models.Assignment) []SubmissionView {
	studentIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		studentIDs = append(studentIDs, r.StudentID)
	}
	names := s.d.profileNames(ctx, studentIDs)
	out := make([]SubmissionView, 0, len(rows))
	for _, r := range rows {
		a, ok := assignments[r.AssignmentID]
		if !ok {
			a = models.Assignment{ID: r.AssignmentID, Title: UnknownRef}
		}
		out = append(out, s.view(r, a, nameOr(names, r.StudentID, UnknownName)))
	}
	return out
}

func (s *SubmissionService) view(sub models.Submission, a models.Assignment, studentName string) SubmissionView {
	view := SubmissionView{
		Submission:      sub,
		AssignmentTitle: a.Title,
		MaxScore:        a.MaxScore,
		StudentName:     studentName,
		StatusLabel:     sub.Status.Label(),
	}
	if sub.Grade != nil {
		view.GradeDisplay = FormatGrade(*sub.Grade, a.MaxScore)
	}
	return view
}

// FormatGrade renders a grade against its maximum, e.g. "85/100" or "7.5/10".
// An unknown maximum renders the grade alone.
func FormatGrade(grade float64, maxScore int) string {
	g := strconv.FormatFloat(grade, 'f', -1, 64)
	if maxScore <= 0 {
		return g
	}
	return g + "/" + strconv.Itoa(maxScore)
}

func (s *SubmissionService) find(ctx context.Context, filters []remote.Filter) (*models.Submission, error) {
	var rows []models.Submission
	if err := s.d.Store.Select(ctx, remote.Query{Table: models.TableSubmissions, Filters: filters, Limit: 1}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func keysOf[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
