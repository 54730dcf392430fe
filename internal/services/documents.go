package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/cache"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
)

type DocumentView struct {
	models.CourseDocument
	CourseTitle  string `json:"course_title"`
	UploaderName string `json:"uploader_name"`
}

type DocumentInput struct {
	CourseID string `json:"course_id" validate:"required,max=64"`
	Title    string `json:"title" validate:"required,max=200"`
	models.FileMeta
}

type DocumentPatch struct {
	Title string `json:"title" validate:"required,max=200"`
}

type DocumentService struct {
	d   Deps
	log *logger.Logger
}

func NewDocumentService(d Deps) *DocumentService {
	d = d.withDefaults()
	return &DocumentService{d: d, log: d.Log.With("service", "DocumentService")}
}

// ListByCourse returns the documents of one course, newest first.
func (s *DocumentService) ListByCourse(ctx context.Context, v Viewer, courseID string) ([]DocumentView, error) {
	c, err := s.d.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !canViewCourse(v, c) {
		return nil, ErrNotFound("Course not found")
	}
	return cache.Get(ctx, s.d.Cache, cache.Key(keyDocuments, courseID), func(ctx context.Context) ([]DocumentView, error) {
		return s.load(ctx, []remote.Filter{remote.Eq("course_id", courseID)})
	})
}

// List returns the documents of every course v can work with: tutors their own
// courses, students the courses they are enrolled in, admins all.
func (s *DocumentService) List(ctx context.Context, v Viewer) ([]DocumentView, error) {
	return cache.Get(ctx, s.d.Cache, cache.Key(keyDocuments, "all", v.scope()), func(ctx context.Context) ([]DocumentView, error) {
		var filters []remote.Filter
		switch v.Role {
		case models.RoleAdmin:
		case models.RoleTutor:
			var courses []models.Course
			err := s.d.Store.Select(ctx, remote.Query{
				Table:   models.TableCourses,
				Columns: []string{"id"},
				Filters: []remote.Filter{remote.Eq("instructor_id", v.ID)},
			}, &courses)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(courses))
			for _, c := range courses {
				ids = append(ids, c.ID)
			}
			filters = []remote.Filter{remote.In("course_id", ids)}
		case models.RoleStudent:
			ids, err := s.d.enrolledCourseIDs(ctx, v.ID)
			if err != nil {
				return nil, err
			}
			filters = []remote.Filter{remote.In("course_id", ids)}
		default:
			return nil, ErrForbidden("Not allowed")
		}
		return s.load(ctx, filters)
	})
}

func (s *DocumentService) load(ctx context.Context, filters []remote.Filter) ([]DocumentView, error) {
	var rows []models.CourseDocument
	err := s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableCourseDocuments,
		Filters: filters,
		Order:   []remote.Order{remote.Desc("created_at")},
	}, &rows)
	if err != nil {
		s.log.Error("list documents failed", "error", err)
		return nil, err
	}
	return s.decorate(ctx, rows), nil
}

func (s *DocumentService) decorate(ctx context.Context, rows []models.CourseDocument) []DocumentView {
	courseIDs := make([]string, 0, len(rows))
	uploaderIDs := make([]string, 0, len(rows))
	for _, doc := range rows {
		courseIDs = append(courseIDs, doc.CourseID)
		uploaderIDs = append(uploaderIDs, doc.UploadedBy)
	}
	titles := s.d.courseTitles(ctx, courseIDs)
	names := s.d.profileNames(ctx, uploaderIDs)
	out := make([]DocumentView, 0, len(rows))
	for _, doc := range rows {
		out = append(out, DocumentView{
			CourseDocument: doc,
			CourseTitle:    nameOr(titles, doc.CourseID, UnknownRef),
			UploaderName:   nameOr(names, doc.UploadedBy, UnknownName),
		})
	}
	return out
}

func (s *DocumentService) Get(ctx context.Context, v Viewer, id string) (DocumentView, error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return DocumentView{}, err
	}
	c, err := s.d.course(ctx, doc.CourseID)
	if err != nil {
		return DocumentView{}, err
	}
	if !canViewCourse(v, c) {
		return DocumentView{}, ErrNotFound("Document not found")
	}
	return s.decorate(ctx, []models.CourseDocument{doc})[0], nil
}

// Create records the metadata of a file that was already uploaded.
func (s *DocumentService) Create(ctx context.Context, v Viewer, in DocumentInput) (DocumentView, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := Validate(in); err != nil {
		return DocumentView{}, err
	}
	if !ownsObject(v, in.FilePath) {
		return DocumentView{}, ErrForbidden("File does not belong to you")
	}
	c, err := s.d.course(ctx, in.CourseID)
	if err != nil {
		return DocumentView{}, err
	}
	if !ownsCourse(v, c) {
		return DocumentView{}, ErrForbidden("Not allowed")
	}
	var created models.CourseDocument
	err = s.d.Store.Insert(ctx, models.TableCourseDocuments, remote.Values{
		"id":          uuid.NewString(),
		"course_id":   c.ID,
		"title":       in.Title,
		"file_name":   in.FileName,
		"file_path":   in.FilePath,
		"file_type":   in.FileType,
		"file_size":   in.FileSize,
		"uploaded_by": v.ID,
		"created_at":  s.d.now(),
	}, &created)
	if err != nil {
		s.log.Error("create document failed", "course_id", c.ID, "error", err)
		return DocumentView{}, err
	}
	s.d.Cache.Invalidate(documentWriteKeys(c.ID)...)
	return s.decorate(ctx, []models.CourseDocument{created})[0], nil
}

func (s *DocumentService) Update(ctx context.Context, v Viewer, id string, patch DocumentPatch) (DocumentView, error) {
	patch.Title = strings.TrimSpace(patch.Title)
	if err := Validate(patch); err != nil {
		return DocumentView{}, err
	}
	doc, c, err := s.owned(ctx, v, id)
	if err != nil {
		return DocumentView{}, err
	}
	var updated models.CourseDocument
	err = s.d.Store.Update(ctx, models.TableCourseDocuments, []remote.Filter{remote.Eq("id", doc.ID)},
		remote.Values{"title": patch.Title}, &updated)
	if err != nil {
		s.log.Error("update document failed", "document_id", id, "error", err)
		return DocumentView{}, notFoundAs(err, "Document not found")
	}
	s.d.Cache.Invalidate(documentWriteKeys(c.ID)...)
	return s.decorate(ctx, []models.CourseDocument{updated})[0], nil
}

// Delete removes the document row, then its stored object on a best-effort basis.
func (s *DocumentService) Delete(ctx context.Context, v Viewer, id string) error {
	doc, c, err := s.owned(ctx, v, id)
	if err != nil {
		return err
	}
	if err := s.d.Store.Delete(ctx, models.TableCourseDocuments, remote.Eq("id", doc.ID)); err != nil {
		s.log.Error("delete document failed", "document_id", id, "error", err)
		return err
	}
	s.d.Cache.Invalidate(documentWriteKeys(c.ID)...)
	removeObject(ctx, s.d, s.log, doc.UploadedBy, doc.FilePath)
	return nil
}

func (s *DocumentService) owned(ctx context.Context, v Viewer, id string) (models.CourseDocument, models.Course, error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return models.CourseDocument{}, models.Course{}, err
	}
	c, err := s.d.course(ctx, doc.CourseID)
	if err != nil {
		return models.CourseDocument{}, models.Course{}, err
	}
	if !ownsCourse(v, c) {
		return models.CourseDocument{}, models.Course{}, ErrForbidden("Not allowed")
	}
	return doc, c, nil
}

func (s *DocumentService) document(ctx context.Context, id string) (models.CourseDocument, error) {
	var rows []models.CourseDocument
	err := s.d.Store.Select(ctx, remote.Query{
		Table:   models.TableCourseDocuments,
		Filters: []remote.Filter{remote.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return models.CourseDocument{}, err
	}
	if len(rows) == 0 {
		return models.CourseDocument{}, ErrNotFound("Document not found")
	}
	return rows[0], nil
}
