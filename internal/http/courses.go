package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms-dashboard-go/internal/services"
)

func (s *Server) ListCourses(w http.ResponseWriter, r *http.Request) {
	items, err := s.Courses.List(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.Courses.Get(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, course)
}

func (s *Server) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var in services.CourseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	course, err := s.Courses.Create(r.Context(), CurrentViewer(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, course)
}

func (s *Server) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var patch services.CoursePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	course, err := s.Courses.Update(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, course)
}

func (s *Server) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := s.Courses.Delete(r.Context(), CurrentViewer(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := s.Documents.List(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) ListCourseDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := s.Documents.ListByCourse(r.Context(), CurrentViewer(r), chi.URLParam(r, "course_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Documents.Get(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var in services.DocumentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	doc, err := s.Documents.Create(r.Context(), CurrentViewer(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, doc)
}

func (s *Server) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	var patch services.DocumentPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	doc, err := s.Documents.Update(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.Documents.Delete(r.Context(), CurrentViewer(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
