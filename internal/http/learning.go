package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/services"
)

type EnrollRequest struct {
	CourseID  string `json:"course_id"`
	StudentID string `json:"student_id"`
}

type ProgressRequest struct {
	Progress int `json:"progress"`
}

func (s *Server) MyEnrollments(w http.ResponseWriter, r *http.Request) {
	items, err := s.Enrollments.Enrolled(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CourseID == "" {
		WriteError(w, http.StatusBadRequest, "course_id is required")
		return
	}
	e, err := s.Enrollments.Enroll(r.Context(), CurrentViewer(r), req.CourseID, req.StudentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, e)
}

func (s *Server) DropEnrollment(w http.ResponseWriter, r *http.Request) {
	e, err := s.Enrollments.Drop(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, e)
}

func (s *Server) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := s.Enrollments.UpdateProgress(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"), req.Progress)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, e)
}

func (s *Server) Students(w http.ResponseWriter, r *http.Request) {
	items, err := s.Enrollments.Students(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) ListAssignments(w http.ResponseWriter, r *http.Request) {
	filter := services.AssignmentFilter{CourseID: r.URL.Query().Get("course_id")}
	items, err := s.Assignments.List(r.Context(), CurrentViewer(r), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := s.Assignments.Get(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

func (s *Server) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var in services.AssignmentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	a, err := s.Assignments.Create(r.Context(), CurrentViewer(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, a)
}

func (s *Server) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	var patch services.AssignmentPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	a, err := s.Assignments.Update(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

func (s *Server) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if err := s.Assignments.Delete(r.Context(), CurrentViewer(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) AssignmentFiles(w http.ResponseWriter, r *http.Request) {
	items, err := s.Assignments.Files(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) AttachAssignmentFile(w http.ResponseWriter, r *http.Request) {
	var meta models.FileMeta
	if !decodeJSON(w, r, &meta) {
		return
	}
	f, err := s.Assignments.AttachFile(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"), meta)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, f)
}

func (s *Server) AssignmentSubmissions(w http.ResponseWriter, r *http.Request) {
	items, err := s.Submissions.ListForAssignment(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	var in services.SubmitInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sub, err := s.Submissions.Submit(r.Context(), CurrentViewer(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sub)
}

func (s *Server) MySubmissions(w http.ResponseWriter, r *http.Request) {
	items, err := s.Submissions.Mine(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) NeedsGrading(w http.ResponseWriter, r *http.Request) {
	items, err := s.Submissions.NeedsGrading(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) RecentGrades(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 10)
	if limit > 100 {
		limit = 100
	}
	items, err := s.Submissions.RecentGrades(r.Context(), CurrentViewer(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) GradeSubmission(w http.ResponseWriter, r *http.Request) {
	var in services.GradeInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sub, err := s.Submissions.Grade(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

func (s *Server) SubmissionFiles(w http.ResponseWriter, r *http.Request) {
	items, err := s.Submissions.Files(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}
