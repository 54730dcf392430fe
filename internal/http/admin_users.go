package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/services"
)

type RoleRequest struct {
	Role models.Role `json:"role"`
}

func (s *Server) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := s.Profiles.Search(r.Context(), CurrentViewer(r), services.ProfileQuery{
		Query:  query.Get("q"),
		Role:   models.Role(query.Get("role")),
		Offset: parseInt(query.Get("offset"), 0),
		Limit:  parseInt(query.Get("limit"), 20),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile, err := s.Profiles.SetRole(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}
