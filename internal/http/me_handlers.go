package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms-dashboard-go/internal/guard"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/services"
)

type MeResponse struct {
	Profile models.Profile `json:"profile"`
	// Home is the dashboard the client lands on for this role.
	Home string `json:"home"`
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	snap := CurrentSession(r)
	WriteJSON(w, http.StatusOK, MeResponse{Profile: *snap.Profile, Home: guard.DefaultPath(snap.Role())})
}

func (s *Server) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch services.ProfilePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	v := CurrentViewer(r)
	profile, err := s.Profiles.Update(r.Context(), v, v.ID, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, MeResponse{Profile: profile, Home: guard.DefaultPath(profile.Role)})
}

func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.Profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (s *Server) StatsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Stats.Summary(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}
