package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms-dashboard-go/internal/services"
)

type CountResponse struct {
	Count int `json:"count"`
}

type NotificationsResponse struct {
	Items  []services.Notification `json:"items"`
	Unread int                     `json:"unread"`
}

type MarkReadRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) Conversations(w http.ResponseWriter, r *http.Request) {
	items, err := s.Messages.Conversations(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeItems(w, items)
}

func (s *Server) UnreadMessages(w http.ResponseWriter, r *http.Request) {
	n, err := s.Messages.UnreadTotal(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, CountResponse{Count: n})
}

// MessageHistory pages backwards from the newest message: offset counts the
// messages the client already holds.
func (s *Server) MessageHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	offset := parseInt(query.Get("offset"), 0)
	limit := parseInt(query.Get("limit"), s.Messages.PageSize())
	page, err := s.Messages.History(r.Context(), CurrentViewer(r), chi.URLParam(r, "userId"), offset, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in services.SendInput
	if !decodeJSON(w, r, &in) {
		return
	}
	m, err := s.Messages.Send(r.Context(), CurrentViewer(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, m)
}

func (s *Server) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.Messages.MarkRead(r.Context(), CurrentViewer(r), chi.URLParam(r, "userId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Server) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := s.Messages.Message(r.Context(), CurrentViewer(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := s.Notifications.List(r.Context(), CurrentViewer(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	WriteJSON(w, http.StatusOK, NotificationsResponse{Items: items, Unread: unread})
}

func (s *Server) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Notifications.MarkRead(r.Context(), CurrentViewer(r), req.IDs...); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Notifications.MarkAllRead(r.Context(), CurrentViewer(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
