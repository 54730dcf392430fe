package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"lms-dashboard-go/internal/services"
)

type MetricsHistoryResponse struct {
	Items []services.MetricSample `json:"items"`
}

func (s *Server) SystemMetrics(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 120)
	if limit > 500 {
		limit = 500
	}
	WriteJSON(w, http.StatusOK, MetricsHistoryResponse{Items: s.Metrics.Latest(limit)})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsSocket streams realtime events addressed to the caller. Browsers cannot
// set headers on websocket requests, so the access token comes in ?token=.
func (s *Server) EventsSocket(w http.ResponseWriter, r *http.Request) {
	snap := s.resolve(r.Context(), r.URL.Query().Get("token"))
	viewer, ok := snap.Viewer()
	if !ok {
		WriteError(w, http.StatusUnauthorized, "Authentication failed")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	remove := s.Hub.Add(conn, viewer.ID, viewer.Role)
	defer func() {
		remove()
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
