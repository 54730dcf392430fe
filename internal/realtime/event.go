// Package realtime fans events out to connected websocket clients, across
// instances when a Redis bus is configured.
package realtime

import "lms-dashboard-go/internal/models"

type EventType string

const (
	EventInvalidate EventType = "invalidate"
	EventMessage    EventType = "message"
	EventMetrics    EventType = "metrics"

	// EventCacheSync carries invalidations between server instances. It is
	// never delivered to clients.
	EventCacheSync EventType = "cache-sync"
)

// Event is addressed to one user when UserID is set, to one role when Role is
// set, and to everyone otherwise.
type Event struct {
	Type   EventType   `json:"type"`
	UserID string      `json:"user_id,omitempty"`
	Role   models.Role `json:"role,omitempty"`
	Keys   []string    `json:"keys,omitempty"`
	Data   any         `json:"data,omitempty"`

	// Origin names the publishing instance.
	Origin string `json:"origin,omitempty"`
}

func (e Event) For(userID string, role models.Role) bool {
	if e.Type == EventCacheSync {
		return false
	}
	if e.UserID != "" && e.UserID != userID {
		return false
	}
	if e.Role != "" && e.Role != role {
		return false
	}
	return true
}
