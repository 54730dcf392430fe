package apiclient

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
)

// Events streams realtime events to onEvent until ctx is done or the
// connection drops.
func (c *Client) Events(ctx context.Context, onEvent func(realtime.Event)) error {
	if c.token == nil {
		return ErrSignedOut
	}
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws/events?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()
	for {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		onEvent(ev)
	}
}

// MessageFromEvent extracts the message carried by a message event.
func MessageFromEvent(ev realtime.Event) (models.Message, bool) {
	if ev.Type != realtime.EventMessage || ev.Data == nil {
		return models.Message{}, false
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return models.Message{}, false
	}
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil || m.ID == "" {
		return models.Message{}, false
	}
	return m, true
}
