package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-dashboard-go/internal/auth"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/realtime"
	"lms-dashboard-go/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSignInThenAuthorizedCalls(t *testing.T) {
	var (
		mu      sync.Mutex
		sawAuth []string
	)
	record := func(r *http.Request) {
		mu.Lock()
		sawAuth = append(sawAuth, r.Header.Get("Authorization"))
		mu.Unlock()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "password123" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, auth.Session{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresAt:    time.Now().Add(time.Hour),
			User:         auth.User{ID: "u1", Email: body["email"], Role: models.RoleStudent},
		})
	})
	mux.HandleFunc("GET /api/profiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusOK, models.Profile{ID: r.PathValue("id"), FullName: "Sam Student", Role: models.RoleStudent})
	})
	mux.HandleFunc("GET /api/messages/with/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		assert.Equal(t, "t1", r.PathValue("id"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, services.MessagePage{
			Messages: []models.Message{{ID: "m1", SenderID: "t1", ReceiverID: "u1", Content: "hi"}},
			Total:    21,
		})
	})
	mux.HandleFunc("POST /api/messages/with/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"count": 3})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	api := New(srv.URL+"/", srv.Client())
	_, err := api.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrSignedOut)

	client := auth.NewClient(api, nil)
	api.SetTokenSource(SessionTokens(client))

	_, err = client.SignIn(ctx, "sam@example.com", "wrong-password")
	svcErr, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, svcErr.Status)
	assert.Equal(t, "Invalid credentials", svcErr.Message)

	_, err = client.SignIn(ctx, "sam@example.com", "password123")
	require.NoError(t, err)

	profile, err := api.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Sam Student", profile.FullName)

	page, err := api.History(ctx, services.Viewer{ID: "u1"}, "t1", 20, 10)
	require.NoError(t, err)
	assert.Equal(t, 21, page.Total)
	require.Len(t, page.Messages, 1)

	n, err := api.MarkRead(ctx, services.Viewer{ID: "u1"}, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer access-1", "Bearer access-1"}, sawAuth)
}

func TestErrorWithoutBodyUsesStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	api := New(srv.URL, srv.Client())
	api.SetTokenSource(func(context.Context) (string, error) { return "tok", nil })
	_, err := api.Conversations(context.Background())
	svcErr, ok := services.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, svcErr.Status)
	assert.Equal(t, "Bad Gateway", svcErr.Message)
}

func TestEventsDeliversUntilCancelled(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(realtime.Event{
			Type: realtime.EventMessage,
			Data: models.Message{ID: "m9", SenderID: "t1", ReceiverID: "u1", Content: "ping"},
		})
		_ = conn.WriteJSON(realtime.Event{Type: realtime.EventInvalidate, Keys: []string{"messages"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	api := New(srv.URL, srv.Client())
	api.SetTokenSource(func(context.Context) (string, error) { return "tok", nil })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []realtime.Event
	err := api.Events(ctx, func(ev realtime.Event) {
		got = append(got, ev)
		if len(got) == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 2)

	m, ok := MessageFromEvent(got[0])
	require.True(t, ok)
	assert.Equal(t, "ping", m.Content)
	_, ok = MessageFromEvent(got[1])
	assert.False(t, ok)
	assert.Equal(t, []string{"messages"}, got[1].Keys)

	bad := New(srv.URL, srv.Client())
	bad.SetTokenSource(func(context.Context) (string, error) { return "nope", nil })
	err = bad.Events(context.Background(), func(realtime.Event) {})
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}
