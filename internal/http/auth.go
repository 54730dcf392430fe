package httpapi

import (
	"context"
	"net/http"
	"strings"

	"lms-dashboard-go/internal/auth"
	"lms-dashboard-go/internal/guard"
	"lms-dashboard-go/internal/services"
	"lms-dashboard-go/internal/session"
)

type contextKey string

const ctxSession contextKey = "session"

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// resolve turns an access token into a session snapshot. The role comes from
// the stored profile so role changes apply to tokens already issued.
func (s *Server) resolve(ctx context.Context, token string) session.Snapshot {
	if token == "" {
		return session.Anonymous()
	}
	user, err := s.Auth.Verify(token)
	if err != nil {
		return session.Anonymous()
	}
	profile, err := s.Profiles.Get(ctx, user.ID)
	if err != nil {
		s.Log.Warn("profile lookup failed, treating request as anonymous", "user_id", user.ID, "error", err)
		return session.Anonymous()
	}
	return session.Authenticated(&auth.Session{AccessToken: token, User: user}, profile)
}

// WithSession stores the caller's session snapshot on the request. It never
// rejects; Require decides.
func (s *Server) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.resolve(r.Context(), bearerToken(r))
		ctx := context.WithValue(r.Context(), ctxSession, snap)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func CurrentSession(r *http.Request) session.Snapshot {
	if value, ok := r.Context().Value(ctxSession).(session.Snapshot); ok {
		return value
	}
	return session.Anonymous()
}

func CurrentViewer(r *http.Request) services.Viewer {
	v, _ := CurrentSession(r).Viewer()
	return v
}

// Require admits requests whose session passes rule. Anonymous callers get 401
// and signed-in callers of another role get 403.
func Require(rule guard.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch guard.Decide(CurrentSession(r), rule) {
			case guard.Render:
				next.ServeHTTP(w, r)
			case guard.RedirectDefault:
				WriteError(w, http.StatusForbidden, "Not allowed")
			case guard.Wait:
				WriteError(w, http.StatusServiceUnavailable, "Session is loading")
			default:
				WriteError(w, http.StatusUnauthorized, "Authentication failed")
			}
		})
	}
}
