// Package session tracks who is signed in: loading until the auth session and
// the profile are both resolved, then authenticated or anonymous.
package session

import (
	"context"
	"sync"

	"lms-dashboard-go/internal/auth"
	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/services"
)

type Status string

const (
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// Auth is the session holder; *auth.Client satisfies it.
type Auth interface {
	SignUp(ctx context.Context, email, password string, fields auth.ProfileFields) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*auth.Session, error)
}

// Profiles loads the profile behind a session; *services.ProfileService
// satisfies it.
type Profiles interface {
	Get(ctx context.Context, id string) (models.Profile, error)
}

type Snapshot struct {
	Status  Status          `json:"status"`
	Session *auth.Session   `json:"-"`
	Profile *models.Profile `json:"profile,omitempty"`
}

func Loading() Snapshot   { return Snapshot{Status: StatusLoading} }
func Anonymous() Snapshot { return Snapshot{Status: StatusAnonymous} }

func Authenticated(s *auth.Session, p models.Profile) Snapshot {
	return Snapshot{Status: StatusAuthenticated, Session: s, Profile: &p}
}

func (s Snapshot) Role() models.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

// Viewer returns the signed-in user, if any.
func (s Snapshot) Viewer() (services.Viewer, bool) {
	if s.Status != StatusAuthenticated || s.Profile == nil {
		return services.Viewer{}, false
	}
	return services.Viewer{ID: s.Profile.ID, Role: s.Profile.Role}, true
}

// Context owns the session state. Every operation moves it to a final state;
// results of an operation overtaken by a later one are dropped.
type Context struct {
	auth     Auth
	profiles Profiles
	log      *logger.Logger

	mu   sync.Mutex
	snap Snapshot
	seq  uint64
	subs map[int]func(Snapshot)
	next int
}

func New(a Auth, profiles Profiles, log *logger.Logger) *Context {
	if log == nil {
		log = logger.NewNop()
	}
	return &Context{
		auth:     a,
		profiles: profiles,
		log:      log.With("component", "Session"),
		snap:     Loading(),
		subs:     map[int]func(Snapshot){},
	}
}

func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Context) Viewer() (services.Viewer, bool) {
	return c.Snapshot().Viewer()
}

// Subscribe calls fn after every state change until the returned func is called.
func (c *Context) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// begin marks the start of an operation and returns its sequence number.
func (c *Context) begin(loading bool) uint64 {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	changed := loading && c.snap.Status != StatusLoading
	if changed {
		c.snap = Loading()
	}
	c.mu.Unlock()
	if changed {
		c.notify(Loading())
	}
	return seq
}

func (c *Context) settle(seq uint64, snap Snapshot) Snapshot {
	c.mu.Lock()
	if seq != c.seq {
		current := c.snap
		c.mu.Unlock()
		return current
	}
	c.snap = snap
	c.mu.Unlock()
	c.notify(snap)
	return snap
}

func (c *Context) notify(snap Snapshot) {
	c.mu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// Resolve loads the current session and its profile. Any failure resolves to
// anonymous.
func (c *Context) Resolve(ctx context.Context) Snapshot {
	seq := c.begin(true)
	s, err := c.auth.GetSession(ctx)
	if err != nil {
		c.log.Warn("get session failed", "error", err)
		return c.settle(seq, Anonymous())
	}
	if s == nil {
		return c.settle(seq, Anonymous())
	}
	return c.settle(seq, c.withProfile(ctx, s))
}

func (c *Context) withProfile(ctx context.Context, s *auth.Session) Snapshot {
	p, err := c.profiles.Get(ctx, s.User.ID)
	if err != nil {
		c.log.Warn("profile lookup failed", "user_id", s.User.ID, "error", err)
		return Anonymous()
	}
	return Authenticated(s, p)
}

func (c *Context) SignIn(ctx context.Context, email, password string) (Snapshot, error) {
	seq := c.begin(true)
	s, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return c.settle(seq, Anonymous()), err
	}
	return c.finishSignIn(ctx, seq, s)
}

func (c *Context) SignUp(ctx context.Context, email, password string, fields auth.ProfileFields) (Snapshot, error) {
	seq := c.begin(true)
	s, err := c.auth.SignUp(ctx, email, password, fields)
	if err != nil {
		return c.settle(seq, Anonymous()), err
	}
	return c.finishSignIn(ctx, seq, s)
}

func (c *Context) finishSignIn(ctx context.Context, seq uint64, s *auth.Session) (Snapshot, error) {
	p, err := c.profiles.Get(ctx, s.User.ID)
	if err != nil {
		c.log.Warn("profile lookup failed after sign in", "user_id", s.User.ID, "error", err)
		_ = c.auth.SignOut(ctx)
		return c.settle(seq, Anonymous()), err
	}
	return c.settle(seq, Authenticated(s, p)), nil
}

func (c *Context) SignOut(ctx context.Context) error {
	seq := c.begin(false)
	err := c.auth.SignOut(ctx)
	c.settle(seq, Anonymous())
	return err
}

// RefreshProfile reloads the signed-in user's profile, e.g. after an edit.
func (c *Context) RefreshProfile(ctx context.Context) (Snapshot, error) {
	current := c.Snapshot()
	if current.Status != StatusAuthenticated || current.Session == nil {
		return current, nil
	}
	seq := c.begin(false)
	p, err := c.profiles.Get(ctx, current.Session.User.ID)
	if err != nil {
		c.log.Warn("profile refresh failed", "error", err)
		return c.settle(seq, Anonymous()), err
	}
	return c.settle(seq, Authenticated(current.Session, p)), nil
}
