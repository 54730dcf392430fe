package auth

import (
	"context"
	"sync"
	"time"
)

// Authenticator is the part of Service a Client needs.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, fields ProfileFields) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
}

// Client holds at most one session and refreshes it on demand.
type Client struct {
	auth    Authenticator
	now     func() time.Time
	mu      sync.Mutex
	session *Session
}

func NewClient(auth Authenticator, now func() time.Time) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{auth: auth, now: now}
}

func (c *Client) SignUp(ctx context.Context, email, password string, fields ProfileFields) (*Session, error) {
	session, err := c.auth.SignUp(ctx, email, password, fields)
	if err != nil {
		return nil, err
	}
	return c.store(session), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	session, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return c.store(session), nil
}

func (c *Client) SignOut(context.Context) error {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return nil
}

// GetSession returns the current session, refreshing it when the access token
// has expired. It returns nil when there is no usable session.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil {
		return nil, nil
	}
	if c.now().Before(current.ExpiresAt) {
		copied := *current
		return &copied, nil
	}
	refreshed, err := c.auth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.mu.Lock()
		if c.session == current {
			c.session = nil
		}
		c.mu.Unlock()
		return nil, nil
	}
	return c.store(refreshed), nil
}

func (c *Client) store(session Session) *Session {
	c.mu.Lock()
	c.session = &session
	c.mu.Unlock()
	copied := session
	return &copied
}
