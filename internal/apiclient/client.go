// Package apiclient talks to the /api surface over HTTP. It satisfies the
// collaborator interfaces of auth.Client, session.Context and chat.Window so
// they run the same against a remote server as in-process.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lms-dashboard-go/internal/auth"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/services"
)

var ErrSignedOut = errors.New("apiclient: not signed in")

// TokenSource yields the access token for authenticated calls.
type TokenSource func(ctx context.Context) (string, error)

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SetTokenSource wires the session holder in after construction; auth.Client
// needs this Client before it can hand out tokens.
func (c *Client) SetTokenSource(fn TokenSource) {
	c.token = fn
}

// SessionTokens returns a TokenSource backed by an auth.Client.
func SessionTokens(a *auth.Client) TokenSource {
	return func(ctx context.Context) (string, error) {
		s, err := a.GetSession(ctx)
		if err != nil {
			return "", err
		}
		if s == nil {
			return "", ErrSignedOut
		}
		return s.AccessToken, nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, authed bool, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.token == nil {
			return ErrSignedOut
		}
		token, err := c.token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError turns an error response into the ServiceError the server sent.
func decodeError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
	if payload.Message == "" {
		payload.Message = http.StatusText(resp.StatusCode)
	}
	return services.ServiceError{Status: resp.StatusCode, Message: payload.Message}
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	auth.ProfileFields
}

func (c *Client) SignUp(ctx context.Context, email, password string, fields auth.ProfileFields) (auth.Session, error) {
	var s auth.Session
	err := c.do(ctx, http.MethodPost, "/api/auth/register", false, signUpRequest{Email: email, Password: password, ProfileFields: fields}, &s)
	return s, err
}

func (c *Client) SignIn(ctx context.Context, email, password string) (auth.Session, error) {
	var s auth.Session
	err := c.do(ctx, http.MethodPost, "/api/auth/login", false, map[string]string{"email": email, "password": password}, &s)
	return s, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.Session, error) {
	var s auth.Session
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", false, map[string]string{"refresh_token": refreshToken}, &s)
	return s, err
}

func (c *Client) Get(ctx context.Context, id string) (models.Profile, error) {
	var p models.Profile
	err := c.do(ctx, http.MethodGet, "/api/profiles/"+url.PathEscape(id), true, nil, &p)
	return p, err
}

// The viewer arguments below are implied by the access token.

func (c *Client) History(ctx context.Context, _ services.Viewer, otherID string, offset, limit int) (services.MessagePage, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))
	var page services.MessagePage
	err := c.do(ctx, http.MethodGet, "/api/messages/with/"+url.PathEscape(otherID)+"?"+query.Encode(), true, nil, &page)
	return page, err
}

func (c *Client) Send(ctx context.Context, _ services.Viewer, in services.SendInput) (models.Message, error) {
	var m models.Message
	err := c.do(ctx, http.MethodPost, "/api/messages", true, in, &m)
	return m, err
}

func (c *Client) MarkRead(ctx context.Context, _ services.Viewer, fromID string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "/api/messages/with/"+url.PathEscape(fromID)+"/read", true, nil, &out)
	return out.Count, err
}

func (c *Client) Conversations(ctx context.Context) ([]services.Conversation, error) {
	var out struct {
		Items []services.Conversation `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/api/messages/conversations", true, nil, &out)
	return out.Items, err
}
