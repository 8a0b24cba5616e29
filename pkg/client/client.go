// Package client is an HTTP client for the unitrack API that manages the
// access/refresh token pair transparently. Requests carry the current access
// token; on a 401 the client refreshes the pair once and retries the request.
// Concurrent 401s share a single refresh call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Credentials is the token pair issued at login or refresh.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// ErrSessionExpired is returned when the refresh token itself is rejected.
// The client wipes its credentials before returning it; the caller has to
// log in again.
var ErrSessionExpired = fmt.Errorf("session expired, login required")

type apiError struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the unitrack API.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	creds Credentials

	refreshGroup singleflight.Group

	// onSessionExpired, when set, fires after the credentials are wiped
	// because a refresh failed. Useful for prompting a re-login in UIs.
	onSessionExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSessionExpiredHook registers a callback invoked once per failed
// refresh, after credentials are cleared.
func WithSessionExpiredHook(fn func()) Option {
	return func(c *Client) { c.onSessionExpired = fn }
}

// New builds a Client for the given base URL, e.g. "http://localhost:5001/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials returns a copy of the current token pair.
func (c *Client) Credentials() Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// SetCredentials installs a token pair, e.g. one restored from disk.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
}

func (c *Client) clearCredentials() {
	c.mu.Lock()
	c.creds = Credentials{}
	c.mu.Unlock()
}

// User is the profile shape returned by the API.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Notification bool      `json:"notification"`
	CreatedAt    time.Time `json:"createdAt"`
}

type authPayload struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Notification bool   `json:"notification"`
}

// Register creates an account and stores the issued token pair.
func (c *Client) Register(ctx context.Context, input RegisterInput) (User, error) {
	var payload authPayload
	if err := c.doJSON(ctx, http.MethodPost, "/users/register", input, &payload, false); err != nil {
		return User{}, err
	}
	c.SetCredentials(Credentials{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken})
	return payload.User, nil
}

// Login authenticates and stores the issued token pair.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	body := map[string]string{"email": email, "password": password}
	var payload authPayload
	if err := c.doJSON(ctx, http.MethodPost, "/users/login", body, &payload, false); err != nil {
		return User{}, err
	}
	c.SetCredentials(Credentials{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken})
	return payload.User, nil
}

// Profile fetches the current user.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var payload struct {
		Success bool `json:"success"`
		User    User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/users/profile", nil, &payload, true); err != nil {
		return User{}, err
	}
	return payload.User, nil
}

// Logout tells the server goodbye and drops the local token pair either way.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/users/logout", nil, nil, true)
	c.clearCredentials()
	return err
}

// Do sends an authenticated request to path and decodes a 2xx JSON body into
// out (out may be nil). It refreshes and retries once on a 401.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.doJSON(ctx, method, path, body, out, true)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, authed bool) error {
	resp, err := c.send(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && authed {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := c.refresh(ctx); err != nil {
			return err
		}

		resp, err = c.send(ctx, method, path, body, authed)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, authed bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if token := c.Credentials().AccessToken; token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return c.http.Do(req)
}

// refresh exchanges the refresh token for a new pair. Concurrent callers
// collapse into one request; every waiter sees the same outcome. A rejected
// refresh token wipes the stored credentials.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refreshToken := c.Credentials().RefreshToken
		if refreshToken == "" {
			return nil, ErrSessionExpired
		}

		body := map[string]string{"refreshToken": refreshToken}
		resp, err := c.send(ctx, http.MethodPost, "/users/refresh-token", body, false)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			c.clearCredentials()
			if c.onSessionExpired != nil {
				c.onSessionExpired()
			}
			return nil, ErrSessionExpired
		}

		var payload struct {
			Success      bool   `json:"success"`
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode refresh response: %w", err)
		}

		c.SetCredentials(Credentials{
			AccessToken:  payload.AccessToken,
			RefreshToken: payload.RefreshToken,
		})
		return nil, nil
	})
	return err
}

func decodeAPIError(resp *http.Response) error {
	var body apiError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err != nil || body.Message == "" {
		return &APIError{Status: resp.StatusCode, Code: body.Code, Message: strings.TrimSpace(string(data))}
	}
	return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Message}
}
