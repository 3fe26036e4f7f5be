// Package catalogclient is the store front of the app catalog: it keeps a
// local copy of the listings and drives the catalog REST API.
package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rifa/internal/models"
)

var (
	ErrNotAuthenticated = errors.New("catalogclient: admin login required")
	ErrUnauthorized     = errors.New("catalogclient: invalid password")
	ErrNotFound         = errors.New("catalogclient: app not found")
)

// CategoryAll selects every listing.
const CategoryAll = "all"

// APIError is a non-2xx reply from the catalog API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog api: status %d: %s", e.StatusCode, e.Body)
}

// appCache is the listing copy shared by a client and its sessions.
type appCache struct {
	mu   sync.RWMutex
	apps []*models.App
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *appCache

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   &appCache{},
	}
}

// Session returns a client that shares c's listing cache but carries its own
// admin token, one per store visitor.
func (c *Client) Session(token string) *Client {
	return &Client{
		httpClient: c.httpClient,
		baseURL:    c.baseURL,
		cache:      c.cache,
		token:      token,
	}
}

// Token is the admin token obtained by AdminLogin, empty when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Fetch reloads the local listing cache.
func (c *Client) Fetch(ctx context.Context) error {
	var apps []*models.App
	if err := c.do(ctx, http.MethodGet, "/api/apps", nil, &apps); err != nil {
		return err
	}
	c.cache.mu.Lock()
	c.cache.apps = apps
	c.cache.mu.Unlock()
	return nil
}

// Apps filters the cache by category; empty or "all" returns everything.
func (c *Client) Apps(category string) []models.App {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	result := make([]models.App, 0, len(c.cache.apps))
	for _, a := range c.cache.apps {
		if category == "" || category == CategoryAll || a.Category == category {
			result = append(result, *a)
		}
	}
	return result
}

// Download tracks the download and returns the APK URL to open. The cached
// counter only moves when tracking succeeded.
func (c *Client) Download(ctx context.Context, id string) (string, error) {
	if err := c.do(ctx, http.MethodPost, "/api/apps/"+id+"/download", nil, nil); err != nil {
		return "", err
	}
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	for _, a := range c.cache.apps {
		if a.ID == id {
			a.Downloads++
			return a.ApkURL, nil
		}
	}
	return "", ErrNotFound
}

// AdminLogin exchanges the admin password for a bearer token.
func (c *Client) AdminLogin(ctx context.Context, password string) error {
	var res struct {
		Authenticated bool   `json:"authenticated"`
		Token         string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/admin", map[string]string{"password": password}, &res); err != nil {
		return err
	}
	if !res.Authenticated || res.Token == "" {
		return ErrUnauthorized
	}
	c.mu.Lock()
	c.token = res.Token
	c.mu.Unlock()
	return nil
}

func (c *Client) IsAdmin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *Client) Logout() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Delete removes an app on the server and then from the cache.
func (c *Client) Delete(ctx context.Context, id string) error {
	if !c.IsAdmin() {
		return ErrNotAuthenticated
	}
	if err := c.do(ctx, http.MethodDelete, "/api/apps/"+id, nil, nil); err != nil {
		return err
	}
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	for i, a := range c.cache.apps {
		if a.ID == id {
			c.cache.apps = append(c.cache.apps[:i], c.cache.apps[i+1:]...)
			break
		}
	}
	return nil
}

// App returns the cached listing with id.
func (c *Client) App(id string) (models.App, bool) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	for _, a := range c.cache.apps {
		if a.ID == id {
			return *a, true
		}
	}
	return models.App{}, false
}

func (c *Client) upsertCached(app *models.App) {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	for i, a := range c.cache.apps {
		if a.ID == app.ID {
			c.cache.apps[i] = app
			return
		}
	}
	c.cache.apps = append(c.cache.apps, app)
}

// FormatDownloads renders a counter the way the store shows it: 1.2M+, 3.4K+
// or the plain number below a thousand.
func FormatDownloads(n int64) string {
	d := decimal.NewFromInt(n)
	switch {
	case n >= 1_000_000:
		return d.Div(decimal.NewFromInt(1_000_000)).StringFixed(1) + "M+"
	case n >= 1_000:
		return d.Div(decimal.NewFromInt(1_000)).StringFixed(1) + "K+"
	}
	return d.String()
}
