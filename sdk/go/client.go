// Package worktracksdk is a minimal client for the worktrack HTTP API.
package worktracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running `wt serve` instance.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	Actor       string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "v0",
		Timeout:  10 * time.Second,
	}
}

// Item is the API work item model.
type Item struct {
	UID         string         `json:"uid"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	State       string         `json:"state"`
	Assignee    string         `json:"assignee,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// Event is one entry of an item's log.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SetOperation assigns a value at a dot path in the item document.
type SetOperation struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// SearchFilter narrows Search results; empty fields match everything.
type SearchFilter struct {
	State    string `json:"state,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Label    string `json:"label,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// Search lists items matching filter.
func (c *Client) Search(ctx context.Context, filter SearchFilter) ([]Item, error) {
	var resp []Item
	err := c.do(ctx, http.MethodPost, "search", filter, &resp)
	return resp, err
}

// CreateItem creates an item from a title.
func (c *Client) CreateItem(ctx context.Context, title string) (Item, error) {
	body := map[string]any{"title": title}
	var resp Item
	err := c.do(ctx, http.MethodPost, "items", body, &resp)
	return resp, err
}

// GetItem fetches one item by uid.
func (c *Client) GetItem(ctx context.Context, uid string) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodGet, "items/"+url.PathEscape(uid), nil, &resp)
	return resp, err
}

// SetFields applies path=value operations to an item.
func (c *Client) SetFields(ctx context.Context, uid string, ops []SetOperation) (Item, error) {
	body := map[string]any{"operations": ops}
	var resp Item
	endpoint := fmt.Sprintf("items/%s/set", url.PathEscape(uid))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// PatchItem applies an RFC 7396 merge patch to an item.
func (c *Client) PatchItem(ctx context.Context, uid string, mergePatch map[string]any) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPatch, "items/"+url.PathEscape(uid), mergePatch, &resp)
	return resp, err
}

// Events returns an item's log, optionally limited to recent days.
func (c *Client) Events(ctx context.Context, uid string, sinceDays int) ([]Event, error) {
	endpoint := fmt.Sprintf("items/%s/events", url.PathEscape(uid))
	if sinceDays > 0 {
		endpoint = fmt.Sprintf("%s?since_days=%d", endpoint, sinceDays)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AppendEvent appends a custom event to an item's log.
func (c *Client) AppendEvent(ctx context.Context, uid, eventType string, payload any) (Event, error) {
	body := map[string]any{"type": eventType, "payload": payload}
	var resp Event
	endpoint := fmt.Sprintf("items/%s/events", url.PathEscape(uid))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	} else if c.Actor != "" {
		req.Header.Set("X-Actor-Id", c.Actor)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
