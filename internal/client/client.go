// Package client implements the remote task capabilities over HTTP+JSON
// against the synclist server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmallory/synclist/internal/reconcile"
	"github.com/jmallory/synclist/internal/task"
)

// Client talks to a synclist server. It satisfies reconcile.Remote,
// mapping HTTP status codes onto the reconciler's error kinds: 404 is
// ErrNotFound, 400/422 a ValidationError, anything else non-2xx or a
// network failure a TransportError.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New creates a client for the server at baseURL.
// If hc is nil, a client with a 30 second timeout is used.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
	}
}

// List implements reconcile.Remote.List.
func (c *Client) List(ctx context.Context) ([]reconcile.RemoteTask, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tasks", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &reconcile.TransportError{Op: "list", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("list", resp)
	}

	var tasks []reconcile.RemoteTask
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, &reconcile.TransportError{Op: "list", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return tasks, nil
}

// Create implements reconcile.Remote.Create.
func (c *Client) Create(ctx context.Context, content task.Content) (reconcile.RemoteTask, error) {
	resp, err := c.send(ctx, "create", http.MethodPost, c.baseURL+"/api/tasks", content)
	if err != nil {
		return reconcile.RemoteTask{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return reconcile.RemoteTask{}, statusError("create", resp)
	}

	var created reconcile.RemoteTask
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return reconcile.RemoteTask{}, &reconcile.TransportError{Op: "create", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return created, nil
}

// Update implements reconcile.Remote.Update.
func (c *Client) Update(ctx context.Context, id int64, content task.Content) error {
	url := fmt.Sprintf("%s/api/tasks/%d", c.baseURL, id)
	resp, err := c.send(ctx, "update", http.MethodPut, url, content)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError("update", resp)
	}
	return nil
}

// Delete implements reconcile.Remote.Delete.
func (c *Client) Delete(ctx context.Context, id int64) error {
	url := fmt.Sprintf("%s/api/tasks/%d", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &reconcile.TransportError{Op: "delete", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError("delete", resp)
	}
	return nil
}

// Ping checks server reachability via the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &reconcile.TransportError{Op: "health", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("health", resp)
	}
	return nil
}

// send issues a JSON-bodied request.
func (c *Client) send(ctx context.Context, op, method, url string, content task.Content) (*http.Response, error) {
	body, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task content: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &reconcile.TransportError{Op: op, Err: err}
	}
	return resp, nil
}

// statusError maps a non-success response onto a reconciler error kind.
func statusError(op string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return reconcile.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &reconcile.ValidationError{Reason: errorBody(resp)}
	default:
		return &reconcile.TransportError{
			Op:  op,
			Err: fmt.Errorf("server returned %s: %s", resp.Status, errorBody(resp)),
		}
	}
}

// errorBody extracts the server's JSON error message, falling back to
// the raw body.
func errorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return resp.Status
	}

	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(data))
}
