package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "taskboard.com/taskboard/internal/errors"
	model "taskboard.com/taskboard/pkg/models"
)

const (
	// DefaultTimeout bounds each request when no timeout is configured.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of a failed response is read for its message.
	maxErrorBody = 64 << 10
)

// Client implements Gateway over HTTP/JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client for baseURL. An empty baseURL is accepted here and
// reported as a ConfigurationError by every operation.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ListTasks fetches one page of tasks.
func (c *Client) ListTasks(ctx context.Context, query string) (model.TaskPage, error) {
	path := "/api/tasks"
	if query != "" {
		path += "?" + query
	}
	body, err := c.do(ctx, "list tasks", http.MethodGet, path, nil)
	if err != nil {
		return model.TaskPage{}, err
	}
	return decodeTaskPage(body)
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	body, err := c.do(ctx, "create task", http.MethodPost, "/api/tasks", in)
	if err != nil {
		return model.Task{}, err
	}
	return decodeTask("create task", body)
}

// UpdateTask updates the fields set in in.
func (c *Client) UpdateTask(ctx context.Context, id int64, in model.TaskInput) (model.Task, error) {
	if id <= 0 {
		return model.Task{}, apperrors.ErrTaskIDRequired
	}
	body, err := c.do(ctx, "update task", http.MethodPut, "/api/tasks/"+strconv.FormatInt(id, 10), in)
	if err != nil {
		return model.Task{}, err
	}
	return decodeTask("update task", body)
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.ErrTaskIDRequired
	}
	_, err := c.do(ctx, "delete task", http.MethodDelete, "/api/tasks/"+strconv.FormatInt(id, 10), nil)
	return err
}

// ListUsers returns all users.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	body, err := c.do(ctx, "list users", http.MethodGet, "/api/users", nil)
	if err != nil {
		return nil, err
	}
	var users []model.User
	if len(body) == 0 {
		return users, nil
	}
	if err := json.Unmarshal(body, &users); err != nil {
		var envelope struct {
			Data []model.User `json:"data"`
		}
		if envErr := json.Unmarshal(body, &envelope); envErr != nil {
			return nil, &apperrors.TransportError{Op: "list users", Message: "invalid response body", Err: err}
		}
		users = envelope.Data
	}
	return users, nil
}

// do performs one round trip and returns the body of a successful response.
// A 204 yields a nil body.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, apperrors.NewConfigurationError("api_url")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode payload: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, &apperrors.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &apperrors.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(raw),
		}
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapError(op, err)
	}
	return body, nil
}

func wrapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &apperrors.TransportError{Op: op, Message: "request timed out", Err: err}
	}
	return &apperrors.TransportError{Op: op, Err: err}
}

// extractMessage pulls a human readable message out of an error body: the
// "message" or "error" JSON field, or else the trimmed text itself.
func extractMessage(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, key := range []string{"message", "error"} {
			if msg, ok := payload[key].(string); ok && strings.TrimSpace(msg) != "" {
				return strings.TrimSpace(msg)
			}
		}
		return ""
	}
	return text
}

func decodeTask(op string, body []byte) (model.Task, error) {
	var task model.Task
	if len(body) == 0 {
		return task, nil
	}
	if err := json.Unmarshal(body, &task); err != nil {
		return model.Task{}, &apperrors.TransportError{Op: op, Message: "invalid response body", Err: err}
	}
	return task, nil
}

// decodeTaskPage accepts both the {"data": [...]} envelope and a bare array.
func decodeTaskPage(body []byte) (model.TaskPage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return model.TaskPage{}, nil
	}
	if trimmed[0] == '[' {
		var tasks []model.Task
		if err := json.Unmarshal(trimmed, &tasks); err != nil {
			return model.TaskPage{}, &apperrors.TransportError{Op: "list tasks", Message: "invalid response body", Err: err}
		}
		return model.TaskPage{Data: tasks}, nil
	}
	var page model.TaskPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return model.TaskPage{}, &apperrors.TransportError{Op: "list tasks", Message: "invalid response body", Err: err}
	}
	return page, nil
}
