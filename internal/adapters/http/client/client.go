// Package client talks to a running skillboard server. Commands that change
// ratings go through it so the server stays the only writer of the store.
package client

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

	service "github.com/okian/skillboard/internal/app"
	"github.com/okian/skillboard/internal/domain/model"
)

const defaultTimeout = 10 * time.Second

// Client calls the skillboard HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit posts msg to /messages.
func (c *Client) Submit(ctx context.Context, msg model.Message) (model.Submission, error) {
	var res model.Submission
	err := c.do(ctx, http.MethodPost, "/messages", msg, &res)
	return res, err
}

// RequestRebuild posts to /rebuild.
func (c *Client) RequestRebuild(ctx context.Context, channelID string) (model.JobStatus, error) {
	var st model.JobStatus
	err := c.do(ctx, http.MethodPost, "/rebuild", map[string]string{"channel_id": channelID}, &st)
	return st, err
}

// Job fetches /jobs/{id}.
func (c *Client) Job(ctx context.Context, id string) (model.JobStatus, error) {
	var st model.JobStatus
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &st)
	return st, err
}

// WaitJob polls id every interval until it is done or failed.
func (c *Client) WaitJob(ctx context.Context, id string, interval time.Duration) (model.JobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Job(ctx, id)
		if err != nil {
			return st, err
		}
		if st.State == model.JobDone || st.State == model.JobFailed {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", service.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// statusError maps an API error response back to the service error it
// was raised for.
func statusError(status int, data []byte) error {
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil || eb.Message == "" {
		eb.Message = http.StatusText(status)
	}

	var kind error
	switch status {
	case http.StatusBadRequest:
		kind = service.ErrInvalidMessage
	case http.StatusNotFound:
		kind = service.ErrJobNotFound
	case http.StatusConflict:
		kind = service.ErrRebuildInProgress
	case http.StatusTooManyRequests:
		kind = service.ErrBusy
	case http.StatusServiceUnavailable:
		kind = service.ErrUnavailable
	default:
		return fmt.Errorf("%w: status %d: %s", ErrServer, status, eb.Message)
	}
	return fmt.Errorf("%w: %s", kind, eb.Message)
}
