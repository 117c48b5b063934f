// Package client is a Go client for the retention agent HTTP API.
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

	"github.com/ashureev/retention-agent/internal/domain"
)

// Client calls the retention API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ChatRequest mirrors the POST /chat body.
type ChatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message,omitempty"`
	Action   string `json:"action,omitempty"`
}

// ChatResponse is any POST /chat response body.
type ChatResponse struct {
	Status   string         `json:"status"`
	Response string         `json:"response,omitempty"`
	Tool     string         `json:"tool,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Message  string         `json:"message,omitempty"`
	ThreadID string         `json:"thread_id,omitempty"`
}

// ThreadView is the GET /api/threads/{id} body.
type ThreadView struct {
	domain.Thread
	Status domain.ThreadStatus `json:"status"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Chat posts a raw chat request. Error outcomes are returned with a non-nil
// *APIError alongside the decoded body.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", req, &out)
	return &out, err
}

// Send posts a user message.
func (c *Client) Send(ctx context.Context, threadID, message string) (*ChatResponse, error) {
	return c.Chat(ctx, ChatRequest{ThreadID: threadID, Message: message})
}

// Approve approves the pending action.
func (c *Client) Approve(ctx context.Context, threadID string) (*ChatResponse, error) {
	return c.Chat(ctx, ChatRequest{ThreadID: threadID, Action: string(domain.DecisionApprove)})
}

// Reject rejects the pending action.
func (c *Client) Reject(ctx context.Context, threadID string) (*ChatResponse, error) {
	return c.Chat(ctx, ChatRequest{ThreadID: threadID, Action: string(domain.DecisionReject)})
}

// NewThread allocates a thread id on the server.
func (c *Client) NewThread(ctx context.Context) (string, error) {
	var out struct {
		ThreadID string `json:"thread_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/threads", nil, &out); err != nil {
		return "", err
	}
	return out.ThreadID, nil
}

// Thread fetches a stored thread.
func (c *Client) Thread(ctx context.Context, threadID string) (*ThreadView, error) {
	var out ThreadView
	if err := c.do(ctx, http.MethodGet, "/api/threads/"+threadID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health calls GET /readyz.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/readyz", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
