// Package opencode is an HTTP client for an opencode server: sessions,
// prompts, message queries, aborts and the /event push stream.
package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the server reports a missing session.
	ErrNotFound = errors.New("not found")
	// ErrStreamClosed is reported when the event stream ends and cannot be reopened.
	ErrStreamClosed = errors.New("event stream closed")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to one opencode server.
type Client struct {
	// baseURL is the base URL of the server (e.g., "http://127.0.0.1:4096")
	baseURL string

	// httpClient is used for request/response calls
	httpClient *http.Client

	// streamClient is used for the long-lived /event connection
	streamClient *http.Client

	// directory scopes requests to a project directory when set
	directory string

	// reconnectInterval is the time to wait between reconnection attempts
	reconnectInterval time.Duration

	// maxReconnectAttempts bounds consecutive failed reconnections (0 = unlimited)
	maxReconnectAttempts int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for request/response calls.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDirectory scopes every request to the given project directory.
func WithDirectory(dir string) ClientOption {
	return func(c *Client) {
		c.directory = dir
	}
}

// WithReconnectInterval sets the interval between stream reconnection attempts.
func WithReconnectInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectInterval = interval
	}
}

// WithMaxReconnectAttempts sets the maximum number of consecutive reconnection attempts.
// Set to 0 for unlimited attempts.
func WithMaxReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.maxReconnectAttempts = attempts
	}
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{
			Timeout: 0, // No timeout for streaming connections
		},
		reconnectInterval:    2 * time.Second,
		maxReconnectAttempts: 5,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the base URL of the server.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ParseModel splits a "provider/model" selector. The model id may itself contain slashes.
func ParseModel(s string) (*ModelRef, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || provider == "" || model == "" {
		return nil, fmt.Errorf("invalid model %q: expected provider/model", s)
	}
	return &ModelRef{ProviderID: provider, ModelID: model}, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/config", nil, nil)
}

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context, title string) (*Session, error) {
	body := map[string]string{}
	if title != "" {
		body["title"] = title
	}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/session", body, &s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if s.ID == "" {
		return nil, errors.New("failed to create session: server returned no id")
	}
	return &s, nil
}

// Prompt sends a prompt to a session without waiting for the agent's reply.
// Completion is observed on the event stream.
func (c *Client) Prompt(ctx context.Context, sessionID string, in PromptInput) error {
	body := promptBody{
		Agent: in.Agent,
		Parts: []textPartInput{{Type: PartText, Text: in.Text}},
	}
	if in.Model != "" {
		ref, err := ParseModel(in.Model)
		if err != nil {
			return err
		}
		body.Model = ref
	}

	path := "/session/" + url.PathEscape(sessionID) + "/prompt_async"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("failed to send prompt: %w", err)
	}
	return nil
}

// Messages lists every message of a session, oldest first.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	path := "/session/" + url.PathEscape(sessionID) + "/message"
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// LatestAssistantMessage returns the most recent assistant message of a session,
// or nil if the session has none.
func (c *Client) LatestAssistantMessage(ctx context.Context, sessionID string) (*Message, error) {
	msgs, err := c.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Info.Role == RoleAssistant {
			return &msgs[i], nil
		}
	}
	return nil, nil
}

// SessionStatus returns what a session is doing right now. The server only
// lists sessions that are not idle, so a missing entry means idle.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (StatusInfo, error) {
	var all map[string]StatusInfo
	if err := c.do(ctx, http.MethodGet, "/session/status", nil, &all); err != nil {
		return StatusInfo{}, fmt.Errorf("failed to get session status: %w", err)
	}
	if st, ok := all[sessionID]; ok && st.Type != "" {
		return st, nil
	}
	return StatusInfo{Type: StatusIdle}, nil
}

// Abort cancels whatever the session is currently doing.
func (c *Client) Abort(ctx context.Context, sessionID string) error {
	path := "/session/" + url.PathEscape(sessionID) + "/abort"
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("failed to abort session: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	u := c.baseURL + path
	if c.directory != "" {
		u += "?directory=" + url.QueryEscape(c.directory)
	}
	return u
}

// do performs a JSON request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
