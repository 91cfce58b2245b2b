package stream

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
	"sync"
	"time"
)

// ErrUnauthorized is returned when the server rejects the client's
// credentials.
var ErrUnauthorized = errors.New("unauthorized")

// SubmitRequest is the body of POST /runs.
type SubmitRequest struct {
	Source string `json:"source"`
	Input  string `json:"input,omitempty"`
}

// SubmitResponse is the body returned by POST /runs.
type SubmitResponse struct {
	ID string `json:"id"`
}

// CancelResponse is the body returned by POST /runs/{id}/cancel.
type CancelResponse struct {
	Status    string `json:"status"`
	CommandID string `json:"command_id"`
}

// RunSummary describes a run in the body returned by GET /runs.
type RunSummary struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastSeq    uint64     `json:"last_seq"`
}

// Client provides HTTP access to a run server. It handles authentication,
// run submission, cancellation, and long-poll event subscription with
// automatic reconnection and catch-up on missed events.
type Client struct {
	// baseURL is the base URL of the run server (e.g., "http://localhost:8374")
	baseURL string

	// httpClient is the HTTP client used for requests
	httpClient *http.Client

	// authToken is the optional authentication token
	authToken string

	// lastSeq is the sequence number of the last event received
	lastSeq uint64

	// mu protects lastSeq and authToken
	mu sync.RWMutex

	// reconnectInterval is the time to wait between reconnection attempts
	reconnectInterval time.Duration

	// maxReconnectAttempts is the maximum number of reconnection attempts (0 = unlimited)
	maxReconnectAttempts int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAuthToken sets the authentication token for the client.
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithReconnectInterval sets the interval between reconnection attempts.
func WithReconnectInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectInterval = interval
	}
}

// WithMaxReconnectAttempts sets the maximum number of reconnection attempts.
// Set to 0 for unlimited attempts.
func WithMaxReconnectAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.maxReconnectAttempts = attempts
	}
}

// NewClient creates a new Client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // No timeout for long-poll requests
		},
		reconnectInterval:    time.Second,
		maxReconnectAttempts: 0, // Unlimited by default
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Authenticate exchanges a password for a token and uses it for
// subsequent requests.
func (c *Client) Authenticate(ctx context.Context, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.postJSON(ctx, "/auth", map[string]string{"password": password}, &resp); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.authToken = resp.Token
	c.mu.Unlock()

	return resp.Token, nil
}

// Submit starts a run on the server and returns its ID.
func (c *Client) Submit(ctx context.Context, source string, input []byte) (string, error) {
	var resp SubmitResponse
	req := SubmitRequest{Source: source, Input: string(input)}
	if err := c.postJSON(ctx, "/runs", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("server returned no run id")
	}
	return resp.ID, nil
}

// Cancel asks the server to cancel a run. It returns once the request is
// accepted; the run reports StatusCancelled through its events.
func (c *Client) Cancel(ctx context.Context, runID string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.postJSON(ctx, "/runs/"+url.PathEscape(runID)+"/cancel", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns returns the runs the server knows about, oldest first.
func (c *Client) ListRuns(ctx context.Context) ([]RunSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/runs", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var runs []RunSummary
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return runs, nil
}

// Events returns a channel that receives the events of a run. It long-polls
// the server, reconnecting and catching up after errors. The event channel
// is closed after the status event is delivered, when the context is
// canceled, or when max reconnect attempts are exceeded; in the last case
// the error is sent on the error channel first.
// If fromSeq is 0, all events from the beginning are returned.
func (c *Client) Events(ctx context.Context, runID string, fromSeq uint64) (<-chan *Event, <-chan error) {
	eventCh := make(chan *Event, 100)
	errCh := make(chan error, 1)

	c.mu.Lock()
	if fromSeq > 0 {
		c.lastSeq = fromSeq - 1
	} else {
		c.lastSeq = 0
	}
	c.mu.Unlock()

	go c.subscriptionLoop(ctx, runID, eventCh, errCh)

	return eventCh, errCh
}

// subscriptionLoop handles the main subscription loop with reconnection logic.
func (c *Client) subscriptionLoop(ctx context.Context, runID string, eventCh chan<- *Event, errCh chan<- error) {
	defer close(eventCh)
	defer close(errCh)

	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		fromSeq := c.lastSeq + 1
		c.mu.RUnlock()

		done, err := c.pollEvents(ctx, runID, fromSeq, eventCh)
		if done || ctx.Err() != nil {
			return
		}
		if err == nil {
			attempts = 0
			continue
		}
		if errors.Is(err, ErrUnauthorized) {
			errCh <- err
			return
		}

		attempts++
		if c.maxReconnectAttempts > 0 && attempts >= c.maxReconnectAttempts {
			errCh <- fmt.Errorf("max reconnection attempts (%d) exceeded: %w", c.maxReconnectAttempts, err)
			return
		}

		// Wait before reconnecting
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectInterval):
			// Continue to reconnect
		}
	}
}

// pollEvents performs one long-poll request and forwards the events. done
// is true once the status event has been delivered.
func (c *Client) pollEvents(ctx context.Context, runID string, fromSeq uint64, eventCh chan<- *Event) (bool, error) {
	u := fmt.Sprintf("%s/runs/%s/events?from_seq=%d&wait=1", c.baseURL, url.PathEscape(runID), fromSeq)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return false, err
	}

	var events []*Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return false, fmt.Errorf("failed to decode events: %w", err)
	}

	for _, event := range events {
		// Update lastSeq before sending
		c.mu.Lock()
		if event.Seq > c.lastSeq {
			c.lastSeq = event.Seq
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return true, nil
		case eventCh <- event:
		}

		if event.Type == MessageTypeStatus {
			return true, nil
		}
	}
	return false, nil
}

// LastSeq returns the sequence number of the last received event.
func (c *Client) LastSeq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeq
}

// BaseURL returns the base URL of the run server.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// postJSON sends body as JSON and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.addAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// checkStatus turns a non-2xx response into an error.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// addAuthHeader adds the authorization header if a token is configured.
func (c *Client) addAuthHeader(req *http.Request) {
	c.mu.RLock()
	token := c.authToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
