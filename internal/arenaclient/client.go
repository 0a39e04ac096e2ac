// Package arenaclient talks to a running match server: the HTTP lobby over
// fasthttp and the match gateway over websocket.
package arenaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the TCP dialer; tests use in-memory listeners.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx lobby reply.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lobby api error: status=%d message=%s", e.Status, e.Message)
}

type envelope struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

type Guest struct {
	Token         string    `json:"token"`
	ParticipantID string    `json:"participantId"`
	Name          string    `json:"name"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type Match struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	WhiteID  string   `json:"whiteId"`
	BlackID  string   `json:"blackId"`
	Seat     string   `json:"seat"`
	Position string   `json:"position"`
	Moves    []string `json:"moves"`
	Result   string   `json:"result"`
	WinnerID string   `json:"winnerId"`
	PGN      string   `json:"pgn"`
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodGet, "/healthz", "", nil, nil, true)
}

// Guest asks the lobby for a guest identity.
func (c *Client) Guest(ctx context.Context, name string) (*Guest, error) {
	var g Guest
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/guest", "", map[string]string{"name": name}, &g, false); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) CreateMatch(ctx context.Context, token, side string) (*Match, error) {
	var m Match
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/matches", token, map[string]string{"side": side}, &m, false); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) JoinMatch(ctx context.Context, token, id string) (*Match, error) {
	var m Match
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/matches/"+id+"/join", token, nil, &m, false); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetMatch(ctx context.Context, token, id string) (*Match, error) {
	var m Match
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/matches/"+id, token, nil, &m, true); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	if token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		var env envelope
		_ = json.Unmarshal(resp.Body(), &env)
		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := &APIError{Status: status, Message: env.Message, Fields: env.Errors}
			if apiErr.Message == "" {
				apiErr.Message = truncate(string(resp.Body()), 512)
			}
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
