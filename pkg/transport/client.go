// Package transport carries chat requests to the model-serving endpoint and
// streams the response back as stream events.
//
// The endpoint and credentials are resolved by the caller and injected through
// Client; nothing here discovers them.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/germanamz/chatstream/pkg/chaterr"
)

// Auth holds authentication settings for the chat endpoint.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// Client holds the connection settings shared by the streamers.
type Client struct {
	BaseURL      string                // Endpoint base URL (no trailing slash).
	Auth         Auth                  // Authentication settings.
	Client       *http.Client          // HTTP client; a default with a long timeout is used when nil.
	Headers      map[string]string     // Extra headers applied to every request.
	HeaderParser RateLimitHeaderParser // Optional parser for rate limit response headers.

	rateLimitInfo atomic.Pointer[RateLimitInfo]
	clientOnce    sync.Once
	defaultClient *http.Client
}

// NewClient creates a Client. A nil httpClient falls back to a default client
// at call time.
func NewClient(baseURL string, auth Auth, httpClient *http.Client) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Auth:    auth,
		Client:  httpClient,
	}
}

// LastRateLimitInfo returns the most recently observed rate limit info, or nil.
func (c *Client) LastRateLimitInfo() *RateLimitInfo { return c.rateLimitInfo.Load() }

func (c *Client) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}

	c.clientOnce.Do(func() {
		c.defaultClient = &http.Client{Timeout: 10 * time.Minute}
	})

	return c.defaultClient
}

// applyHeaders sets auth and custom headers on h.
func (c *Client) applyHeaders(h http.Header) {
	if c.Auth.Key != "" {
		header := c.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := c.Auth.Key
		switch {
		case header == "Authorization":
			scheme := c.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}
			value = scheme + " " + value
		case c.Auth.Scheme != "":
			value = c.Auth.Scheme + " " + value
		}

		h.Set(header, value)
	}

	for k, v := range c.Headers {
		h.Set(k, v)
	}
}

// NewRequest builds an *http.Request with the base URL, auth, and custom
// headers already applied.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	c.applyHeaders(req.Header)

	return req, nil
}

// Do sends the request using the configured HTTP client and records rate
// limit headers when a parser is set.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient().Do(req) //nolint:gosec // URL is built from trusted BaseURL config, not user input.
	if err != nil {
		return nil, err
	}

	c.recordRateLimit(resp.Header)

	return resp, nil
}

// recordRateLimit keeps the rate limit info found in h, if any.
func (c *Client) recordRateLimit(h http.Header) {
	if c.HeaderParser == nil {
		return
	}
	if info := c.HeaderParser(h, time.Now()); info != nil {
		c.rateLimitInfo.Store(info)
	}
}

// checkStatus turns a non-2xx response into a *chaterr.RateLimitError (429)
// or a *chaterr.TransportError carrying the status code and body.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	body := strings.TrimSpace(string(respBody))

	if resp.StatusCode == http.StatusTooManyRequests {
		return &chaterr.RateLimitError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       body,
		}
	}

	return &chaterr.TransportError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("unexpected status: %s", body),
	}
}

// wsURL converts the BaseURL to a WebSocket URL and appends the path.
// https becomes wss, http becomes ws. URLs that already use ws/wss are
// left unchanged.
func (c *Client) wsURL(path string) string {
	u := c.BaseURL + path

	if rest, ok := strings.CutPrefix(u, "https://"); ok {
		return "wss://" + rest
	}
	if rest, ok := strings.CutPrefix(u, "http://"); ok {
		return "ws://" + rest
	}

	return u
}

// DialWS establishes a WebSocket connection to the given path with auth and
// custom headers applied.
func (c *Client) DialWS(ctx context.Context, path string) (*websocket.Conn, error) {
	h := make(http.Header)
	c.applyHeaders(h)

	conn, resp, err := websocket.Dial(ctx, c.wsURL(path), &websocket.DialOptions{
		HTTPClient: c.httpClient(),
		HTTPHeader: h,
	})
	if err != nil {
		te := &chaterr.TransportError{Op: "dial websocket", Err: err}
		if resp != nil {
			te.StatusCode = resp.StatusCode
		}
		return nil, te
	}
	if resp != nil {
		c.recordRateLimit(resp.Header)
	}

	return conn, nil
}
