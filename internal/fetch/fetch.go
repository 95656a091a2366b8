// Package fetch performs bounded HTTP GETs for feeds and web pages.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds the connect phase and the whole request.
const DefaultTimeout = 5 * time.Second

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "skimmer/1.0 (+https://github.com/bryan-buckman/skimmer)"

// Kind classifies a fetch failure.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindConnectTimeout
	KindReadTimeout
	KindConnection
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindConnectTimeout:
		return "connect timeout"
	case KindReadTimeout:
		return "read timeout"
	case KindConnection:
		return "connection error"
	case KindStatus:
		return "bad status"
	default:
		return "unknown"
	}
}

// Error is returned for every failed fetch.
type Error struct {
	URL        string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("get %s: %s %d", e.URL, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("get %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a connect or read timeout.
func IsTimeout(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == KindConnectTimeout || fe.Kind == KindReadTimeout
	}
	return false
}

// Response is the result of a GET.
type Response struct {
	StatusCode int
	URL        *url.URL // final URL after redirects
	Body       []byte
}

// Client issues GET requests with a per-request timeout. No retries are made.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	maxBody   int64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps response body size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a Client. Unless replaced, the transport's dialer uses the same
// timeout so that connect timeouts are reported as such.
func New(opts ...Option) *Client {
	c := &Client{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
		maxBody:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.DialContext = (&net.Dialer{
			Timeout:   c.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		transport.ResponseHeaderTimeout = c.timeout
		transport.MaxIdleConnsPerHost = 10
		c.http = &http.Client{Transport: transport}
	}
	return c
}

// Get fetches rawURL and returns the response for any status code.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindRequest, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, classify(rawURL, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		URL:        resp.Request.URL,
		Body:       body,
	}, nil
}

// Fetch fetches rawURL and returns its body, failing on non-2xx statuses.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{URL: rawURL, Kind: KindStatus, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// classify maps a transport error to a Kind.
func classify(rawURL string, err error) *Error {
	var opErr *net.OpError
	dialing := errors.As(err, &opErr) && opErr.Op == "dial"

	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())

	switch {
	case timedOut && dialing:
		return &Error{URL: rawURL, Kind: KindConnectTimeout, Err: err}
	case timedOut:
		return &Error{URL: rawURL, Kind: KindReadTimeout, Err: err}
	default:
		return &Error{URL: rawURL, Kind: KindConnection, Err: err}
	}
}
