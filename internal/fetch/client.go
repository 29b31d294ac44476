package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

const (
	// DefaultTimeout bounds a single GET.
	DefaultTimeout = 10 * time.Second

	breakerName          = "fetch"
	breakerFailureCount  = 3
	breakerOpenTimeout   = 30 * time.Second
	breakerHalfOpenRequests = 1
)

var (
	// ErrClosed is returned by Get when no endpoint is open.
	ErrClosed = errors.New("fetch client is not open")

	// ErrCircuitOpen is returned while the endpoint is considered unhealthy.
	ErrCircuitOpen = errors.New("fetch circuit open")
)

// ServerError is a 5xx response. It counts against the circuit breaker.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: HTTP %d", e.StatusCode)
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
}

// Client performs GET requests against a single endpoint.
//
// Open (re)creates the HTTP transport; it fails while the circuit breaker is
// open so callers treat a failing endpoint the same as a broken transport.
type Client struct {
	timeout   time.Duration
	userAgent string
	reuse     bool

	cb *gobreaker.CircuitBreaker

	http     *resty.Client
	endpoint string
	body     []byte
}

// New creates a closed client.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureCount
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				logging.Warn("Fetch circuit opened", zap.String("cb_name", name))
			case gobreaker.StateHalfOpen:
				logging.Info("Fetch circuit half-open", zap.String("cb_name", name))
			case gobreaker.StateClosed:
				logging.Info("Fetch circuit closed", zap.String("cb_name", name))
			}
		},
	}

	return &Client{
		timeout: opts.Timeout,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// SetReuse enables HTTP keep-alive on transports created by later Opens.
func (c *Client) SetReuse(reuse bool) {
	c.reuse = reuse
}

// SetUserAgent sets the User-Agent sent by later Opens.
func (c *Client) SetUserAgent(ua string) {
	c.userAgent = ua
}

// Open points the client at endpoint with a fresh transport.
// It returns false for an invalid endpoint or while the circuit is open.
func (c *Client) Open(endpoint string) bool {
	c.Close()

	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		logging.Warn("Invalid fetch endpoint", zap.String("endpoint", endpoint))
		return false
	}
	if c.cb.State() == gobreaker.StateOpen {
		logging.Debug("Fetch circuit open, not reopening", zap.String("endpoint", endpoint))
		return false
	}

	client := resty.New().
		SetTimeout(c.timeout).
		SetTransport(&http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			DisableKeepAlives: !c.reuse,
		})
	if c.userAgent != "" {
		client.SetHeader("User-Agent", c.userAgent)
	}

	c.http = client
	c.endpoint = endpoint
	return true
}

// Close drops the transport. Closing a closed client is a no-op.
func (c *Client) Close() {
	if c.http != nil {
		c.http.GetClient().CloseIdleConnections()
	}
	c.http = nil
	c.endpoint = ""
	c.body = nil
}

// IsOpen reports whether an endpoint is open.
func (c *Client) IsOpen() bool {
	return c.http != nil
}

// Endpoint returns the open endpoint, or "".
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Get requests the endpoint and returns the HTTP status. The body of the
// last response is available from Body.
func (c *Client) Get(ctx context.Context) (int, error) {
	if c.http == nil {
		return 0, ErrClosed
	}
	c.body = nil

	start := time.Now()
	result, err := c.cb.Execute(func() (interface{}, error) {
		resp, err := c.http.R().SetContext(ctx).Get(c.endpoint)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, &ServerError{StatusCode: resp.StatusCode()}
		}
		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return 0, ErrCircuitOpen
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode, err
	}
	if err != nil {
		logging.Debug("Fetch failed", zap.String("endpoint", c.endpoint), zap.Error(err))
		return 0, fmt.Errorf("GET %s: %w", c.endpoint, err)
	}

	resp := result.(*resty.Response)
	c.body = resp.Body()

	logging.Debug("Fetch complete",
		zap.String("endpoint", c.endpoint),
		zap.Int("status", resp.StatusCode()),
		zap.Int("bytes", len(c.body)),
		zap.Duration("latency", time.Since(start)),
	)
	return resp.StatusCode(), nil
}

// Body returns the body of the last successful Get.
func (c *Client) Body() string {
	return string(c.body)
}
