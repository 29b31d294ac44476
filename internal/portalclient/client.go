package portalclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for idempotent requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 5 * time.Second

	// DefaultPollInterval is how often WaitForConnected reads /status
	DefaultPollInterval = 1 * time.Second
)

// Client talks to a device's captive setup portal.
type Client struct {
	// BaseURL is the portal root (e.g., "http://192.168.4.1")
	BaseURL string

	// MaxRetries is the maximum number of retries for idempotent requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay time.Duration

	http *resty.Client
}

// NewClient creates a client for the portal at ip:port.
func NewClient(ip string, port int) *Client {
	return NewClientWithURL("http://" + net.JoinHostPort(ip, strconv.Itoa(port)))
}

// NewClientWithURL creates a client with a full base URL.
func NewClientWithURL(baseURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		BaseURL:       baseURL,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
		// The portal serves one request at a time; keep-alive would pin it
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(DefaultTimeout).
			SetTransport(&http.Transport{DisableKeepAlives: true}),
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.SetTimeout(timeout)
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// get performs a single GET and returns the status code and body.
func (c *Client) get(ctx context.Context, path string, query map[string]string) (int, string, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err != nil {
		return 0, "", NewNetworkError("GET "+path+" failed", err)
	}
	logging.Debug("Portal request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("latency", resp.Time()),
	)
	return resp.StatusCode(), resp.String(), nil
}

// withRetry runs attempt until it succeeds, fails for good or ctx ends.
func (c *Client) withRetry(ctx context.Context, attempt func() error) error {
	var lastErr error
	currentDelay := c.RetryDelay

	for i := 0; i <= c.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(currentDelay):
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
			currentDelay *= 2
			if currentDelay > c.MaxRetryDelay {
				currentDelay = c.MaxRetryDelay
			}
		}

		err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry non-retryable errors
		if !IsRetryable(err) {
			return err
		}
		logging.Debug("Retrying portal request", zap.Int("attempt", i+1), zap.Error(err))
	}
	return lastErr
}

// Ping checks that the portal answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Info(ctx)
	return err
}

// Info reads the firmware version from /info.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info *Info
	err := c.withRetry(ctx, func() error {
		code, body, err := c.get(ctx, "/info", nil)
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return NewHTTPError(code, fmt.Sprintf("unexpected status code: %d", code))
		}
		info = parseInfo(body)
		return nil
	})
	return info, err
}

// Status reads the connection state from /status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status *Status
	err := c.withRetry(ctx, func() error {
		code, body, err := c.get(ctx, "/status", nil)
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return NewHTTPError(code, fmt.Sprintf("unexpected status code: %d", code))
		}
		status, err = parseStatusPage(body)
		if err != nil {
			return NewParseError("failed to parse status page", err)
		}
		return nil
	})
	return status, err
}

// SubmitCredentials hands the network credentials to the device, which
// starts joining the network at once. With noTimeout set the device keeps
// trying until it connects. It is not retried: every submission restarts
// the attempt.
func (c *Client) SubmitCredentials(ctx context.Context, ssid, passphrase string, noTimeout bool) error {
	if err := ValidateCredentials(ssid, passphrase); err != nil {
		return err
	}

	query := map[string]string{
		"ssid":     ssid,
		"password": passphrase,
	}
	if noTimeout {
		query["notimeout"] = ""
	}

	code, _, err := c.get(ctx, "/", query)
	if err != nil {
		return err
	}
	// The page itself may be missing; the credentials are taken either way
	if code != http.StatusOK && code != http.StatusNotFound {
		return NewHTTPError(code, fmt.Sprintf("credential submission failed with status %d", code))
	}
	logging.Info("Credentials submitted", zap.String("ssid", ssid), zap.Bool("no_timeout", noTimeout))
	return nil
}

// ReadyToExit reports whether the device would accept ExitSetup.
func (c *Client) ReadyToExit(ctx context.Context) (bool, error) {
	var ready bool
	err := c.withRetry(ctx, func() error {
		code, body, err := c.get(ctx, "/promptforexitsetup", nil)
		if err != nil {
			return err
		}
		switch {
		case code == http.StatusOK && body == "true":
			ready = true
		case code == http.StatusInternalServerError && body == "false":
			ready = false
		default:
			return NewHTTPError(code, fmt.Sprintf("unexpected response %d %q", code, body))
		}
		return nil
	})
	return ready, err
}

// ExitSetup asks the device to persist the credentials and leave setup
// mode. The portal shuts down afterwards. A device that is not connected
// drops the request; that is reported as a not-connected error.
func (c *Client) ExitSetup(ctx context.Context) error {
	code, body, err := c.get(ctx, "/exitsetup", nil)
	if err != nil {
		if t, ok := typeOf(err); ok && t == ErrTypeDropped {
			return NewNotConnectedError("device refused to leave setup before connecting")
		}
		return err
	}
	if code != http.StatusOK {
		return NewHTTPError(code, fmt.Sprintf("exit failed with status %d: %s", code, body))
	}
	logging.Info("Device left setup mode", zap.String("portal", c.BaseURL))
	return nil
}

// WaitForConnected polls /status until the device reports Connected or
// ctx ends. onStatus, if set, sees every status read.
func (c *Client) WaitForConnected(ctx context.Context, interval time.Duration, onStatus func(*Status)) (*Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *Status
	for {
		status, err := c.Status(ctx)
		if err == nil {
			last = status
			if onStatus != nil {
				onStatus(status)
			}
			if status.Connected() {
				return status, nil
			}
		} else if ctx.Err() == nil {
			logging.Debug("Status poll failed", zap.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if last != nil {
				return last, NewNotConnectedError(fmt.Sprintf("device still reports %q", last.Connection))
			}
			return nil, fmt.Errorf("waiting for connection: %w", ctx.Err())
		}
	}
}
