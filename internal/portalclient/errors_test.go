package portalclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

// timeoutError is a net.Error that reports a timeout
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func wrapURL(err error) error {
	return &url.Error{Op: "Get", URL: "http://192.168.4.1/status", Err: err}
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{"timeout", wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}}), ErrTypeTimeout, true},
		{"refused", wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}), ErrTypeConnectionRefused, true},
		{"unreachable", wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH}), ErrTypeNetwork, true},
		{"dns", wrapURL(&net.DNSError{Name: "portal.local", Err: "no such host"}), ErrTypeDNS, false},
		{"dropped", wrapURL(io.EOF), ErrTypeDropped, false},
		{"reset", wrapURL(&net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}), ErrTypeDropped, false},
		{"other", errors.New("something odd"), ErrTypeNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := ClassifyNetworkError(tt.err)
			if pe == nil {
				t.Fatal("ClassifyNetworkError() = nil")
			}
			if pe.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", pe.Type, tt.wantType)
			}
			if pe.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", pe.Retryable, tt.wantRetryable)
			}
		})
	}

	if ClassifyNetworkError(nil) != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestPortalError_Chain(t *testing.T) {
	cause := io.EOF
	err := fmt.Errorf("exit: %w", NewNetworkError("GET /exitsetup failed", wrapURL(cause)))

	if !errors.Is(err, io.EOF) {
		t.Error("errors.Is should reach the cause")
	}
	if !IsNetworkError(err) {
		t.Error("wrapped error should still be a network error")
	}
	if !strings.Contains(err.Error(), "GET /exitsetup failed") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNewHTTPError_Retryable(t *testing.T) {
	if !NewHTTPError(503, "busy").Retryable {
		t.Error("503 should be retryable")
	}
	if NewHTTPError(404, "missing").Retryable {
		t.Error("404 should not be retryable")
	}
}

func TestMessages(t *testing.T) {
	errs := []error{
		NewHTTPError(503, "busy"),
		NewHTTPError(500, "boom"),
		NewParseError("bad", errors.New("x")),
		NewValidationError("empty ssid"),
		NewNotConnectedError("not yet"),
		ClassifyNetworkError(wrapURL(io.EOF)),
		ClassifyNetworkError(wrapURL(&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})),
	}
	for _, err := range errs {
		if GetShortErrorMessage(err) == "" {
			t.Errorf("GetShortErrorMessage(%v) is empty", err)
		}
		if GetTroubleshootingHint(err) == "" {
			t.Errorf("GetTroubleshootingHint(%v) is empty", err)
		}
	}

	plain := errors.New("plain")
	if GetShortErrorMessage(plain) != "plain" {
		t.Error("plain errors should keep their message")
	}
}
