package portalclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeHTTP indicates an unexpected HTTP status
	ErrTypeHTTP
	// ErrTypeParse indicates a response the client could not understand
	ErrTypeParse
	// ErrTypeValidation indicates invalid input
	ErrTypeValidation
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the portal refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeDropped indicates the portal closed the connection without answering
	ErrTypeDropped
	// ErrTypeNotConnected indicates the device has not joined the network yet
	ErrTypeNotConnected
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeDropped:
		return "Connection Dropped"
	case ErrTypeNotConnected:
		return "Not Connected"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// PortalError represents an error that occurred while talking to a setup portal
type PortalError struct {
	Type       ErrorType
	Message    string
	StatusCode int   // HTTP status code (if applicable)
	Err        error // Underlying error (if any)
	Retryable  bool
}

// Error implements the error interface
func (e *PortalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *PortalError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a typed error
func ClassifyNetworkError(err error) *PortalError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &PortalError{Type: ErrTypeTimeout, Message: "request timed out", Err: err, Retryable: true}
	}

	// The portal closes connections it does not answer
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return &PortalError{Type: ErrTypeDropped, Message: "portal closed the connection without a response", Err: err, Retryable: false}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &PortalError{Type: ErrTypeDNS, Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name), Err: err, Retryable: false}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &PortalError{Type: ErrTypeConnectionRefused, Message: "portal refused connection", Err: err, Retryable: true}
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return &PortalError{Type: ErrTypeNetwork, Message: "portal unreachable", Err: err, Retryable: true}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err)
	}

	return &PortalError{Type: ErrTypeNetwork, Message: "network error occurred", Err: err, Retryable: true}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *PortalError {
	classified := ClassifyNetworkError(err)
	if classified != nil {
		classified.Message = message + ": " + classified.Message
		return classified
	}
	return &PortalError{Type: ErrTypeNetwork, Message: message, Retryable: true}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string) *PortalError {
	return &PortalError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  statusCode == 503, // the portal answers 503 while its queue is full
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *PortalError {
	return &PortalError{Type: ErrTypeParse, Message: message, Err: err}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *PortalError {
	return &PortalError{Type: ErrTypeValidation, Message: message}
}

// NewNotConnectedError reports a device that has not joined the network yet
func NewNotConnectedError(message string) *PortalError {
	return &PortalError{Type: ErrTypeNotConnected, Message: message}
}

// typeOf returns the type of a *PortalError anywhere in err's chain.
func typeOf(err error) (ErrorType, bool) {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS || t == ErrTypeDropped)
}

// IsNotConnected checks if an error reports a device that is not connected yet
func IsNotConnected(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeNotConnected
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeValidation
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var pe *PortalError
	if !errors.As(err, &pe) {
		return "An unexpected error occurred. Please try again."
	}

	switch pe.Type {
	case ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeNetwork:
		return strings.Join([]string{
			"The setup portal could not be reached.",
			"Troubleshooting:",
			"  • Join the device's setup network (<product>-<id>)",
			"  • Check that the device is powered on and in setup mode",
			"  • Power-cycle the device three times quickly to force setup mode",
		}, "\n")

	case ErrTypeDNS:
		return "Could not resolve the portal host name. Use the access point address (usually 192.168.4.1)."

	case ErrTypeDropped, ErrTypeNotConnected:
		return strings.Join([]string{
			"The device has not joined the network yet.",
			"Troubleshooting:",
			"  • Check the network name and password",
			"  • Make sure the network is in range of the device",
			"  • Run status to see the last connection result",
		}, "\n")

	case ErrTypeHTTP:
		if pe.StatusCode == 503 {
			return "The portal is busy. Wait a moment and try again."
		}
		return fmt.Sprintf("The portal returned HTTP error %d.", pe.StatusCode)

	case ErrTypeParse:
		return "The portal response was not understood. The device firmware may be incompatible."

	case ErrTypeValidation:
		return "The credentials are invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var pe *PortalError
	if !errors.As(err, &pe) {
		return err.Error()
	}

	switch pe.Type {
	case ErrTypeTimeout:
		return "Portal not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Portal refused connection - is the device in setup mode?"
	case ErrTypeDNS:
		return "Cannot resolve portal hostname"
	case ErrTypeNetwork:
		return "Network error - check connection to the setup network"
	case ErrTypeDropped:
		return "Portal dropped the request"
	case ErrTypeNotConnected:
		return "Device not connected yet"
	case ErrTypeHTTP:
		return fmt.Sprintf("Portal error (HTTP %d)", pe.StatusCode)
	case ErrTypeParse:
		return "Failed to parse portal response"
	default:
		return pe.Message
	}
}
