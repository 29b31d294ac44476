package connmgr

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is carried by a Result whose association did not finish in time.
	ErrTimeout = errors.New("association timed out")

	// ErrTransport is carried by a Result whose outbound client could not be opened.
	ErrTransport = errors.New("outbound client could not be opened")
)

// Mode is the operating mode of the manager.
type Mode int

const (
	// ModeStation joins the stored network.
	ModeStation Mode = iota
	// ModeSetup runs the access point and captive portal.
	ModeSetup
)

// String returns the mode name used in logs
func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "station"
	case ModeSetup:
		return "setup"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Cause tells why the last connection attempt is not (yet) usable.
type Cause int

const (
	// CauseNone means the last attempt connected and the outbound client is open.
	CauseNone Cause = iota
	// CausePending means an attempt is in flight.
	CausePending
	// CauseTimeout means association did not complete within the connect timeout.
	CauseTimeout
	// CauseTransport means the outbound client could not be (re)opened.
	CauseTransport
	// CauseCanceled means the caller's context ended while waiting.
	CauseCanceled
)

// String returns the cause name used in logs
func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "ok"
	case CausePending:
		return "pending"
	case CauseTimeout:
		return "timeout"
	case CauseTransport:
		return "transport"
	case CauseCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Cause(%d)", int(c))
	}
}

// Result is the latched outcome of the last connection attempt. It stays
// until the next attempt starts or the outbound client is reopened.
type Result struct {
	Cause Cause
	Err   error
}

// Failed reports whether the result rules out being connected.
func (r Result) Failed() bool {
	return r.Cause != CauseNone
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Cause, r.Err)
	}
	return r.Cause.String()
}
