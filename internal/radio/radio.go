package radio

import (
	"fmt"
	"net"
)

// Status is the association state reported by a radio.
type Status int

const (
	StatusIdle Status = iota
	StatusNoSSID
	StatusConnected
	StatusConnectFailed
	StatusConnectionLost
	StatusDisconnected
)

// String returns the status name used in logs
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusNoSSID:
		return "NO_SSID"
	case StatusConnected:
		return "CONNECTED"
	case StatusConnectFailed:
		return "CONNECT_FAILED"
	case StatusConnectionLost:
		return "CONNECTION_LOST"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Mode selects which interfaces the radio runs.
type Mode int

const (
	// ModeStation joins an existing network only.
	ModeStation Mode = iota
	// ModeAccessPointStation broadcasts an access point while still able to
	// join a network, which setup needs to validate submitted credentials.
	ModeAccessPointStation
)

// String returns the mode name used in logs
func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "STA"
	case ModeAccessPointStation:
		return "AP_STA"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Radio is the wireless driver the connection manager controls.
//
// Begin only starts association; callers poll Status until it reports
// StatusConnected or they give up. Implementations must not block in Begin.
type Radio interface {
	Disconnect() error
	Begin(ssid, passphrase string) error
	Status() Status
	SetMode(mode Mode) error
	StartAccessPoint(name string) (net.IP, error)
	StopAccessPoint() error
	// HardwareID returns a stable id such as the low bytes of the MAC
	// address, or "" when the driver has none.
	HardwareID() string
	LocalIP() net.IP
}
