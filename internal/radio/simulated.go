package radio

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

// DefaultAccessPointIP is the address the simulated access point hands out.
var DefaultAccessPointIP = net.IPv4(192, 168, 4, 1)

// ErrAccessPointMode is returned when an access point is started outside
// ModeAccessPointStation.
var ErrAccessPointMode = errors.New("access point requires AP_STA mode")

// SimulatedConfig configures a Simulated radio.
type SimulatedConfig struct {
	// Networks maps joinable SSIDs to their passphrase ("" for open networks)
	Networks map[string]string

	// AssociationDelay is how long Begin takes to reach a final status
	AssociationDelay time.Duration

	// HardwareID is returned by HardwareID ("" simulates a radio without one)
	HardwareID string

	// StationIP is reported by LocalIP once associated
	StationIP net.IP

	// Now overrides the clock (tests)
	Now func() time.Time
}

// Simulated is an in-memory radio. Association succeeds when the SSID is in
// the network table and the passphrase matches, after AssociationDelay.
type Simulated struct {
	mu  sync.Mutex
	cfg SimulatedConfig
	now func() time.Time

	mode      Mode
	status    Status
	apRunning bool
	apName    string

	pending   bool
	ssid      string
	pass      string
	startedAt time.Time

	beginCalls int
}

// NewSimulated creates a simulated radio in station mode.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Networks == nil {
		cfg.Networks = make(map[string]string)
	}
	if cfg.StationIP == nil {
		cfg.StationIP = net.IPv4(192, 168, 1, 50)
	}
	return &Simulated{
		cfg:    cfg,
		now:    now,
		status: StatusIdle,
	}
}

// Disconnect drops any association or pending attempt.
func (s *Simulated) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = false
	s.status = StatusDisconnected
	return nil
}

// Begin starts associating with ssid.
func (s *Simulated) Begin(ssid, passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.beginCalls++
	s.pending = true
	s.ssid = ssid
	s.pass = passphrase
	s.startedAt = s.now()
	s.status = StatusIdle

	logging.Debug("Simulated radio associating",
		zap.String("ssid", ssid),
		zap.Duration("delay", s.cfg.AssociationDelay),
	)
	return nil
}

// Status returns the association state, resolving a pending attempt once
// the association delay has passed.
func (s *Simulated) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending && s.now().Sub(s.startedAt) >= s.cfg.AssociationDelay {
		s.pending = false
		want, known := s.cfg.Networks[s.ssid]
		switch {
		case !known:
			s.status = StatusNoSSID
		case want != s.pass:
			s.status = StatusConnectFailed
		default:
			s.status = StatusConnected
		}
	}
	return s.status
}

// SetMode switches between station and AP+STA operation.
func (s *Simulated) SetMode(mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = mode
	if mode == ModeStation {
		s.apRunning = false
	}
	return nil
}

// StartAccessPoint broadcasts an open access point called name.
func (s *Simulated) StartAccessPoint(name string) (net.IP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeAccessPointStation {
		return nil, ErrAccessPointMode
	}
	s.apRunning = true
	s.apName = name
	return DefaultAccessPointIP, nil
}

// StopAccessPoint stops broadcasting. Stopping an idle access point is a no-op.
func (s *Simulated) StopAccessPoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apRunning = false
	s.apName = ""
	return nil
}

// HardwareID returns the configured hardware id.
func (s *Simulated) HardwareID() string {
	return s.cfg.HardwareID
}

// LocalIP returns the station address while associated, otherwise nil.
func (s *Simulated) LocalIP() net.IP {
	if s.Status() != StatusConnected {
		return nil
	}
	return s.cfg.StationIP
}

// AccessPoint reports whether an access point is broadcasting and its name.
func (s *Simulated) AccessPoint() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apName, s.apRunning
}

// AddNetwork makes ssid joinable.
func (s *Simulated) AddNetwork(ssid, passphrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Networks[ssid] = passphrase
}

// SetAssociationDelay changes how long future attempts take.
func (s *Simulated) SetAssociationDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.AssociationDelay = d
}

// ForceStatus overrides the reported status and cancels any pending attempt.
func (s *Simulated) ForceStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	s.status = status
}

// Drop simulates the access point going away under an associated station.
func (s *Simulated) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusConnected {
		s.status = StatusConnectionLost
	}
}

// BeginCalls returns how many association attempts were started.
func (s *Simulated) BeginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginCalls
}
