package radio

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/logging"
)

// setupConnectionName is the NetworkManager profile used for the setup access point.
const setupConnectionName = "fowlink-setup"

// NetworkManager device states (NMDeviceState).
const (
	nmStateUnavailable  = 20
	nmStateDisconnected = 30
	nmStateActivated    = 100
	nmStateDeactivating = 110
	nmStateFailed       = 120
)

// DefaultStateTTL bounds how often Status runs nmcli.
const DefaultStateTTL = 300 * time.Millisecond

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs commands through os/exec.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLIConfig configures the NetworkManager driver.
type NMCLIConfig struct {
	// Interface is the station interface, e.g. wlan0
	Interface string

	// APInterface carries the setup access point (defaults to Interface)
	APInterface string

	// Binary is the nmcli executable (default "nmcli")
	Binary string

	// CommandTimeout bounds every nmcli invocation (default 30s)
	CommandTimeout time.Duration

	// StateTTL is how long a device state read is reused by Status
	// (default 300ms). Begin and Disconnect drop the cached state.
	StateTTL time.Duration

	// Now overrides the clock (tests)
	Now func() time.Time

	// Runner overrides command execution (tests)
	Runner Runner
}

// NMCLI drives NetworkManager through the nmcli tool.
//
// Station association runs "nmcli device wifi connect" in the background so
// Begin never blocks; Status combines the outcome of that command with the
// device state reported by NetworkManager.
type NMCLI struct {
	cfg NMCLIConfig
	run Runner

	mu         sync.Mutex
	mode       Mode
	connecting bool
	connectErr error
	wasUp      bool
	attempt    int

	// last GENERAL.STATE read, reused for StateTTL
	state   int
	stateAt time.Time
}

// NewNMCLI creates a NetworkManager driver.
func NewNMCLI(cfg NMCLIConfig) *NMCLI {
	if cfg.Binary == "" {
		cfg.Binary = "nmcli"
	}
	if cfg.APInterface == "" {
		cfg.APInterface = cfg.Interface
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	run := cfg.Runner
	if run == nil {
		run = execRunner
	}
	return &NMCLI{cfg: cfg, run: run}
}

// CheckAvailable verifies that nmcli can be executed.
func (n *NMCLI) CheckAvailable() error {
	if _, err := n.nmcli("--version"); err != nil {
		return fmt.Errorf("'%s' is not installed or not found in PATH: %w", n.cfg.Binary, err)
	}
	return nil
}

func (n *NMCLI) nmcli(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.CommandTimeout)
	defer cancel()

	out, err := n.run(ctx, n.cfg.Binary, args...)
	logging.Debug("nmcli",
		zap.Strings("args", redactArgs(args)),
		zap.Int("output_size", len(out)),
		zap.Error(err),
	)
	if err != nil {
		return string(out), fmt.Errorf("nmcli %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// redactArgs hides the value following a "password" argument.
func redactArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		if out[i] == "password" || out[i] == "wifi-sec.psk" {
			out[i+1] = "***"
		}
	}
	return out
}

// Disconnect deactivates the station interface.
func (n *NMCLI) Disconnect() error {
	n.mu.Lock()
	n.attempt++
	n.connecting = false
	n.connectErr = nil
	n.wasUp = false
	n.stateAt = time.Time{}
	n.mu.Unlock()

	out, err := n.nmcli("device", "disconnect", n.cfg.Interface)
	if err != nil && strings.Contains(out, "not active") {
		return nil
	}
	return err
}

// Begin starts "nmcli device wifi connect" in the background.
func (n *NMCLI) Begin(ssid, passphrase string) error {
	args := []string{"device", "wifi", "connect", ssid}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	args = append(args, "ifname", n.cfg.Interface)

	n.mu.Lock()
	n.attempt++
	attempt := n.attempt
	n.connecting = true
	n.connectErr = nil
	n.wasUp = false
	n.stateAt = time.Time{}
	n.mu.Unlock()

	go func() {
		_, err := n.nmcli(args...)

		n.mu.Lock()
		defer n.mu.Unlock()
		if n.attempt != attempt {
			return
		}
		n.connecting = false
		n.connectErr = err
	}()
	return nil
}

// Status maps the NetworkManager device state onto Status. The device
// state is read at most once per StateTTL.
func (n *NMCLI) Status() Status {
	n.mu.Lock()
	connecting, connectErr, wasUp, attempt := n.connecting, n.connectErr, n.wasUp, n.attempt
	state, fresh := n.state, !n.stateAt.IsZero() && n.cfg.Now().Sub(n.stateAt) < n.cfg.StateTTL
	n.mu.Unlock()

	if connectErr != nil {
		if strings.Contains(connectErr.Error(), "No network with SSID") {
			return StatusNoSSID
		}
		return StatusConnectFailed
	}

	if !fresh {
		var err error
		state, err = n.deviceState(n.cfg.Interface)
		if err != nil {
			logging.Warn("Failed to read device state", zap.Error(err))
			return StatusIdle
		}
	}

	status := mapDeviceState(state, connecting, wasUp)

	n.mu.Lock()
	defer n.mu.Unlock()
	// Begin or Disconnect ran while nmcli was reading; keep their reset
	if n.attempt != attempt {
		return status
	}
	if !fresh {
		n.state, n.stateAt = state, n.cfg.Now()
	}
	n.wasUp = n.wasUp || status == StatusConnected
	return status
}

func mapDeviceState(state int, connecting, wasUp bool) Status {
	switch {
	case state == nmStateActivated:
		return StatusConnected
	case state == nmStateFailed:
		return StatusConnectFailed
	case state == nmStateDisconnected || state == nmStateDeactivating:
		if connecting {
			return StatusIdle
		}
		if wasUp {
			return StatusConnectionLost
		}
		return StatusDisconnected
	case state < nmStateDisconnected:
		return StatusIdle
	default:
		// preparing, config, need-auth, ip-config, ip-check, secondaries
		return StatusIdle
	}
}

// deviceState returns the numeric GENERAL.STATE of iface.
func (n *NMCLI) deviceState(iface string) (int, error) {
	value, err := n.deviceField(iface, "GENERAL.STATE")
	if err != nil {
		return 0, err
	}
	// "100 (connected)"
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty GENERAL.STATE for %s", iface)
	}
	state, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid GENERAL.STATE %q: %w", value, err)
	}
	return state, nil
}

// deviceField reads a single terse field from "nmcli device show".
func (n *NMCLI) deviceField(iface, field string) (string, error) {
	out, err := n.nmcli("-t", "-f", field, "device", "show", iface)
	if err != nil {
		return "", err
	}
	return parseTerseField(out, field), nil
}

// parseTerseField finds "FIELD:value" (or "FIELD[1]:value") in terse output.
func parseTerseField(out, field string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if name == field || strings.HasPrefix(name, field+"[") {
			return strings.ReplaceAll(value, `\:`, ":")
		}
	}
	return ""
}

// SetMode records the requested mode. NetworkManager runs the access point
// on its own profile, so AP+STA needs no driver switch; it only warns when
// both share one interface.
func (n *NMCLI) SetMode(mode Mode) error {
	n.mu.Lock()
	n.mode = mode
	n.mu.Unlock()

	if mode == ModeAccessPointStation && n.cfg.APInterface == n.cfg.Interface {
		logging.Warn("Access point and station share one interface; station attempts will interrupt the setup network",
			zap.String("interface", n.cfg.Interface),
		)
	}
	return nil
}

// StartAccessPoint creates and activates an open shared-IPv4 access point.
func (n *NMCLI) StartAccessPoint(name string) (net.IP, error) {
	n.mu.Lock()
	mode := n.mode
	n.mu.Unlock()
	if mode != ModeAccessPointStation {
		return nil, ErrAccessPointMode
	}

	// A stale profile from an unclean shutdown would make "add" fail
	_, _ = n.nmcli("connection", "delete", setupConnectionName)

	if _, err := n.nmcli("connection", "add",
		"type", "wifi",
		"ifname", n.cfg.APInterface,
		"con-name", setupConnectionName,
		"autoconnect", "no",
		"ssid", name,
		"802-11-wireless.mode", "ap",
		"ipv4.method", "shared",
	); err != nil {
		return nil, fmt.Errorf("failed to create access point profile: %w", err)
	}
	if _, err := n.nmcli("connection", "up", setupConnectionName); err != nil {
		return nil, fmt.Errorf("failed to activate access point: %w", err)
	}

	ip, err := n.interfaceIP(n.cfg.APInterface)
	if err != nil {
		return nil, err
	}
	if ip == nil {
		return nil, fmt.Errorf("access point on %s has no IPv4 address", n.cfg.APInterface)
	}
	return ip, nil
}

// StopAccessPoint deactivates and removes the setup profile.
func (n *NMCLI) StopAccessPoint() error {
	out, err := n.nmcli("connection", "down", setupConnectionName)
	if err != nil && !strings.Contains(out, "not an active connection") && !strings.Contains(out, "unknown connection") {
		return err
	}
	_, _ = n.nmcli("connection", "delete", setupConnectionName)
	return nil
}

// HardwareID returns the last three bytes of the station MAC address as hex.
func (n *NMCLI) HardwareID() string {
	iface, err := net.InterfaceByName(n.cfg.Interface)
	if err != nil {
		return ""
	}
	return hardwareIDFromMAC(iface.HardwareAddr)
}

func hardwareIDFromMAC(mac net.HardwareAddr) string {
	if len(mac) < 3 {
		return ""
	}
	tail := mac[len(mac)-3:]
	return fmt.Sprintf("%06X", uint32(tail[0])<<16|uint32(tail[1])<<8|uint32(tail[2]))
}

// LocalIP returns the station IPv4 address, or nil.
func (n *NMCLI) LocalIP() net.IP {
	ip, err := n.interfaceIP(n.cfg.Interface)
	if err != nil {
		return nil
	}
	return ip
}

func (n *NMCLI) interfaceIP(iface string) (net.IP, error) {
	value, err := n.deviceField(iface, "IP4.ADDRESS")
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	ip, _, err := net.ParseCIDR(value)
	if err != nil {
		return nil, fmt.Errorf("invalid IP4.ADDRESS %q: %w", value, err)
	}
	return ip, nil
}
