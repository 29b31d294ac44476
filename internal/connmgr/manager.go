package connmgr

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/fowlink/fowlink/internal/discovery"
	"github.com/fowlink/fowlink/internal/logging"
	"github.com/fowlink/fowlink/internal/radio"
	"github.com/fowlink/fowlink/internal/redirector"
	"github.com/fowlink/fowlink/internal/settings"
)

// portalStopTimeout bounds the portal teardown at setup exit.
const portalStopTimeout = 5 * time.Second

// attempt is a connection attempt waiting for association.
type attempt struct {
	ssid      string
	started   time.Time
	deadline  time.Time
	unbounded bool
}

// Manager decides between station and setup mode and keeps the device
// connected. All methods must be called from one goroutine, the same one
// that calls Update.
type Manager struct {
	deps Deps
	opts Options

	mode       Mode
	ssid       string
	passphrase string
	deviceID   string
	apIP       net.IP

	result      Result
	current     *attempt
	lastAttempt time.Time

	events *events
	closed bool
}

// New builds the manager and brings the device up.
//
// Outside setup mode it joins the stored network and blocks until connected
// or timed out. In setup mode it starts the access point, redirector and
// portal and returns once the portal is listening.
func New(ctx context.Context, deps Deps, opts Options) (*Manager, error) {
	opts.setDefaults()
	if err := deps.validate(false); err != nil {
		return nil, err
	}

	m := &Manager{
		deps:   deps,
		opts:   opts,
		events: newEvents(),
	}

	if err := deps.Radio.Disconnect(); err != nil {
		logging.Warn("Failed to drop stale association", zap.Error(err))
	}
	deps.Settings.TouchResetTimer()

	m.deviceID = m.resolveDeviceID()
	deps.Fetch.SetReuse(true)
	deps.Fetch.SetUserAgent(fmt.Sprintf("%s/%s/%s", opts.ProductName, opts.Version, m.deviceID))

	if !deps.Settings.IsSetupMode() {
		m.mode = ModeStation
		m.ssid = deps.Settings.Get(settings.FieldSSID)
		m.passphrase = deps.Settings.Get(settings.FieldPassphrase)

		if err := deps.Radio.StopAccessPoint(); err != nil {
			logging.Warn("Failed to stop access point", zap.Error(err))
		}
		if err := deps.Radio.SetMode(radio.ModeStation); err != nil {
			return nil, fmt.Errorf("failed to switch radio to station mode: %w", err)
		}

		logging.Info("Starting in station mode", zap.String("ssid", m.ssid))
		m.Connect(ctx, false)
		return m, nil
	}

	if err := deps.validate(true); err != nil {
		return nil, err
	}
	if err := m.startSetup(); err != nil {
		return nil, err
	}
	return m, nil
}

// resolveDeviceID prefers the radio's hardware id over the generated one.
func (m *Manager) resolveDeviceID() string {
	if id := m.deps.Radio.HardwareID(); id != "" {
		return id
	}
	return m.deps.Settings.DeviceID()
}

// startSetup brings up the access point, redirector, assets, routes, portal
// and mDNS advertisement, undoing earlier steps when a later one fails.
func (m *Manager) startSetup() error {
	m.mode = ModeSetup
	apName := m.opts.ProductName + "-" + m.deviceID

	if err := m.deps.Radio.SetMode(radio.ModeAccessPointStation); err != nil {
		return fmt.Errorf("failed to switch radio to AP+STA mode: %w", err)
	}
	ip, err := m.deps.Radio.StartAccessPoint(apName)
	if err != nil {
		return fmt.Errorf("failed to start access point %s: %w", apName, err)
	}
	m.apIP = ip

	m.deps.Redirector.SetErrorReplyCode(dns.RcodeSuccess)
	if err := m.deps.Redirector.Start(m.opts.DNSPort, redirector.WildcardPattern, ip); err != nil {
		m.deps.Radio.StopAccessPoint()
		return fmt.Errorf("failed to start DNS redirector: %w", err)
	}

	if err := m.deps.Files.Mount(); err != nil {
		logging.Warn("Failed to mount portal assets, pages will answer 404", zap.Error(err))
	}

	rt := &routes{m: m}
	rt.register(m.deps.Portal)

	if err := m.deps.Portal.Start(); err != nil {
		m.deps.Redirector.Stop()
		m.deps.Files.Unmount()
		m.deps.Radio.StopAccessPoint()
		return fmt.Errorf("failed to start portal server: %w", err)
	}

	if m.deps.Advertiser != nil {
		port := 80
		if addr, ok := m.deps.Portal.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		txt := discovery.TXT(m.deviceID, m.opts.ProductName, m.opts.Version)
		if err := m.deps.Advertiser.Advertise(apName, port, txt); err != nil {
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		}
	}

	logging.Info("Setup mode started",
		zap.String("access_point", apName),
		zap.String("address", ip.String()),
	)
	return nil
}

// Ready reports whether the device is connected: a non-empty SSID, an
// associated radio and a clean last result.
func (m *Manager) Ready() bool {
	return m.connected()
}

// connected is the single liveness predicate.
func (m *Manager) connected() bool {
	return m.ssid != "" &&
		m.deps.Radio.Status() == radio.StatusConnected &&
		!m.result.Failed()
}

// Update advances the manager by one tick.
func (m *Manager) Update(ctx context.Context) {
	if m.closed {
		return
	}
	m.deps.Settings.TouchResetTimer()

	if m.current != nil {
		m.poll(ctx)
	}

	if m.mode == ModeSetup {
		m.deps.Redirector.ProcessNextRequest()
		m.deps.Portal.HandleClient()
		// The request may have ended setup
		if m.mode == ModeSetup {
			m.events.publish(m.statusLine(), m.connected())
		}
		return
	}

	if m.current == nil && !m.connected() && m.opts.Now().Sub(m.lastAttempt) >= m.opts.ReconnectInterval {
		logging.Info("Not connected, retrying", zap.String("ssid", m.ssid))
		m.begin(false)
	}
}

// Connect runs a connection attempt to completion and returns its result.
// With unbounded set it only returns once associated or ctx ends.
func (m *Manager) Connect(ctx context.Context, unbounded bool) Result {
	m.begin(unbounded)
	for !m.poll(ctx) {
		m.deps.Settings.TouchResetTimer()
		m.sleep(ctx, m.opts.ResetTouchInterval)
	}
	return m.result
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if m.opts.Sleep != nil {
		m.opts.Sleep(d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// begin starts an attempt with the current credentials.
func (m *Manager) begin(unbounded bool) {
	now := m.opts.Now()
	m.lastAttempt = now

	m.deps.Fetch.Close()
	if err := m.deps.Radio.Disconnect(); err != nil {
		logging.Debug("Disconnect before attempt failed", zap.Error(err))
	}
	if err := m.deps.Radio.Begin(m.ssid, m.passphrase); err != nil {
		logging.Warn("Radio refused association request", zap.Error(err))
	}

	m.result = Result{Cause: CausePending}
	m.current = &attempt{
		ssid:      m.ssid,
		started:   now,
		deadline:  now.Add(m.opts.ConnectTimeout),
		unbounded: unbounded,
	}
	logging.LogConnectAttempt(m.ssid, unbounded)
}

// poll checks the running attempt and reports whether it finished.
func (m *Manager) poll(ctx context.Context) bool {
	a := m.current
	if a == nil {
		return true
	}

	if err := ctx.Err(); err != nil {
		m.finish(Result{Cause: CauseCanceled, Err: err})
		return true
	}

	if m.deps.Radio.Status() == radio.StatusConnected {
		if m.deps.Fetch.Open(m.opts.Endpoint) {
			m.finish(Result{Cause: CauseNone})
		} else {
			m.finish(Result{Cause: CauseTransport, Err: ErrTransport})
		}
		return true
	}

	if !a.unbounded && !m.opts.Now().Before(a.deadline) {
		m.finish(Result{Cause: CauseTimeout, Err: ErrTimeout})
		return true
	}
	return false
}

func (m *Manager) finish(r Result) {
	a := m.current
	m.current = nil
	m.result = r
	logging.LogConnectResult(a.ssid, r.Cause.String(), m.opts.Now().Sub(a.started), r.Err)
}

// Get fetches the endpoint. It returns "" when not connected, on error and
// for any status but 200. After a successful fetch the client is reopened;
// a failed reopen marks the connection as broken.
func (m *Manager) Get(ctx context.Context) string {
	if !m.connected() {
		logging.Debug("Fetch skipped, not connected", zap.String("ssid", m.ssid))
		return ""
	}

	status, err := m.deps.Fetch.Get(ctx)
	if err != nil {
		logging.Warn("Fetch failed", zap.Error(err))
		return ""
	}
	if status != http.StatusOK {
		logging.Warn("Fetch returned non-OK status", zap.Int("status", status))
		return ""
	}
	body := m.deps.Fetch.Body()

	m.deps.Fetch.Close()
	if !m.deps.Fetch.Open(m.opts.Endpoint) {
		m.result = Result{Cause: CauseTransport, Err: ErrTransport}
		logging.Warn("Failed to reopen outbound client")
	}
	return body
}

// exitSetup tears the portal down, persists the credentials and switches
// to station mode. It does nothing outside setup mode.
func (m *Manager) exitSetup() {
	if m.mode != ModeSetup {
		return
	}
	m.teardownSetup()

	if err := m.deps.Settings.Set(settings.FieldSSID, m.ssid); err != nil {
		logging.Error("Failed to persist SSID", zap.Error(err))
	}
	if err := m.deps.Settings.Set(settings.FieldPassphrase, m.passphrase); err != nil {
		logging.Error("Failed to persist passphrase", zap.Error(err))
	}
	if err := m.deps.Settings.ExitSetupMode(); err != nil {
		logging.Error("Failed to clear setup flag", zap.Error(err))
	}

	m.mode = ModeStation
	logging.LogModeChange(ModeSetup.String(), ModeStation.String())
}

// teardownSetup stops everything startSetup brought up.
func (m *Manager) teardownSetup() {
	if err := m.deps.Radio.StopAccessPoint(); err != nil {
		logging.Warn("Failed to stop access point", zap.Error(err))
	}
	if err := m.deps.Radio.SetMode(radio.ModeStation); err != nil {
		logging.Warn("Failed to switch radio to station mode", zap.Error(err))
	}
	if err := m.deps.Redirector.Stop(); err != nil {
		logging.Warn("Failed to stop DNS redirector", zap.Error(err))
	}
	if m.deps.Advertiser != nil {
		m.deps.Advertiser.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), portalStopTimeout)
	defer cancel()
	if err := m.deps.Portal.Stop(ctx); err != nil {
		logging.Warn("Failed to stop portal server", zap.Error(err))
	}
	if err := m.deps.Files.Unmount(); err != nil {
		logging.Warn("Failed to unmount portal assets", zap.Error(err))
	}
	m.events.close()
}

// Close releases the manager's resources. A setup session still running is
// torn down without persisting anything; the manager then reports
// ModeStation since no portal is live. Closing twice is a no-op.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true

	if m.mode == ModeSetup {
		m.teardownSetup()
		m.mode = ModeStation
		m.apIP = nil
		logging.Info("Setup session closed without saving credentials")
	}
	m.current = nil
	m.deps.Fetch.Close()
}

// Mode returns the current mode.
func (m *Manager) Mode() Mode {
	return m.mode
}

// LastResult returns the latched result of the last attempt.
func (m *Manager) LastResult() Result {
	return m.result
}

// Connecting reports whether an attempt is in flight.
func (m *Manager) Connecting() bool {
	return m.current != nil
}

// SSID returns the network the manager joins.
func (m *Manager) SSID() string {
	return m.ssid
}

// DeviceID returns the id used in the access point name and user agent.
func (m *Manager) DeviceID() string {
	return m.deviceID
}

// AccessPointIP returns the setup access point address, or nil.
func (m *Manager) AccessPointIP() net.IP {
	if m.mode != ModeSetup {
		return nil
	}
	return m.apIP
}
