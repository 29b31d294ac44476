package connmgr

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/miekg/dns"

	"github.com/fowlink/fowlink/internal/assets"
	"github.com/fowlink/fowlink/internal/portal"
	"github.com/fowlink/fowlink/internal/radio"
	"github.com/fowlink/fowlink/internal/redirector"
	"github.com/fowlink/fowlink/internal/settings"
)

const (
	testSSID       = "home"
	testPassphrase = "secret123"
	testEndpoint   = "http://data.example.test/progress"
	indexContent   = "<html>setup</html>"
)

type harness struct {
	clock    *fakeClock
	radio    *radio.Simulated
	settings *fakeSettings
	fetch    *fakeFetch
	portal   *portal.Server
	dns      *redirector.Redirector
	files    *assets.Store
	adv      *fakeAdvertiser

	radioOverride radio.Radio
}

func newHarness(setup bool) *harness {
	clock := newClock()
	h := &harness{
		clock: clock,
		radio: radio.NewSimulated(radio.SimulatedConfig{
			Networks: map[string]string{testSSID: testPassphrase},
			Now:      clock.Now,
		}),
		settings: newFakeSettings(setup),
		fetch:    newFakeFetch(),
		portal:   portal.New(portal.Config{Host: "127.0.0.1"}),
		dns:      redirector.New(redirector.Options{Host: "127.0.0.1"}),
		files: assets.NewMemStore(map[string]string{
			"index.html": indexContent,
			"style.css":  "body{}",
		}),
		adv: &fakeAdvertiser{},
	}
	if !setup {
		h.settings.values[settings.FieldSSID] = testSSID
		h.settings.values[settings.FieldPassphrase] = testPassphrase
	}
	return h
}

func (h *harness) deps() Deps {
	var r radio.Radio = h.radio
	if h.radioOverride != nil {
		r = h.radioOverride
	}
	return Deps{
		Settings:   h.settings,
		Radio:      r,
		Fetch:      h.fetch,
		Portal:     h.portal,
		Redirector: h.dns,
		Files:      h.files,
		Advertiser: h.adv,
	}
}

func (h *harness) options() Options {
	return Options{
		ProductName: "fowlink",
		Endpoint:    testEndpoint,
		Version:     "1.2.3",
		BuildInfo:   "commit abc123",
		Now:         h.clock.Now,
		Sleep:       h.clock.Advance,
	}
}

func (h *harness) start(t *testing.T) *Manager {
	t.Helper()
	return h.startContext(t, context.Background())
}

func (h *harness) startContext(t *testing.T, ctx context.Context) *Manager {
	t.Helper()
	m, err := New(ctx, h.deps(), h.options())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func (h *harness) url(path string) string {
	return "http://" + h.portal.Addr().String() + path
}

// pump runs call on another goroutine while ticking the manager.
func pump[T any](t *testing.T, m *Manager, call func() (T, error)) (T, error) {
	t.Helper()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()

	ctx := context.Background()
	deadline := time.After(5 * time.Second)
	for {
		m.Update(ctx)
		select {
		case res := <-done:
			return res.v, res.err
		case <-deadline:
			t.Fatal("request did not complete")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

var client = &http.Client{
	Timeout:   3 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

type response struct {
	code        int
	contentType string
	body        string
}

func get(t *testing.T, m *Manager, url string) (response, error) {
	t.Helper()
	return pump(t, m, func() (response, error) {
		resp, err := client.Get(url)
		if err != nil {
			return response{}, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return response{resp.StatusCode, resp.Header.Get("Content-Type"), string(body)}, err
	})
}

func mustGet(t *testing.T, m *Manager, url string) response {
	t.Helper()
	resp, err := get(t, m, url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	return resp
}

// submit posts credentials through the root route and runs one more tick
// so the attempt is polled.
func submit(t *testing.T, h *harness, m *Manager, query string) response {
	t.Helper()
	resp := mustGet(t, m, h.url("/?"+query))
	m.Update(context.Background())
	return resp
}

func TestReady_Predicate(t *testing.T) {
	tests := []struct {
		name      string
		ssid      string
		status    radio.Status
		result    Result
		wantReady bool
	}{
		// ssid x radio x result
		{"all good", testSSID, radio.StatusConnected, Result{}, true},
		{"timed out", testSSID, radio.StatusConnected, Result{Cause: CauseTimeout, Err: ErrTimeout}, false},
		{"radio down", testSSID, radio.StatusDisconnected, Result{}, false},
		{"radio down timed out", testSSID, radio.StatusDisconnected, Result{Cause: CauseTimeout, Err: ErrTimeout}, false},
		{"no ssid", "", radio.StatusConnected, Result{}, false},
		{"no ssid timed out", "", radio.StatusConnected, Result{Cause: CauseTimeout, Err: ErrTimeout}, false},
		{"no ssid radio down", "", radio.StatusConnectionLost, Result{}, false},
		{"nothing", "", radio.StatusIdle, Result{Cause: CauseTimeout}, false},

		{"transport", testSSID, radio.StatusConnected, Result{Cause: CauseTransport, Err: ErrTransport}, false},
		{"pending", testSSID, radio.StatusConnected, Result{Cause: CausePending}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := radio.NewSimulated(radio.SimulatedConfig{})
			r.ForceStatus(tt.status)
			m := &Manager{deps: Deps{Radio: r}, ssid: tt.ssid, result: tt.result}

			if got := m.Ready(); got != tt.wantReady {
				t.Errorf("Ready() = %v, want %v", got, tt.wantReady)
			}
		})
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		ssid   string
		status radio.Status
		result Result
		want   string
	}{
		{testSSID, radio.StatusConnected, Result{}, "Connected"},
		{testSSID, radio.StatusConnected, Result{Cause: CauseTransport}, "Disconnected"},
		{"", radio.StatusConnected, Result{}, "Disconnected"},
		{testSSID, radio.StatusConnectFailed, Result{}, "Connection attempt failed"},
		{testSSID, radio.StatusConnectionLost, Result{}, "Connection lost"},
		{testSSID, radio.StatusDisconnected, Result{}, "Disconnected"},
		{testSSID, radio.StatusIdle, Result{}, "Other"},
		{testSSID, radio.StatusNoSSID, Result{}, "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.status.String()+"/"+tt.ssid, func(t *testing.T) {
			r := radio.NewSimulated(radio.SimulatedConfig{})
			r.ForceStatus(tt.status)
			m := &Manager{deps: Deps{Radio: r}, ssid: tt.ssid, result: tt.result}

			if got := m.statusLine(); got != tt.want {
				t.Errorf("statusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_MissingDeps(t *testing.T) {
	if _, err := New(context.Background(), Deps{}, Options{}); err == nil {
		t.Fatal("New() should reject missing dependencies")
	}

	h := newHarness(true)
	deps := h.deps()
	deps.Portal = nil
	if _, err := New(context.Background(), deps, h.options()); err == nil {
		t.Fatal("New() should require a portal server in setup mode")
	}
}

func TestNew_StationModeConnects(t *testing.T) {
	h := newHarness(false)
	m := h.start(t)

	if m.Mode() != ModeStation {
		t.Fatalf("Mode() = %v, want station", m.Mode())
	}
	if !m.Ready() {
		t.Fatalf("Ready() = false, result %v", m.LastResult())
	}
	if h.fetch.opens != 1 || h.fetch.endpoint != testEndpoint {
		t.Errorf("Open() calls = %d (endpoint %q), want 1 against %q", h.fetch.opens, h.fetch.endpoint, testEndpoint)
	}
	if !h.fetch.reuse {
		t.Error("connection reuse should be enabled")
	}
	if _, up := h.radio.AccessPoint(); up {
		t.Error("station mode should not broadcast an access point")
	}
	if h.portal.Addr() != nil {
		t.Error("station mode should not start the portal")
	}
}

func TestNew_StationModeEmptyCredentials(t *testing.T) {
	h := newHarness(false)
	h.settings.values[settings.FieldSSID] = ""
	h.settings.values[settings.FieldPassphrase] = ""
	m := h.start(t)

	if m.Ready() {
		t.Fatal("Ready() = true with no stored network")
	}
	if got := m.LastResult().Cause; got != CauseTimeout {
		t.Errorf("LastResult() = %v, want a timeout", m.LastResult())
	}
	if got := m.Get(context.Background()); got != "" {
		t.Errorf("Get() = %q, want empty", got)
	}
	if h.fetch.gets != 0 {
		t.Errorf("Get() issued %d requests while not connected", h.fetch.gets)
	}
}

func TestNew_UserAgent(t *testing.T) {
	t.Run("generated id", func(t *testing.T) {
		h := newHarness(false)
		h.start(t)
		if h.fetch.userAgent != "fowlink/1.2.3/A1B2C3" {
			t.Errorf("user agent = %q", h.fetch.userAgent)
		}
	})

	t.Run("hardware id wins", func(t *testing.T) {
		h := newHarness(false)
		h.radio = radio.NewSimulated(radio.SimulatedConfig{
			Networks:   map[string]string{testSSID: testPassphrase},
			HardwareID: "00AABB",
			Now:        h.clock.Now,
		})
		m := h.start(t)
		if h.fetch.userAgent != "fowlink/1.2.3/00AABB" {
			t.Errorf("user agent = %q", h.fetch.userAgent)
		}
		if m.DeviceID() != "00AABB" {
			t.Errorf("DeviceID() = %q, want 00AABB", m.DeviceID())
		}
	})
}

func TestNew_StationModeTimeout(t *testing.T) {
	h := newHarness(false)
	h.settings.values[settings.FieldPassphrase] = "wrong"
	start := h.clock.Now()

	m := h.start(t)

	got := m.LastResult()
	if got.Cause != CauseTimeout || !errors.Is(got.Err, ErrTimeout) {
		t.Fatalf("LastResult() = %v, want timeout", got)
	}
	if m.Ready() {
		t.Error("Ready() should be false after a timeout")
	}
	if h.fetch.opens != 0 {
		t.Errorf("Open() called %d times, want 0 on timeout", h.fetch.opens)
	}
	if elapsed := h.clock.Now().Sub(start); elapsed < DefaultConnectTimeout {
		t.Errorf("waited %v, want at least %v", elapsed, DefaultConnectTimeout)
	}
	// One touch per sub-interval while waiting
	want := int(DefaultConnectTimeout / DefaultResetTouchInterval)
	if h.settings.touches < want {
		t.Errorf("TouchResetTimer() called %d times, want at least %d", h.settings.touches, want)
	}
}

func TestNew_StationModeTransportFailure(t *testing.T) {
	h := newHarness(false)
	h.fetch.openOK = false

	m := h.start(t)

	if got := m.LastResult(); got.Cause != CauseTransport {
		t.Fatalf("LastResult() = %v, want transport", got)
	}
	if m.Ready() {
		t.Error("Ready() should be false when the client cannot be opened")
	}
}

func TestNew_CanceledContext(t *testing.T) {
	h := newHarness(false)
	h.settings.values[settings.FieldPassphrase] = "wrong"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := h.startContext(t, ctx)

	if got := m.LastResult(); got.Cause != CauseCanceled || !errors.Is(got.Err, context.Canceled) {
		t.Errorf("LastResult() = %v, want canceled", got)
	}
}

func TestUpdate_PeriodicReconnect(t *testing.T) {
	h := newHarness(false)
	m := h.start(t)
	ctx := context.Background()

	h.radio.Drop()
	if m.Ready() {
		t.Fatal("Ready() should be false once the network is lost")
	}

	h.clock.Advance(DefaultReconnectInterval / 2)
	m.Update(ctx)
	if h.radio.BeginCalls() != 1 {
		t.Fatalf("reconnected after %v, want to wait %v", DefaultReconnectInterval/2, DefaultReconnectInterval)
	}

	h.clock.Advance(DefaultReconnectInterval / 2)
	m.Update(ctx)
	if h.radio.BeginCalls() != 2 {
		t.Fatalf("BeginCalls() = %d, want a reconnect attempt", h.radio.BeginCalls())
	}
	if !m.Connecting() {
		t.Error("Connecting() should be true while the attempt is pending")
	}

	m.Update(ctx)
	if !m.Ready() {
		t.Errorf("Ready() = false after reconnect, result %v", m.LastResult())
	}
	if h.fetch.opens != 2 {
		t.Errorf("Open() calls = %d, want 2", h.fetch.opens)
	}
}

func TestUpdate_NoReconnectWhileConnected(t *testing.T) {
	h := newHarness(false)
	m := h.start(t)

	h.clock.Advance(10 * DefaultReconnectInterval)
	m.Update(context.Background())

	if h.radio.BeginCalls() != 1 {
		t.Errorf("BeginCalls() = %d, want 1", h.radio.BeginCalls())
	}
}

func TestUpdate_TouchesResetTimer(t *testing.T) {
	for _, setup := range []bool{false, true} {
		h := newHarness(setup)
		m := h.start(t)

		before := h.settings.touches
		for i := 0; i < 5; i++ {
			m.Update(context.Background())
		}
		if got := h.settings.touches - before; got != 5 {
			t.Errorf("setup=%v: TouchResetTimer() called %d times in 5 ticks", setup, got)
		}
	}
}

func TestGet(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		h := newHarness(false)
		m := h.start(t)
		h.radio.Drop()

		if got := m.Get(context.Background()); got != "" {
			t.Errorf("Get() = %q, want empty", got)
		}
		if h.fetch.gets != 0 {
			t.Error("Get() should not issue a request while disconnected")
		}
	})

	t.Run("ok", func(t *testing.T) {
		h := newHarness(false)
		m := h.start(t)
		closes := h.fetch.closes

		if got := m.Get(context.Background()); got != "payload" {
			t.Errorf("Get() = %q, want payload", got)
		}
		if h.fetch.closes != closes+1 || h.fetch.opens != 2 {
			t.Errorf("client should be reopened after a fetch (closes %d, opens %d)", h.fetch.closes-closes, h.fetch.opens)
		}
		if !m.Ready() {
			t.Error("Ready() should stay true")
		}
	})

	t.Run("server error", func(t *testing.T) {
		h := newHarness(false)
		m := h.start(t)
		h.fetch.status = http.StatusServiceUnavailable

		if got := m.Get(context.Background()); got != "" {
			t.Errorf("Get() = %q, want empty", got)
		}
	})

	t.Run("transport error", func(t *testing.T) {
		h := newHarness(false)
		m := h.start(t)
		h.fetch.getErr = errors.New("connection reset")

		if got := m.Get(context.Background()); got != "" {
			t.Errorf("Get() = %q, want empty", got)
		}
		if !m.Ready() {
			t.Error("a failed request alone should not latch a failure")
		}
	})

	t.Run("reopen fails", func(t *testing.T) {
		h := newHarness(false)
		m := h.start(t)
		h.fetch.openOK = false

		if got := m.Get(context.Background()); got != "payload" {
			t.Errorf("Get() = %q, want payload", got)
		}
		if m.Ready() {
			t.Error("Ready() should be false after the client could not be reopened")
		}
		if got := m.LastResult(); got.Cause != CauseTransport {
			t.Errorf("LastResult() = %v, want transport", got)
		}
	})
}

func TestNew_SetupModeStartsPortal(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	if m.Mode() != ModeSetup {
		t.Fatalf("Mode() = %v, want setup", m.Mode())
	}
	name, up := h.radio.AccessPoint()
	if !up || name != "fowlink-A1B2C3" {
		t.Errorf("access point = %q (up %v), want fowlink-A1B2C3", name, up)
	}
	if !m.AccessPointIP().Equal(radio.DefaultAccessPointIP) {
		t.Errorf("AccessPointIP() = %v", m.AccessPointIP())
	}
	if !h.dns.Running() {
		t.Error("redirector should be running")
	}
	if !h.files.Mounted() {
		t.Error("assets should be mounted")
	}

	if !h.adv.active || h.adv.instance != "fowlink-A1B2C3" {
		t.Errorf("advertised %q (active %v)", h.adv.instance, h.adv.active)
	}
	if addr := h.portal.Addr().(*net.TCPAddr); h.adv.port != addr.Port {
		t.Errorf("advertised port %d, portal on %s", h.adv.port, addr)
	}
	if len(h.adv.txt) == 0 || h.adv.txt[0] != "id=A1B2C3" {
		t.Errorf("TXT = %v", h.adv.txt)
	}
	if m.Ready() {
		t.Error("Ready() should be false before credentials are submitted")
	}
}

func TestNew_SetupModeAccessPointFailure(t *testing.T) {
	h := newHarness(true)
	h.radioOverride = brokenAPRadio{h.radio}

	_, err := New(context.Background(), h.deps(), h.options())
	if err == nil {
		t.Fatal("New() should fail when the access point cannot start")
	}
	if h.dns.Running() {
		t.Error("redirector should not start without an access point")
	}
	if h.portal.Addr() != nil {
		t.Error("portal should not start without an access point")
	}
}

func TestNew_SetupModePortalFailure(t *testing.T) {
	h := newHarness(true)
	h.portal.Stop(context.Background())

	_, err := New(context.Background(), h.deps(), h.options())
	if !errors.Is(err, portal.ErrStopped) {
		t.Fatalf("New() error = %v, want ErrStopped", err)
	}
	if h.dns.Running() {
		t.Error("redirector should be stopped again")
	}
	if _, up := h.radio.AccessPoint(); up {
		t.Error("access point should be stopped again")
	}
	if h.files.Mounted() {
		t.Error("assets should be unmounted again")
	}
}

func TestSetup_RedirectsDNS(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	addr, err := h.dns.Addr()
	if err != nil {
		t.Fatalf("Addr() error = %v", err)
	}

	for _, name := range []string{"connectivitycheck.gstatic.com", "captive.apple.com"} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(name), dns.TypeA)

		reply, err := pump(t, m, func() (*dns.Msg, error) {
			c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
			r, _, err := c.Exchange(msg, addr.String())
			return r, err
		})
		if err != nil {
			t.Fatalf("Exchange(%s) error = %v", name, err)
		}
		if len(reply.Answer) != 1 {
			t.Fatalf("%s: %d answers, want 1", name, len(reply.Answer))
		}
		a, ok := reply.Answer[0].(*dns.A)
		if !ok || !a.A.Equal(radio.DefaultAccessPointIP) {
			t.Errorf("%s answered %v, want %v", name, reply.Answer[0], radio.DefaultAccessPointIP)
		}
	}
}

func TestSetup_StatusBeforeCredentials(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	resp := mustGet(t, m, h.url("/status"))
	if resp.code != http.StatusOK || resp.contentType != "text/html" {
		t.Errorf("/status = %d %s", resp.code, resp.contentType)
	}
	want := "<html><body style='color: white; font-size: 14px; font-family: monospace;'>" +
		"Network Name: <br>Password: <br>Connection Status: Disconnected</body></html>"
	if resp.body != want {
		t.Errorf("/status body = %q, want %q", resp.body, want)
	}

	resp = mustGet(t, m, h.url("/promptforexitsetup"))
	if resp.code != http.StatusInternalServerError || resp.body != "false" {
		t.Errorf("/promptforexitsetup = %d %q, want 500 false", resp.code, resp.body)
	}
}

func TestSetup_StatusAssociatedWithoutCredentials(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)
	h.radio.ForceStatus(radio.StatusConnected)

	resp := mustGet(t, m, h.url("/status"))
	if !strings.Contains(resp.body, "Network Name: <br>") {
		t.Errorf("/status body = %q, want an empty network name", resp.body)
	}
	if !strings.Contains(resp.body, "Connection Status: Disconnected</body>") {
		t.Errorf("/status body = %q, want Disconnected without an SSID", resp.body)
	}
}

func TestSetup_RootServesIndex(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	resp := mustGet(t, m, h.url("/"))
	if resp.code != http.StatusOK || resp.body != indexContent || resp.contentType != "text/html" {
		t.Errorf("/ = %d %s %q", resp.code, resp.contentType, resp.body)
	}
	if h.radio.BeginCalls() != 0 {
		t.Error("a plain page load should not start an attempt")
	}

	// Both arguments are required
	submit(t, h, m, "ssid=home")
	if h.radio.BeginCalls() != 0 || m.SSID() != "" {
		t.Error("ssid without password should be ignored")
	}
}

func TestSetup_CredentialsAreTruncated(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	long := strings.Repeat("s", settings.MaxFieldLength+20)
	submit(t, h, m, "ssid="+long+"&password="+long)

	if len(m.SSID()) != settings.MaxFieldLength {
		t.Errorf("len(SSID()) = %d, want %d", len(m.SSID()), settings.MaxFieldLength)
	}
	if len(m.passphrase) != settings.MaxFieldLength {
		t.Errorf("len(passphrase) = %d, want %d", len(m.passphrase), settings.MaxFieldLength)
	}
}

func TestSetup_ProvisionAndExit(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	resp := submit(t, h, m, "ssid=home&password=secret123")
	if resp.body != indexContent {
		t.Errorf("/ body = %q, want the index page", resp.body)
	}
	if !m.Ready() {
		t.Fatalf("Ready() = false after submitting valid credentials, result %v", m.LastResult())
	}
	if h.settings.sets != 0 {
		t.Error("credentials must not be persisted before exit")
	}

	resp = mustGet(t, m, h.url("/status"))
	if !strings.Contains(resp.body, "Network Name: home<br>Password: secret123<br>Connection Status: Connected") {
		t.Errorf("/status body = %q", resp.body)
	}

	resp = mustGet(t, m, h.url("/promptforexitsetup"))
	if resp.code != http.StatusOK || resp.body != "true" || resp.contentType != "text/plain" {
		t.Errorf("/promptforexitsetup = %d %s %q, want 200 text/plain true", resp.code, resp.contentType, resp.body)
	}

	resp = mustGet(t, m, h.url("/exitsetup"))
	if resp.code != http.StatusOK || resp.body != "Exiting setup..." {
		t.Errorf("/exitsetup = %d %q", resp.code, resp.body)
	}

	if m.Mode() != ModeStation {
		t.Fatalf("Mode() = %v after exit, want station", m.Mode())
	}
	if h.settings.Get(settings.FieldSSID) != testSSID || h.settings.Get(settings.FieldPassphrase) != testPassphrase {
		t.Error("credentials should be persisted on exit")
	}
	if h.settings.setup || h.settings.exits != 1 {
		t.Error("setup flag should be cleared once")
	}
	if _, up := h.radio.AccessPoint(); up {
		t.Error("access point should be stopped")
	}
	if h.dns.Running() {
		t.Error("redirector should be stopped")
	}
	if h.adv.active {
		t.Error("mDNS advertisement should be withdrawn")
	}
	if h.files.Mounted() {
		t.Error("assets should be unmounted")
	}
	if !m.Ready() {
		t.Error("Ready() should stay true after exit")
	}

	if _, err := client.Get(h.url("/status")); err == nil {
		t.Error("portal should not accept requests after exit")
	}

	// A second exit is a no-op
	m.exitSetup()
	if h.settings.exits != 1 {
		t.Errorf("ExitSetupMode() called %d times, want 1", h.settings.exits)
	}
}

func TestSetup_ExitBeforeConnectedIsDropped(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	if _, err := get(t, m, h.url("/exitsetup")); err == nil {
		t.Error("/exitsetup should get no response while disconnected")
	}
	if m.Mode() != ModeSetup || h.settings.exits != 0 {
		t.Error("exit must not happen while disconnected")
	}
}

func TestSetup_WrongPasswordTimesOut(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	submit(t, h, m, "ssid=home&password=nope")

	resp := mustGet(t, m, h.url("/status"))
	if !strings.Contains(resp.body, "Connection Status: Connection attempt failed") {
		t.Errorf("/status body = %q", resp.body)
	}
	if !m.Connecting() {
		t.Error("attempt should still be pending before the timeout")
	}

	h.clock.Advance(DefaultConnectTimeout)
	m.Update(context.Background())

	if got := m.LastResult(); got.Cause != CauseTimeout {
		t.Errorf("LastResult() = %v, want timeout", got)
	}
	if h.fetch.opens != 0 {
		t.Errorf("Open() called %d times on timeout", h.fetch.opens)
	}

	// The portal keeps serving
	resp = mustGet(t, m, h.url("/promptforexitsetup"))
	if resp.body != "false" {
		t.Errorf("/promptforexitsetup = %q, want false", resp.body)
	}
}

func TestSetup_NoTimeoutWaitsUntilCanceled(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	submit(t, h, m, "ssid=elsewhere&password=x&notimeout")

	h.clock.Advance(10 * DefaultConnectTimeout)
	m.Update(context.Background())
	if !m.Connecting() || m.LastResult().Cause != CausePending {
		t.Fatalf("unbounded attempt should still be pending, result %v", m.LastResult())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Update(ctx)
	if got := m.LastResult(); got.Cause != CauseCanceled {
		t.Errorf("LastResult() = %v, want canceled", got)
	}
}

func TestSetup_FallbackAndInfo(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	tests := []struct {
		path     string
		wantCode int
		wantType string
		wantBody string
	}{
		{"/style.css", http.StatusOK, "text/css", "body{}"},
		{"/missing.png", http.StatusNotFound, "text/plain", "404 Not Found"},
		{"/generate_204", http.StatusNotFound, "text/plain", "404 Not Found"},
		{"/info", http.StatusOK, "text/plain", "1.2.3\ncommit abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := mustGet(t, m, h.url(tt.path))
			if resp.code != tt.wantCode || resp.contentType != tt.wantType || resp.body != tt.wantBody {
				t.Errorf("%s = %d %s %q, want %d %s %q",
					tt.path, resp.code, resp.contentType, resp.body, tt.wantCode, tt.wantType, tt.wantBody)
			}
		})
	}
}

func TestSetup_MissingAssets(t *testing.T) {
	h := newHarness(true)
	h.files = assets.NewDirStore(filepath.Join(t.TempDir(), "missing"))
	m := h.start(t)

	resp := mustGet(t, m, h.url("/"))
	if resp.code != http.StatusNotFound || resp.body != "404 Not Found" {
		t.Errorf("/ = %d %q, want 404", resp.code, resp.body)
	}
}

func TestSetup_CloseDoesNotPersist(t *testing.T) {
	h := newHarness(true)
	m, err := New(context.Background(), h.deps(), h.options())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	submit(t, h, m, "ssid=home&password=secret123")

	m.Close()

	if h.settings.sets != 0 || !h.settings.setup {
		t.Error("Close() must not persist credentials")
	}
	if h.dns.Running() {
		t.Error("redirector should be stopped")
	}
	if _, up := h.radio.AccessPoint(); up {
		t.Error("access point should be stopped")
	}
	if m.Mode() != ModeStation || m.AccessPointIP() != nil {
		t.Errorf("after Close() Mode() = %v, AccessPointIP() = %v, want no setup session", m.Mode(), m.AccessPointIP())
	}

	closes := h.fetch.closes
	m.Close()
	if h.fetch.closes != closes {
		t.Error("a second Close() should do nothing")
	}

	touches := h.settings.touches
	m.Update(context.Background())
	if h.settings.touches != touches {
		t.Error("Update() after Close() should do nothing")
	}
}

func TestSetup_Events(t *testing.T) {
	h := newHarness(true)
	m := h.start(t)

	wsURL := "ws" + strings.TrimPrefix(h.url("/events"), "http")
	conn, err := pump(t, m, func() (*websocket.Conn, error) {
		c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		return c, err
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	read := func() statusEvent {
		t.Helper()
		var ev statusEvent
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		return ev
	}

	if ev := read(); ev.Status != "Disconnected" || ev.Connected {
		t.Errorf("first event = %+v, want Disconnected", ev)
	}

	submit(t, h, m, "ssid=home&password=secret123")
	if ev := read(); ev.Status != "Connected" || !ev.Connected {
		t.Errorf("event = %+v, want Connected", ev)
	}
	if m.events.count() != 1 {
		t.Errorf("subscribers = %d, want 1", m.events.count())
	}

	mustGet(t, m, h.url("/exitsetup"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want a going-away close", err)
	}
}
